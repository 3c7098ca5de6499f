package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/trafficdump"
	"github.com/r9s-ai/snippet-relay/internal/tui"
)

func newDumpsCmd() *cobra.Command {
	var cfgPath, dir, outcome string
	var list bool
	var limit int
	cmd := &cobra.Command{
		Use:   "dumps",
		Short: "Browse traffic dump files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dir) == "" {
				cfg, err := config.LoadUnvalidated(cfgPath)
				if err != nil {
					return err
				}
				dir = cfg.TrafficDump.Dir
			}
			if !list {
				return tui.RunDumps(dir, os.Stdin, os.Stdout)
			}
			items, err := trafficdump.ListSummaries(trafficdump.ListOptions{Dir: dir, Limit: limit, Outcome: outcome})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range items {
				if _, err := fmt.Fprintln(out, trafficdump.FormatRow(s)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path (optional)")
	fs.StringVar(&dir, "dir", "", "dump directory (default: traffic_dump.dir from config)")
	fs.BoolVar(&list, "list", false, "print one line per dump instead of opening the browser")
	fs.IntVar(&limit, "limit", 200, "maximum number of dumps")
	fs.StringVar(&outcome, "outcome", "", "with --list, only dumps with this outcome (success, client_input, upstream, ...)")
	return cmd
}
