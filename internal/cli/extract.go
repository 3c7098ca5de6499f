package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/extract"
	"github.com/r9s-ai/snippet-relay/internal/tui"
)

var errNoCode = errors.New("no code block found")

func newExtractCmd() *cobra.Command {
	var cfgPath, rulesFile string
	var preview bool
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the code snippet from a model reply read on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(rulesFile) == "" {
				cfg, err := config.LoadUnvalidated(cfgPath)
				if err != nil {
					return err
				}
				rulesFile = cfg.Extract.RulesFile
			}
			rules, err := extract.LoadRules(rulesFile)
			if err != nil {
				return fmt.Errorf("load rules file %q: %w", rulesFile, err)
			}
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			cb, ok := extract.Extract(string(b), rules)
			if !ok {
				return errNoCode
			}
			out := cmd.OutOrStdout()
			if preview {
				_, err = fmt.Fprintln(out, extract.Preview(cb.Code, extract.DefaultPreviewRunes))
				return err
			}
			if cb.Fallback {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), tui.Hint("no fenced block; using the whole reply"))
			}
			_, err = fmt.Fprintln(out, cb.Code)
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path (optional)")
	fs.StringVar(&rulesFile, "rules", "", "rules yaml path (default: extract.rules_file from config)")
	fs.BoolVar(&preview, "preview", false, "print the truncated preview instead of the code")
	return cmd
}
