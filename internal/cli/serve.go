package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/extract"
	"github.com/r9s-ai/snippet-relay/internal/relayserver"
	"github.com/r9s-ai/snippet-relay/internal/version"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var showVersion bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
				return err
			}
			return relayserver.Run(cfgPath)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path (optional)")
	fs.BoolVarP(&showVersion, "version", "V", false, "print version and exit")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and the rules file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rules, err := extract.LoadRules(cfg.Extract.RulesFile)
			if err != nil {
				return fmt.Errorf("load rules file %q: %w", cfg.Extract.RulesFile, err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "listen=%s model=%s timeout_ms=%d fallback_prefixes=%q\n",
				cfg.Server.Listen, cfg.Gemini.Model, cfg.Gemini.TimeoutMs, rules.FallbackPrefixes)
			_, err = fmt.Fprintln(out, "configuration ok")
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path (optional)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
			return err
		},
	}
}
