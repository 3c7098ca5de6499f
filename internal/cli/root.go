package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "snippet-relay.yaml"

func Run(args []string) error {
	root := newRootCmd()
	if len(args) == 0 || (strings.HasPrefix(args[0], "-") && args[0] != "-h" && args[0] != "--help") {
		// Bare invocation or flags only: run the server.
		args = append([]string{"serve"}, args...)
	}
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "snippet-relay",
		Short:         "Local relay that turns a question into a code snippet on the clipboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newAskCmd(),
		newExtractCmd(),
		newComposeCmd(),
		newDumpsCmd(),
		newVersionCmd(),
	)
	return cmd
}
