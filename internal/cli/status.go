package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/reporter"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cached runtime, plugin and lock state of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newPipeline().Status(options())
			if err != nil {
				return err
			}
			if jsonOut {
				return reporter.WriteStatusJSON(cmd.OutOrStdout(), s)
			}
			color := cmd.OutOrStdout() == os.Stdout && isTerminal(os.Stdout)
			reporter.NewTextReporter(cmd.OutOrStdout(), color).PrintStatus(s)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print status as JSON")

	return cmd
}
