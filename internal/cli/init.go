package cli

import (
	"github.com/spf13/cobra"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/pipeline"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Prepare the run directory and fetch the Pumpkin source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newPipeline().Init(cmd.Context(), pipeline.InitOptions{
				Options: options(),
				Force:   force,
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard the existing Pumpkin checkout and clone again")

	return cmd
}
