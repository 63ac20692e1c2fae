package cli

import (
	"github.com/spf13/cobra"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	var (
		force         bool
		skipSelfBuild bool
		watch         bool
		release       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the runtime and plugin, then start the server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.RunOptions{
				Options:       options(),
				Force:         force,
				SkipSelfBuild: skipSelfBuild,
				Watch:         watch,
			}
			opts.Profile = profileFlag(cmd, release)

			code, err := newPipeline().Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "rebuild the runtime even if the cached one is valid")
	cmd.Flags().BoolVar(&skipSelfBuild, "skip-self-build", false, "launch with the previously built plugin instead of building it")
	cmd.Flags().BoolVar(&watch, "watch", false, "rebuild the plugin and restart the server when sources change")
	cmd.Flags().BoolVar(&release, "release", false, "build in release mode (overrides the configured profile)")

	return cmd
}

// profileFlag maps an explicitly given --release flag to a profile.
// Without the flag the configured profile stays in effect.
func profileFlag(cmd *cobra.Command, release bool) string {
	if !cmd.Flags().Changed("release") {
		return ""
	}
	if release {
		return cache.ProfileRelease
	}
	return cache.ProfileDebug
}
