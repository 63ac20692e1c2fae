package main

import (
	"errors"
	"os"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cli"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/reporter"
)

func main() {
	root := cli.NewRootCmd()
	root.SetArgs(cli.CargoArgs(os.Args[1:]))

	if err := root.Execute(); err != nil {
		// The server already reported its own exit.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			reporter.NewTextReporter(os.Stderr, cli.ColorEnabled()).
				Failure(cli.ErrorSummary(err, cli.EchoesBuildOutput()))
		}
		os.Exit(cli.ExitCode(err))
	}
}
