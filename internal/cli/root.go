package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/pipeline"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/reporter"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/runner"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/supervisor"
)

// Version, Commit and BuildDate are set via LDFLAGS at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	verbose    bool
	configFile string
)

// NewRootCmd builds the command tree. Without a subcommand it runs the
// project, so "cargo pumpkin --force" behaves like "cargo pumpkin run --force".
func NewRootCmd() *cobra.Command {
	run := newRunCmd()

	root := &cobra.Command{
		Use:   "cargo-pumpkin",
		Short: "Build and run Pumpkin plugins",
		Long: "cargo-pumpkin builds the plugin crate in the current directory together with the Pumpkin server,\n" +
			"then starts the server with the plugin loaded from the project's .run directory.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			opts := &slog.HandlerOptions{Level: level}
			if isTerminal(os.Stderr) {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
			} else {
				slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
			}
		},
		Args:          cobra.NoArgs,
		RunE:          run.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to settings file (default: .pumpkin.yml in the project root)")
	root.Flags().AddFlagSet(run.Flags())

	root.AddCommand(run)
	root.AddCommand(newInitCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// CargoArgs strips the subcommand name cargo passes to external
// subcommands: "cargo pumpkin run" executes "cargo-pumpkin pumpkin run".
func CargoArgs(args []string) []string {
	if len(args) > 0 && args[0] == "pumpkin" {
		return args[1:]
	}
	return args
}

func newPipeline() *pipeline.Pipeline {
	sup := supervisor.New()
	sup.TerminalGroup = isTerminal(os.Stdin)

	// Build output is streamed live on a terminal; elsewhere it only
	// surfaces in the error of a failed build.
	exec := runner.NewExecRunner(nil)
	if EchoesBuildOutput() {
		exec.Echo = os.Stderr
	}

	return &pipeline.Pipeline{
		Exec:         exec,
		Launcher:     sup,
		Report:       reporter.NewTextReporter(os.Stderr, ColorEnabled()),
		BuildContext: interruptible,
	}
}

func options() pipeline.Options {
	return pipeline.Options{Dir: ".", ConfigPath: configFile}
}

// interruptible cancels build stages on an operator interrupt. While the
// runtime runs, the supervisor owns signal handling instead.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// ColorEnabled reports whether operator output on stderr is styled.
func ColorEnabled() bool {
	_, noColor := os.LookupEnv("NO_COLOR")
	return !noColor && isTerminal(os.Stderr)
}

// EchoesBuildOutput reports whether cargo and git output is streamed to the
// operator while builds run.
func EchoesBuildOutput() bool {
	return isTerminal(os.Stderr)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
