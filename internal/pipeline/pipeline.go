package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/build"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/config"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/project"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/reporter"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/rundir"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/runner"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/supervisor"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/watch"
)

// Launcher starts the runtime and blocks until it exits.
type Launcher interface {
	Launch(ctx context.Context, spec supervisor.Spec) (*supervisor.Outcome, error)
}

// WatchFunc starts watching the crate at root and returns the channel of
// debounced change notifications. Watching stops when ctx is done.
type WatchFunc func(ctx context.Context, root string, debounce time.Duration) (<-chan struct{}, error)

// Pipeline drives the build-and-launch sequence for one plugin project.
type Pipeline struct {
	Exec     runner.Executor
	Launcher Launcher
	Report   *reporter.TextReporter

	// BuildContext derives the context build stages run under. The CLI uses
	// it to make operator interrupts cancel builds. Defaults to a plain
	// cancellable child of the pipeline context.
	BuildContext func(context.Context) (context.Context, context.CancelFunc)

	// Watch defaults to an fsnotify watcher.
	Watch WatchFunc
}

// Options selects the project and its settings file.
type Options struct {
	Dir        string // directory to resolve the project from
	ConfigPath string // settings file; empty means .pumpkin.yml in the project root
	Profile    string // overrides the configured cargo profile when set
}

// RunOptions controls the run command.
type RunOptions struct {
	Options
	Force         bool
	SkipSelfBuild bool
	Watch         bool
}

// InitOptions controls the init command.
type InitOptions struct {
	Options
	Force bool
}

// workspace is a resolved project with its settings and run directory.
type workspace struct {
	manifest  *project.Manifest
	settings  *config.Settings
	req       cache.Requirement
	dir       *rundir.Dir
	sourceDir string
}

func (p *Pipeline) open(opts Options) (*workspace, error) {
	m, err := project.Resolve(opts.Dir)
	if err != nil {
		return nil, err
	}
	slog.Debug("project resolved", "name", m.Name, "manifest", m.Path)

	path := opts.ConfigPath
	if path == "" {
		path = filepath.Join(m.Root, config.FileName)
	}
	settings, err := config.LoadSettings(path)
	if err != nil {
		return nil, err
	}

	req, err := settings.Requirement(m)
	if err != nil {
		return nil, err
	}
	if opts.Profile != "" {
		req.Profile = opts.Profile
	}
	slog.Debug("runtime requirement", "key", req.Key())

	return &workspace{
		manifest:  m,
		settings:  settings,
		req:       req,
		dir:       rundir.New(m.Root),
		sourceDir: settings.SourcePath(m.Root, req),
	}, nil
}

// Run builds what is stale, launches the runtime and returns its exit code.
// In watch mode source changes stop the runtime, rebuild the plugin and
// launch it again; the session ends when the runtime exits on its own.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (int, error) {
	ws, err := p.open(opts.Options)
	if err != nil {
		return 0, err
	}
	if err := ws.dir.Ensure(); err != nil {
		return 0, err
	}
	if err := ws.dir.Acquire("run"); err != nil {
		return 0, err
	}
	defer ws.dir.Release()

	// A missing plugin fails before the runtime is built.
	if opts.SkipSelfBuild {
		if err := p.reusePlugin(ws); err != nil {
			return 0, err
		}
	}
	if err := p.runtime(ctx, ws, opts.Force); err != nil {
		return 0, err
	}
	if !opts.SkipSelfBuild {
		if err := p.plugin(ctx, ws); err != nil {
			return 0, err
		}
	}

	spec := supervisor.Spec{
		Binary: ws.dir.RuntimePath(),
		Dir:    ws.dir.Path(),
		Args:   ws.settings.Args,
		Env:    ws.settings.RuntimeEnv(),
	}

	if opts.Watch {
		wctx, stop := context.WithCancel(ctx)
		defer stop()
		changes, err := p.watch(wctx, ws.manifest.Root, ws.settings.Debounce())
		if err != nil {
			return 0, err
		}
		spec.Restart = changes
	}

	for {
		p.Report.ServerStarting()
		outcome, err := p.Launcher.Launch(ctx, spec)
		if err != nil {
			return 0, err
		}
		if !outcome.Restart {
			p.Report.ServerStopped(outcome.ExitCode)
			return outcome.ExitCode, nil
		}

		p.Report.Stage("Source changed, rebuilding plugin")
		if err := p.plugin(ctx, ws); err != nil {
			return 0, err
		}
	}
}

// runtime rebuilds the runtime unless the cached one satisfies the
// requirement.
func (p *Pipeline) runtime(ctx context.Context, ws *workspace, force bool) error {
	state := ws.dir.Validate()
	decision := cache.Decide(ws.req, force, state)
	slog.Debug("runtime cache", "action", decision.Action.String(), "reason", decision.Reason)
	p.Report.Decision(decision)
	if decision.Action == cache.Reuse {
		return nil
	}

	bctx, cancel := p.buildContext(ctx)
	defer cancel()

	marker, err := build.NewRuntimeBuilder(p.Exec, ws.dir, ws.sourceDir).Build(bctx, ws.req, force)
	if err != nil {
		return err
	}
	if marker.Commit != "" {
		p.Report.Done("runtime built at %s", shortCommit(marker.Commit))
	} else {
		p.Report.Done("runtime installed from %s", ws.req.Prebuilt)
	}
	return nil
}

func (p *Pipeline) plugin(ctx context.Context, ws *workspace) error {
	p.Report.Stage("Building plugin %s", ws.manifest.Name)

	bctx, cancel := p.buildContext(ctx)
	defer cancel()

	installed, err := build.NewPluginBuilder(p.Exec, ws.dir, ws.req.Profile).Build(bctx, ws.manifest)
	if err != nil {
		return err
	}
	p.Report.Done("plugin installed: %s", installed)
	return nil
}

func (p *Pipeline) reusePlugin(ws *workspace) error {
	installed, err := build.NewPluginBuilder(p.Exec, ws.dir, ws.req.Profile).Reuse(ws.manifest)
	if err != nil {
		return fmt.Errorf("%w (run without --skip-self-build once)", err)
	}
	p.Report.Done("reusing plugin %s", installed)
	return nil
}

// Init prepares a project for running: it creates the run directory and
// fetches the runtime source without building anything.
func (p *Pipeline) Init(ctx context.Context, opts InitOptions) error {
	ws, err := p.open(opts.Options)
	if err != nil {
		return err
	}
	if err := ws.dir.Ensure(); err != nil {
		return err
	}
	if err := ws.dir.Acquire("init"); err != nil {
		return err
	}
	defer ws.dir.Release()
	p.Report.Done("run directory ready: %s", ws.dir.Path())

	if ws.req.Prebuilt != "" {
		p.Report.Done("prebuilt runtime configured, no source checkout needed")
		return nil
	}

	builder := build.NewRuntimeBuilder(p.Exec, ws.dir, ws.sourceDir)
	p.Report.Stage("Fetching Pumpkin source into %s", builder.SourceDir())
	bctx, cancel := p.buildContext(ctx)
	defer cancel()

	commit, err := builder.FetchSource(bctx, ws.req, opts.Force)
	if err != nil {
		return err
	}
	p.Report.Done("runtime source at %s", shortCommit(commit))
	return nil
}

// Clean removes the project's run directory. Outside a project the run
// directory of opts.Dir is cleaned, which is a no-op when there is none.
func (p *Pipeline) Clean(opts Options) error {
	root := opts.Dir
	m, err := project.Resolve(opts.Dir)
	switch {
	case err == nil:
		root = m.Root
	case errors.Is(err, project.ErrManifestNotFound):
		slog.Debug("no project found, cleaning working directory", "dir", opts.Dir)
	default:
		return err
	}

	dir := rundir.New(root)
	existed := dir.Exists()
	if err := dir.Clean(); err != nil {
		return err
	}
	if existed {
		p.Report.Done("removed %s", dir.Path())
	} else {
		p.Report.Done("nothing to clean")
	}
	return nil
}

// Status reports the state of the project's run directory without changing
// it.
func (p *Pipeline) Status(opts Options) (*reporter.Status, error) {
	ws, err := p.open(opts)
	if err != nil {
		return nil, err
	}

	state := ws.dir.Validate()
	decision := cache.Decide(ws.req, false, state)
	s := &reporter.Status{
		Project:     ws.manifest.Name,
		Manifest:    ws.manifest.Path,
		RunDir:      ws.dir.Path(),
		SourceDir:   ws.sourceDir,
		Requirement: ws.req,
		Key:         ws.req.Key(),
		Runtime: reporter.RuntimeStatus{
			Valid:  state.Valid,
			Action: decision.Action.String(),
		},
	}
	if decision.Action == cache.Rebuild {
		s.Runtime.Reason = decision.Reason
	}
	if state.Valid {
		if marker, err := ws.dir.Marker(); err == nil {
			s.Runtime.Commit = marker.Commit
			s.Runtime.Digest = marker.Digest
			s.Runtime.BuiltAt = marker.BuiltAt
		}
	}
	if path, err := ws.dir.PluginArtifact(build.PluginFileName(ws.manifest.LibName)); err == nil {
		s.PluginArtifact = path
	}
	if lock, err := ws.dir.ReadLock(); err == nil {
		s.Lock = lock
	}
	return s, nil
}

func (p *Pipeline) buildContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.BuildContext != nil {
		return p.BuildContext(ctx)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) watch(ctx context.Context, root string, debounce time.Duration) (<-chan struct{}, error) {
	if p.Watch != nil {
		return p.Watch(ctx, root, debounce)
	}
	return WatchSources(ctx, root, debounce)
}

// WatchSources runs an fsnotify watcher on the crate until ctx is done and
// returns once the initial watches are in place.
func WatchSources(ctx context.Context, root string, debounce time.Duration) (<-chan struct{}, error) {
	w := watch.New(root, debounce)
	errc := make(chan error, 1)
	go func() {
		if err := w.Run(ctx); err != nil {
			errc <- err
		}
	}()

	select {
	case <-w.Ready():
		return w.Changes(), nil
	case err := <-errc:
		return nil, fmt.Errorf("watch %s: %w", root, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
