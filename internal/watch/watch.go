package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// skippedDirs are never watched: build outputs change on every build and
// would retrigger it.
var skippedDirs = map[string]bool{
	"target": true,
	".run":   true,
	".git":   true,
}

// Watcher reports debounced source changes of a plugin crate.
type Watcher struct {
	root     string
	debounce time.Duration
	changes  chan struct{}
	ready    chan struct{}
	once     sync.Once
}

// New creates a watcher for the crate rooted at root. Call Run to start it.
func New(root string, debounce time.Duration) *Watcher {
	return &Watcher{
		root:     root,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		ready:    make(chan struct{}),
	}
}

// Changes fires once per settled burst of edits. Bursts arriving while a
// previous notification is still unread are coalesced into it.
func (w *Watcher) Changes() <-chan struct{} { return w.changes }

// Ready is closed once the initial watches are registered.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches src/, Cargo.toml and build.rs until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	// The root itself is watched (not recursively) so Cargo.toml and build.rs
	// are seen even when editors replace them by rename.
	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	if err := w.addTree(fw, filepath.Join(w.root, "src")); err != nil {
		return err
	}
	w.once.Do(func() { close(w.ready) })
	slog.Info("watching for plugin changes", "dir", w.root, "debounce", w.debounce)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						slog.Warn("watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			slog.Debug("source changed", "path", event.Name, "op", event.Op.String())

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.notify)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// relevant reports whether a change at path can affect the plugin build.
func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	switch rel {
	case "Cargo.toml", "build.rs", "src":
		return true
	}
	if !strings.HasPrefix(rel, "src/") {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if skippedDirs[part] {
			return false
		}
	}
	return true
}

// addTree registers dir and every directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return nil
}
