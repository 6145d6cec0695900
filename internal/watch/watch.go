// Package watch triggers incremental rebuilds when the source tree
// changes. Filesystem events are debounced so a burst of writes (editor
// save, git checkout) results in one build.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"codegraph/internal/build"
	"codegraph/internal/ignore"
)

// Options configures a Watcher.
type Options struct {
	// Root is the source tree to watch.
	Root string
	// Debounce is the quiet period after the last event before a build
	// starts.
	Debounce time.Duration
	// Ignore filters event paths, same matcher as the manifest walk.
	Ignore *ignore.Matcher
	// Extensions restricts file events to these extensions (lowercase,
	// leading dot). Directory events always pass.
	Extensions []string
	// OnBuild, when set, is invoked after every triggered build.
	OnBuild func(*build.Report, error)
}

// Watcher drives a Builder from filesystem events.
type Watcher struct {
	builder *build.Builder
	opts    Options
	fs      *fsnotify.Watcher
	extSet  map[string]bool
}

// New creates a watcher over opts.Root, registering every directory in
// the tree (fsnotify does not recurse). Directories created later are
// added as their create events arrive.
func New(builder *build.Builder, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{builder: builder, opts: opts, fs: fsw, extSet: make(map[string]bool)}
	for _, ext := range opts.Extensions {
		w.extSet[ext] = true
	}

	err = filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path, true) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run watches until ctx is cancelled, rebuilding after each debounced
// burst of events. Build failures are logged and watching continues;
// the persisted graph is untouched by a failed build.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fs.Add(ev.Name); err != nil {
						slog.Warn("watching new directory failed", "path", ev.Name, "err", err)
					}
				}
			}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", err)

		case <-timer.C:
			report, err := w.builder.Run(ctx)
			if err != nil {
				slog.Warn("rebuild failed", "err", err)
			} else {
				slog.Info("rebuild complete", "parsed", report.FilesParsed, "pruned", report.FilesPruned)
			}
			if w.opts.OnBuild != nil {
				w.opts.OnBuild(report, err)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// relevant filters chmod-only noise, ignored paths, and files whose
// extension no frontend handles.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if w.ignored(ev.Name, false) {
		return false
	}

	if len(w.extSet) > 0 {
		ext := strings.ToLower(filepath.Ext(ev.Name))
		if ext != "" && !w.extSet[ext] {
			return false
		}
		if ext == "" {
			// Could be a directory; only creations and removals of
			// those affect the tree shape.
			if info, err := os.Stat(ev.Name); err == nil && !info.IsDir() {
				return false
			}
		}
	}
	return true
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	if w.opts.Ignore == nil {
		return false
	}
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil || rel == "." {
		return false
	}
	return w.opts.Ignore.Match(filepath.ToSlash(rel), isDir)
}
