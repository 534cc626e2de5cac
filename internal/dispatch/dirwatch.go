package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Directory layout under a DirWatcher root.
const (
	TodoDir     = "todo"
	DoneDir     = "done"
	RejectedDir = "rejected"
)

const defaultSettle = 250 * time.Millisecond

// DirWatcher runs the job files that appear in Root/todo, one at a time. A
// finished job file moves to Root/done; a job that fails validation moves to
// Root/rejected.
type DirWatcher struct {
	Root       string
	Dispatcher *Dispatcher
	Log        *zap.Logger
	// Settle is how long a file must stay unchanged before it is read.
	Settle time.Duration
}

func (w *DirWatcher) dir(name string) string {
	return filepath.Join(w.Root, name)
}

func (w *DirWatcher) log() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

func (w *DirWatcher) prepare() error {
	for _, name := range []string{TodoDir, DoneDir, RejectedDir} {
		if err := os.MkdirAll(w.dir(name), 0o755); err != nil {
			return &Error{Message: "failed to create " + name + " directory", Cause: err}
		}
	}
	return nil
}

// Drain runs every job file currently waiting, in file name order, and
// returns how many it handled.
func (w *DirWatcher) Drain(ctx context.Context) (int, error) {
	if err := w.prepare(); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(w.dir(TodoDir))
	if err != nil {
		return 0, &Error{Message: "failed to list jobs", Cause: err}
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isJobFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	handled := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		if w.handle(ctx, name) {
			handled++
		}
	}
	return handled, nil
}

// Run drains the waiting jobs, then watches for new ones until ctx ends.
func (w *DirWatcher) Run(ctx context.Context) error {
	if err := w.prepare(); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &Error{Message: "failed to create watcher", Cause: err}
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir(TodoDir)); err != nil {
		return &Error{Message: "failed to watch " + w.dir(TodoDir), Cause: err}
	}
	w.log().Info("watching for jobs", zap.String("dir", w.dir(TodoDir)))

	if _, err := w.Drain(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	settle := w.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()
	pending := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !isJobFile(name) || !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			pending[name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log().Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			var ready []string
			for name, last := range pending {
				if time.Since(last) >= settle {
					ready = append(ready, name)
				}
			}
			sort.Strings(ready)
			for _, name := range ready {
				delete(pending, name)
				if ctx.Err() != nil {
					return nil
				}
				w.handle(ctx, name)
			}
		}
	}
}

// handle runs one job file and files it away. It reports whether the file
// was there to handle.
func (w *DirWatcher) handle(ctx context.Context, name string) bool {
	log := w.log().With(zap.String("file", name))
	src := filepath.Join(w.dir(TodoDir), name)
	raw, err := os.ReadFile(src)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to read job file", zap.Error(err))
		}
		return false
	}

	dest := DoneDir
	out, err := w.Dispatcher.Handle(ctx, raw)
	switch {
	case err != nil && out.Report == nil:
		log.Warn("job rejected", zap.Error(err))
		dest = RejectedDir
	case err != nil:
		log.Error("job ran but its report was not delivered", zap.Error(err))
	default:
		log.Info("job done",
			zap.Bool("aborted", out.Report.JobData.Aborted),
			zap.String("report", out.Location))
	}

	if err := os.Rename(src, filepath.Join(w.dir(dest), name)); err != nil {
		log.Error("failed to move job file", zap.String("to", dest), zap.Error(err))
	}
	return true
}

func isJobFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
