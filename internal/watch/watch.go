// Package watch hands store files that appear in a directory to a callback
// once they have stopped changing.
//
// It backs "errdb merge --watch": collectors drop finished stores into a
// shared directory and each one is merged as soon as it settles.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultPattern matches store files by base name.
const DefaultPattern = "*.sqlite3"

// DefaultSettle is how long a file must stay quiet before it is handled.
const DefaultSettle = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	Dir     string                                       // Directory to watch
	Pattern string                                       // Base-name glob, DefaultPattern when empty
	Settle  time.Duration                                // Quiet period, DefaultSettle when zero
	Exclude func(path string) bool                       // Optional filter, true skips the path
	Handle  func(ctx context.Context, path string) error // Called once per settled file
	Logger  *zap.Logger
}

type fileState struct {
	size    int64
	modTime time.Time
}

// Watcher watches one directory.
type Watcher struct {
	opts    Options
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	pending map[string]time.Time
	handled map[string]fileState
}

// New creates a Watcher. Handle must be set.
func New(opts Options) (*Watcher, error) {
	if opts.Handle == nil {
		return nil, fmt.Errorf("watch: no handler")
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("watch: invalid pattern %q: %w", opts.Pattern, err)
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		opts:    opts,
		logger:  logger,
		pending: make(map[string]time.Time),
		handled: make(map[string]fileState),
	}, nil
}

// Run queues the files already in the directory, then follows it until ctx
// is cancelled. Handler errors are logged and do not stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.opts.Dir)
	if err != nil {
		return fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", w.opts.Dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to setup watcher: %w", err)
	}
	defer watcher.Close()
	w.watcher = watcher

	if err := watcher.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.opts.Dir, err)
	}

	if err := w.scan(); err != nil {
		return err
	}

	w.logger.Info("watching for stores",
		zap.String("dir", w.opts.Dir),
		zap.String("pattern", w.opts.Pattern),
		zap.Duration("settle", w.opts.Settle))

	return w.watch(ctx)
}

// scan queues every matching file present at start-up.
func (w *Watcher) scan() error {
	matches, err := filepath.Glob(filepath.Join(w.opts.Dir, w.opts.Pattern))
	if err != nil {
		return err
	}
	now := time.Now()
	for _, path := range matches {
		if w.matches(path) {
			w.pending[path] = now
		}
	}
	return nil
}

func (w *Watcher) watch(ctx context.Context) error {
	tick := w.opts.Settle / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			return fmt.Errorf("watcher error: %w", err)

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.matches(event.Name) {
		return
	}
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create,
		event.Op&fsnotify.Write == fsnotify.Write:
		w.pending[event.Name] = time.Now()

	case event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename:
		delete(w.pending, event.Name)
		delete(w.handled, event.Name)
	}
}

// flush hands every settled file to the handler, in name order.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.opts.Settle {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(w.pending, path)

		info, err := os.Stat(path)
		if err != nil {
			w.logger.Debug("settled file vanished", zap.String("path", path), zap.Error(err))
			continue
		}
		state := fileState{size: info.Size(), modTime: info.ModTime()}
		if prev, ok := w.handled[path]; ok && prev == state {
			continue
		}

		if err := w.opts.Handle(ctx, path); err != nil {
			w.logger.Warn("failed to handle store", zap.String("path", path), zap.Error(err))
			continue
		}
		w.handled[path] = state
	}
}

func (w *Watcher) matches(path string) bool {
	ok, err := filepath.Match(w.opts.Pattern, filepath.Base(path))
	if err != nil || !ok {
		return false
	}
	if w.opts.Exclude != nil && w.opts.Exclude(path) {
		return false
	}
	return true
}
