// Package watcher watches lexicon sources with fsnotify and reports debounced batches
// of changed and removed files.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Change is one debounced batch of source file events.
type Change struct {
	Updated []string
	Removed []string
}

// Empty reports whether the batch carries no paths.
func (c Change) Empty() bool {
	return len(c.Updated) == 0 && len(c.Removed) == 0
}

// Watcher watches lexicon source files and directories. A file source is watched
// through its parent directory; a directory source is watched recursively.
type Watcher struct {
	sources  []string
	accept   func(path string) bool
	onChange func(Change)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	files    map[string]bool // file sources
	dirs     []string        // directory sources
	updated  map[string]bool
	removed  map[string]bool
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (source events, batches, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the watcher waits for events to settle before reporting.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over sources. accept filters files found under directory
// sources (nil accepts all); onChange receives each debounced batch.
func NewWatcher(sources []string, accept func(string) bool, onChange func(Change), opts ...WatcherOption) *Watcher {
	if accept == nil {
		accept = func(string) bool { return true }
	}
	w := &Watcher{
		sources:  sources,
		accept:   accept,
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		files:    make(map[string]bool),
		updated:  make(map[string]bool),
		removed:  make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	for _, src := range w.sources {
		if err := w.addSourceLocked(src); err != nil {
			_ = fw.Close()
			w.watcher = nil
			return err
		}
	}
	w.started = true
	w.logger.Debug("watcher starting", zap.Strings("sources", w.sources), zap.Duration("debounce", w.debounce))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) addSourceLocked(src string) error {
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		w.files[abs] = true
		return w.watcher.Add(filepath.Dir(abs))
	}
	w.dirs = append(w.dirs, abs)
	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.underDirLocked(path) {
				w.addNewDirLocked(path)
			}
			return
		}
		if !w.relevantLocked(path) {
			return
		}
		delete(w.removed, path)
		w.updated[path] = true
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if !w.relevantLocked(path) {
			return
		}
		delete(w.updated, path)
		w.removed[path] = true
	default:
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	w.scheduleLocked()
}

// addNewDirLocked watches a directory created under a directory source and queues
// the files already inside it.
func (w *Watcher) addNewDirLocked(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if w.accept(path) {
			w.updated[path] = true
		}
		return nil
	})
	w.scheduleLocked()
}

func (w *Watcher) relevantLocked(path string) bool {
	if w.files[path] {
		return true
	}
	return w.underDirLocked(path) && w.accept(path)
}

func (w *Watcher) underDirLocked(path string) bool {
	return slices.ContainsFunc(w.dirs, func(dir string) bool { return inDir(dir, path) })
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) scheduleLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	change := Change{Updated: sortedKeys(w.updated), Removed: sortedKeys(w.removed)}
	clear(w.updated)
	clear(w.removed)
	w.timer = nil
	stopped := w.watcher == nil
	w.mu.Unlock()
	if stopped || change.Empty() {
		return
	}
	w.logger.Debug("watcher batch", zap.Strings("updated", change.Updated), zap.Strings("removed", change.Removed))
	if w.onChange != nil {
		w.onChange(change)
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Sources returns the watched source paths.
func (w *Watcher) Sources() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]string(nil), w.dirs...)
	for f := range w.files {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Stop stops the watcher and drops pending events.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
