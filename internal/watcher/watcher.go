package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"godra/internal/logging"
)

// Watcher monitors a knowledge directory and reports batches of changed
// corpus files once they have been stable for the debounce interval. The
// corpus itself is immutable; the handler is expected to rebuild it and
// swap the new cache in.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	dir        string
	patterns   []string
	debounce   time.Duration
	maxWatches int
	onReload   ReloadHandler
	pending    map[string]time.Time
	history    *History
	mu         sync.Mutex
	done       chan struct{}
	running    bool
	stopOnce   sync.Once
}

// New creates a watcher over the corpus files under dir matched by the
// glob patterns. A disabled config yields an inert watcher whose Start
// and Stop are no-ops.
func New(dir string, patterns []string, cfg Config) (*Watcher, error) {
	if !cfg.Enabled || dir == "" {
		return &Watcher{history: NewHistory(historyCapacity)}, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	maxWatches := cfg.MaxWatches
	if maxWatches <= 0 {
		maxWatches = 256
	}

	return &Watcher{
		fsWatcher:  fsWatcher,
		dir:        dir,
		patterns:   patterns,
		debounce:   debounce,
		maxWatches: maxWatches,
		pending:    make(map[string]time.Time),
		history:    NewHistory(historyCapacity),
		done:       make(chan struct{}),
	}, nil
}

// OnReload sets the callback invoked with each settled batch of changed
// corpus paths.
func (w *Watcher) OnReload(handler ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = handler
}

// Start begins watching. Calling Start on an inert or already running
// watcher is a no-op.
func (w *Watcher) Start() error {
	if w.fsWatcher == nil {
		return nil
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(); err != nil {
		return err
	}

	go w.processEvents()
	go w.processDebounce()

	logging.Info("watching knowledge directory", "dir", w.dir, "paths", w.WatchedPaths())
	return nil
}

// Stop stops watching and releases the underlying watcher.
func (w *Watcher) Stop() error {
	if w.fsWatcher == nil {
		return nil
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.stopOnce.Do(func() {
		close(w.done)
	})
	return w.fsWatcher.Close()
}

// addDirectories registers dir and its visible subdirectories, up to
// maxWatches.
func (w *Watcher) addDirectories() error {
	watchCount := 0

	return filepath.Walk(w.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if !info.IsDir() {
			return nil
		}
		if watchCount >= w.maxWatches {
			return filepath.SkipDir
		}
		if path != w.dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return nil // keep watching what we can
		}
		watchCount++
		return nil
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("knowledge watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// Editor temp files churn constantly; never corpus material.
	base := filepath.Base(path)
	if len(base) > 0 && (base[0] == '.' || base[0] == '#' || base[len(base)-1] == '~') {
		return
	}

	// A directory created under the corpus root joins the watch list.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.mu.Lock()
			if len(w.fsWatcher.WatchList()) < w.maxWatches {
				_ = w.fsWatcher.Add(path)
			}
			w.mu.Unlock()
			return
		}
	}

	if !w.matchesCorpus(path) {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// matchesCorpus reports whether path is selected by the corpus globs,
// the same patterns the loader uses.
func (w *Watcher) matchesCorpus(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) processDebounce() {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending hands settled paths to the handler as one batch, so a
// multi-file sync triggers a single corpus rebuild.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	handler := w.onReload
	if handler == nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	var batch []string
	for path, eventTime := range w.pending {
		if now.Sub(eventTime) >= w.debounce {
			batch = append(batch, path)
			delete(w.pending, path)
		}
	}
	if len(batch) == 0 {
		w.mu.Unlock()
		return
	}
	sort.Strings(batch)
	w.history.Add(Reload{Paths: batch, Time: now})
	w.mu.Unlock()

	logging.Info("knowledge files changed", "count", len(batch))
	handler(batch)
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WatchedPaths returns the number of directories being watched.
func (w *Watcher) WatchedPaths() int {
	if w.fsWatcher == nil {
		return 0
	}
	return len(w.fsWatcher.WatchList())
}

// Recent returns the n most recent reload batches, oldest first.
func (w *Watcher) Recent(n int) []Reload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Recent(n)
}
