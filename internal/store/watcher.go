package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is how long writes are coalesced before a reload
// fires. Ingestion jobs rewrite the chunk file with several writes in a row.
const DefaultReloadDebounce = 500 * time.Millisecond

// ReloadWatcher watches the chunk corpus file and invokes a callback after
// the writer settles. The parent directory is watched rather than the file
// itself, because atomic rewrites (temp file + rename) replace the inode.
type ReloadWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// NewReloadWatcher creates a watcher for the given chunk file. onChange is
// called from the watcher goroutine after each debounced change burst.
func NewReloadWatcher(path string, debounce time.Duration, onChange func(), logger *slog.Logger) *ReloadWatcher {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Start begins watching. It runs until Stop is called or the context is
// cancelled.
func (w *ReloadWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}

	w.watcher = fw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.started = true

	go w.run(ctx)
	return nil
}

func (w *ReloadWatcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("chunk store watcher error", slog.String("error", err.Error()))
		case <-fire:
			timer = nil
			fire = nil
			w.logger.Info("chunk store changed on disk, reloading", slog.String("path", w.path))
			w.onChange()
		}
	}
}

// Stop stops the watcher and waits for the goroutine to exit. Safe to call
// multiple times.
func (w *ReloadWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	w.started = false

	close(w.stop)
	err := w.watcher.Close()
	<-w.done
	return err
}
