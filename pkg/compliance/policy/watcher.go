package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period before a changed seed file is
// re-applied.
const DefaultDebounceInterval = 250 * time.Millisecond

// SeedWatcher re-applies a policy seed file whenever it changes. Entries in
// the file overwrite stored policies with the same key; policies absent from
// the file are left alone.
type SeedWatcher struct {
	watcher  *fsnotify.Watcher
	registry *Registry
	path     string
	debounce *Debouncer
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSeedWatcher creates a watcher for the seed file at path. A zero
// interval uses DefaultDebounceInterval.
func NewSeedWatcher(path string, registry *Registry, interval time.Duration) (*SeedWatcher, error) {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve seed file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &SeedWatcher{
		watcher:  watcher,
		registry: registry,
		path:     abs,
		debounce: NewDebouncer(interval),
		logger:   slog.Default().With("component", "compliance.policy_watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called. The parent
// directory is watched rather than the file so that editors replacing the
// file by rename are still noticed.
func (w *SeedWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("seed file watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("seed file watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("seed file watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			w.logger.Debug("seed file event", "op", event.Op.String())
			w.debounce.Trigger(func() {
				if err := w.Reload(ctx); err != nil {
					w.logger.Error("seed file reload failed", "path", w.path, "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("seed file watcher error", "error", err)
		}
	}
}

// Reload parses the seed file and upserts every entry.
func (w *SeedWatcher) Reload(ctx context.Context) error {
	policies, err := LoadSeedFile(w.path)
	if err != nil {
		return err
	}
	res, err := w.registry.Seed(ctx, policies, true)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "seed file applied",
		"path", w.path,
		"created", res.Created,
		"updated", res.Updated,
	)
	return nil
}

// Stop stops a running watcher and releases the fsnotify handle.
func (w *SeedWatcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *SeedWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// The replacement file raises its own Create event.
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// Debouncer collects rapid events and runs the last callback only after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopCh   chan struct{}
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Trigger schedules callback after the interval, replacing any callback
// still waiting.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
			d.mu.Lock()
			cb := d.callback
			d.mu.Unlock()

			if cb != nil {
				cb()
			}
		}
	})
}

// Stop cancels any pending callback. It is safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	close(d.stopCh)
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
