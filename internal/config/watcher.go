package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigEvent represents a configuration change event.
type ConfigEvent struct {
	Path   string
	Config *Config
	Error  error
}

// Watcher monitors a single config file for changes. The parent directory
// is watched so editor save-via-rename still produces events.
type Watcher struct {
	loader   *Loader
	path     string
	watcher  *fsnotify.Watcher
	events   chan ConfigEvent
	debounce time.Duration
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	current  *Config
}

// NewWatcher creates a new config file watcher.
func NewWatcher(loader *Loader, path string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		loader:   loader,
		path:     path,
		watcher:  fsWatcher,
		events:   make(chan ConfigEvent, 10),
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Events returns the channel that receives config change events.
func (w *Watcher) Events() <-chan ConfigEvent {
	return w.events
}

// Start loads the file once and begins watching for changes.
func (w *Watcher) Start(ctx context.Context) error {
	cfg, err := w.loader.LoadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	go w.run(ctx)
	return nil
}

// Stop ends watching. The events channel is closed by the run loop, the
// only sender, so there is no window for a send on a closed channel.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	return w.watcher.Close()
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	// Debounce so a burst of write events yields one reload.
	var pending time.Time
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.Now()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.emit(ConfigEvent{Path: w.path, Error: err})

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			w.handleUpdate()
		}
	}
}

func (w *Watcher) handleUpdate() {
	cfg, err := w.loader.LoadFile(w.path)
	if err != nil {
		w.emit(ConfigEvent{
			Path:  w.path,
			Error: fmt.Errorf("failed to reload config %s: %w", w.path, err),
		})
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.emit(ConfigEvent{Path: w.path, Config: cfg})
}

// emit delivers an event unless the watcher is shutting down.
func (w *Watcher) emit(ev ConfigEvent) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}
