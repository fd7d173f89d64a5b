package registry

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the registry when its configuration file changes on
// disk. Rapid saves are debounced; a reload that fails validation leaves
// the current registry contents untouched.
type Watcher struct {
	mu       sync.Mutex
	registry *Registry
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  bool
	lastEvt  time.Time
	logger   *zap.Logger
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for the given registry configuration file.
func NewWatcher(reg *Registry, path string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		registry: reg,
		path:     path,
		watcher:  fsw,
		debounce: 500 * time.Millisecond,
		logger:   logger,
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs until the
// context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.path); err != nil {
		return err
	}
	w.logger.Info("watching registry file", zap.String("path", w.path))
	go w.run(ctx)
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.watcher.Close()
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.lastEvt = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("registry watcher error", zap.Error(err))

		case <-ticker.C:
			w.mu.Lock()
			due := w.pending && time.Since(w.lastEvt) >= w.debounce
			if due {
				w.pending = false
			}
			w.mu.Unlock()
			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	domains, err := ParseFile(w.path)
	if err != nil {
		w.logger.Warn("registry reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.registry.Apply(domains); err != nil {
		w.logger.Warn("registry reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("registry reloaded", zap.String("path", w.path), zap.Int("domains", len(domains)))
}
