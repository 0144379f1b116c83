package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadFunc receives a manifest that was re-read and passed validation.
type ReloadFunc func(*Project) error

// ErrWatcherClosed is returned when Close is called twice.
var ErrWatcherClosed = errors.New("manifest: watcher already closed")

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// Watcher re-reads a manifest whenever it changes on disk.
//
// The parent directory is watched rather than the file so that editors that
// save through a temp file and rename are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	handlers []ReloadFunc
	debounce time.Duration
	mu       sync.Mutex
	closed   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher starts observing the directory containing path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, err
	}

	w := &Watcher{fs: fs, path: abs, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute manifest path.
func (w *Watcher) Path() string { return w.path }

// OnReload registers fn. Handlers run in registration order.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Watch blocks until ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) error {
	name := filepath.Base(w.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Str("path", w.path).Msg("manifest watcher error")
		}
	}
}

// reload reads and validates the manifest; invalid manifests are logged and skipped.
func (w *Watcher) reload() {
	project, err := Load(w.path)
	if err == nil {
		err = project.Validate()
	}
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("manifest reload rejected")
		return
	}

	log.Info().Str("path", w.path).Msg("manifest reloaded")

	w.mu.Lock()
	handlers := append([]ReloadFunc(nil), w.handlers...)
	w.mu.Unlock()

	for _, fn := range handlers {
		if err := fn(project); err != nil {
			log.Error().Err(err).Msg("manifest reload handler failed")
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true
	return w.fs.Close()
}
