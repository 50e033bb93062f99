package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/smoothsail/errors"
)

// DefaultDebounce coalesces the burst of events an editor or atomic
// rename produces into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads the loader's layers when any of them changes on disk.
type Watcher struct {
	loader   *Loader
	onChange func(*Config)
	logger   *slog.Logger
	debounce time.Duration
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher returns a watcher that calls onChange with every config that
// loads and validates. Invalid edits are logged and skipped, leaving the
// last good config in effect.
func NewWatcher(loader *Loader, onChange func(*Config), opts ...WatchOption) *Watcher {
	w := &Watcher{
		loader:   loader,
		onChange: onChange,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "config-watcher")
	return w
}

// Watch blocks until ctx is cancelled. Parent directories are watched
// rather than the files so that replace-by-rename updates are seen.
func (w *Watcher) Watch(ctx context.Context) error {
	layers := w.loader.Layers()
	if len(layers) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: no config files to watch", errors.ErrInvalidConfig),
			"Watcher", "Watch", "check layers")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "Watcher", "Watch", "create file watcher")
	}
	defer fw.Close()

	watched := make(map[string]bool, len(layers))
	dirs := make(map[string]bool)
	for _, path := range layers {
		abs, err := filepath.Abs(path)
		if err != nil {
			return errors.WrapInvalid(err, "Watcher", "Watch", "resolve "+path)
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return errors.Wrap(err, "Watcher", "Watch", "watch "+dir)
		}
	}

	w.logger.Info("Watching config files", "files", layers)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return errors.Wrap(fmt.Errorf("event channel closed"), "Watcher", "Watch", "read events")
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !watched[name] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}
			if event.Has(fsnotify.Remove) {
				w.logger.Debug("Config file removed, waiting for replacement", "file", event.Name)
			}

		case <-timer.C:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.Wrap(fmt.Errorf("error channel closed"), "Watcher", "Watch", "read errors")
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.logger.Warn("Config reload rejected, keeping previous config", "error", err)
		return
	}
	w.logger.Info("Config reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Watch is shorthand for NewWatcher(loader, onChange, opts...).Watch(ctx).
func Watch(ctx context.Context, loader *Loader, onChange func(*Config), opts ...WatchOption) error {
	return NewWatcher(loader, onChange, opts...).Watch(ctx)
}
