package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher serves the most recent valid Settings loaded from a file, reloading when the file changes.
//
// Each reload produces a fresh Settings value, so a snapshot returned by Current is never modified afterwards. A reload that fails to read, parse or validate is logged and the previous snapshot stays in effect.
type Watcher struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Settings]
	reloads atomic.Int64
}

// NewWatcher performs the initial load. Unlike later reloads, an invalid file here is an error.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving settings path: %w", err)
	}
	s, err := LoadFile(abs)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:   abs,
		logger: logger.With("component", "settings", "path", abs),
	}
	w.current.Store(s)
	return w, nil
}

func (w *Watcher) Current() *Settings {
	return w.current.Load()
}

// number of successful reloads since the initial load
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Reload re-reads the file now. On failure the previous settings are kept.
func (w *Watcher) Reload() error {
	s, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("settings reload rejected, keeping previous settings", "err", err)
		return err
	}
	w.current.Store(s)
	w.reloads.Add(1)
	w.logger.Info("settings reloaded", "enabled", s.Enabled)
	return nil
}

// Run watches the settings file until the context is cancelled. The containing directory is watched rather than the file itself, so that editors which replace the file by rename are handled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	w.logger.Info("watching settings file")

	var debounce *time.Timer
	pending := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			// errors are logged by Reload
			_ = w.Reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("settings watcher error", "err", err)
		}
	}
}
