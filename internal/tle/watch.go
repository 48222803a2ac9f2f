package tle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the bursts of events a single file save
// produces.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch reloads store from src whenever the catalog on disk changes, until
// ctx is done. A file source is watched through its parent directory so
// editors that replace the file by rename are still seen. Failed reloads
// keep the previous catalog.
func (s *Store) Watch(ctx context.Context, src *Source, debounce time.Duration, logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	dir, only := src.path, ""
	info, err := os.Stat(src.path)
	if err != nil {
		return fmt.Errorf("catalog path: %w", err)
	}
	if !info.IsDir() {
		dir, only = filepath.Dir(src.path), filepath.Clean(src.path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching catalog", "path", src.path)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if only != "" && filepath.Clean(ev.Name) != only {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalog watcher error", "error", err)
		case <-timer.C:
			c, err := s.Reload(src, logger)
			if err != nil {
				logger.Warn("catalog reload on change failed", "path", src.path, "error", err)
				continue
			}
			logger.Info("catalog reloaded on change", "source", c.Source, "satellites", len(c.Satellites))
		}
	}
}
