// Package watcher re-triggers exports when the input document changes.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// ChangeFunc is called once per settled burst of changes to the watched file.
type ChangeFunc func(path string)

// Watch starts an fsnotify watcher on the directory holding input and calls
// onChange whenever input is written, created or replaced, until ctx is
// cancelled. Bursts of events within debounce are coalesced into one call.
//
// The directory is watched rather than the file so that editors and sync
// tools that replace the file through a rename are still noticed.
func Watch(ctx context.Context, input string, debounce time.Duration, logger *slog.Logger, onChange ChangeFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(input)
	if err != nil {
		return fmt.Errorf("watcher: resolve input: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watcher: add %s: %w", filepath.Dir(target), err)
	}

	logger.Info("watcher: started", slog.String("path", target))

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			logger.Debug("watcher: input changed", slog.String("path", target))
			onChange(target)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// The file may come back under the same name; the Create
				// that follows schedules the export.
				logger.Debug("watcher: input moved away", slog.String("path", target))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
