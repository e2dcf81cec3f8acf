package classify

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"research-backend/internal/shared/telemetry"
)

const reloadDebounce = 200 * time.Millisecond

// WatchRules reloads the rule table at path into scorer whenever the file
// changes. The parent directory is watched so editors that replace the file
// are seen. A table that fails to compile is logged and the previous table
// stays active. WatchRules blocks until ctx is done.
func WatchRules(ctx context.Context, path string, scorer *Scorer) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve rules path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			telemetry.Warn("classify.rules.watch_error", map[string]any{"path": abs, "error": err})
		case <-fire:
			fire = nil
			reload(abs, scorer)
		}
	}
}

func reload(path string, scorer *Scorer) {
	t, err := LoadTableFile(path)
	if err != nil {
		telemetry.Error("classify.rules.reload_failed", map[string]any{"path": path, "error": err})
		return
	}
	scorer.Swap(t)
	telemetry.Info("classify.rules.reloaded", map[string]any{"path": path, "version": t.Version})
}
