package template

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stencilbot/stencilbot/internal/events"
	"github.com/stencilbot/stencilbot/internal/log"
)

// Watcher triggers a best-effort registry reload when the template directory
// changes. Filesystem events are debounced so a burst of writes produces a
// single reload.
type Watcher struct {
	registry *Registry
	debounce time.Duration
	hub      *events.Hub
	logger   *slog.Logger
}

// NewWatcher creates a Watcher for the given registry. hub may be nil.
func NewWatcher(registry *Registry, debounce time.Duration, hub *events.Hub) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		registry: registry,
		debounce: debounce,
		hub:      hub,
		logger:   log.WithComponent("template-watcher"),
	}
}

// Run watches the template directory until ctx is cancelled. A reload failure
// is logged and the previous snapshot stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.registry.dir); err != nil {
		return err
	}

	w.logger.Info("watching template directory", "dir", w.registry.dir)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-fire:
			timer = nil
			fire = nil
			if err := w.registry.Reload(); err != nil {
				w.logger.Warn("template reload failed, keeping previous snapshot", "error", err)
				continue
			}
			if w.hub != nil {
				snap := w.registry.Snapshot()
				w.hub.Publish(events.TypeRegistryReload, map[string]any{
					"count":       snap.Len(),
					"fingerprint": snap.Fingerprint(),
				})
			}
		}
	}
}
