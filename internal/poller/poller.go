// Package poller pulls updates from the Bot API and feeds the dispatch
// queue. It is the single producer; ordering within a batch is preserved.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/stencilbot/stencilbot/internal/botapi"
	"github.com/stencilbot/stencilbot/internal/dispatch"
	"github.com/stencilbot/stencilbot/internal/events"
	"github.com/stencilbot/stencilbot/internal/log"
)

// UpdateSource is the long-poll side of the Bot API client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]botapi.Update, error)
}

// CursorStore persists the update offset across restarts.
type CursorStore interface {
	SetCursor(ctx context.Context, offset int64) error
}

// Poller runs the update fetch loop. A fetch failure is logged and retried
// without advancing the offset, so no update is skipped.
type Poller struct {
	source   UpdateSource
	queue    *dispatch.Queue
	cursor   CursorStore
	hub      *events.Hub
	offset   int64
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Poller starting at offset (the persisted cursor, or 0).
func New(source UpdateSource, queue *dispatch.Queue, cursor CursorStore, hub *events.Hub, offset int64, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Poller{
		source:   source,
		queue:    queue,
		cursor:   cursor,
		hub:      hub,
		offset:   offset,
		interval: interval,
		timeout:  timeout,
		logger:   log.WithComponent("poller"),
	}
}

// Run fetches updates until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "offset", p.offset, "interval", p.interval)
	defer p.logger.Info("poller stopped")

	for {
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("update fetch failed", "offset", p.offset, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// pollOnce performs one getUpdates round trip. The offset advances only
// after the whole batch has been enqueued.
func (p *Poller) pollOnce(ctx context.Context) error {
	updates, err := p.source.GetUpdates(ctx, p.offset, p.timeout)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	enqueued := 0
	for _, u := range updates {
		ev, ok := dispatch.FromUpdate(u)
		if !ok {
			p.logger.Debug("skipping unsupported update", "update_id", u.UpdateID)
			continue
		}
		p.queue.Push(ev)
		enqueued++
	}

	p.offset = updates[len(updates)-1].UpdateID + 1

	// Cursor persistence is best effort. Losing it means re-fetching a
	// batch after restart, which the memoized cache absorbs.
	if p.cursor != nil {
		if err := p.cursor.SetCursor(ctx, p.offset); err != nil {
			p.logger.Warn("failed to persist cursor", "offset", p.offset, "error", err)
		}
	}

	if p.hub != nil {
		p.hub.Publish(events.TypePollerBatch, map[string]any{
			"updates":  len(updates),
			"enqueued": enqueued,
			"offset":   p.offset,
		})
	}

	p.logger.Debug("batch enqueued", "updates", len(updates), "enqueued", enqueued, "offset", p.offset)
	return nil
}
