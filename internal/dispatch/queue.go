package dispatch

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO between the update poller (single producer) and
// the dispatch loop (single consumer). Push never blocks; Pop blocks until an
// event arrives or ctx is cancelled.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		signal: make(chan struct{}, 1),
	}
}

// Push appends an event to the queue.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest event, blocking while the queue is
// empty.
func (q *Queue) Pop(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			// Keep the signal armed so the consumer drains the backlog.
			if remaining > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
