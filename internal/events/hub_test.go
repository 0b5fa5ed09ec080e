package events

import (
	"testing"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeRenderCompleted, map[string]any{"template": "greet"})

	ev := <-ch
	if ev.Type != TypeRenderCompleted {
		t.Fatalf("unexpected type %q", ev.Type)
	}
	if ev.ID != 1 {
		t.Fatalf("unexpected id %d", ev.ID)
	}
}

func TestSnapshotSince(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	for i := 0; i < 6; i++ {
		h.Publish(TypeDispatchHandled, nil)
	}

	// Ring capacity 4: only the last 4 events remain.
	all := h.SnapshotSince(0)
	if len(all) != 4 {
		t.Fatalf("expected 4 buffered events, got %d", len(all))
	}
	if all[0].ID != 3 || all[3].ID != 6 {
		t.Fatalf("unexpected window: first=%d last=%d", all[0].ID, all[3].ID)
	}

	tail := h.SnapshotSince(5)
	if len(tail) != 1 || tail[0].ID != 6 {
		t.Fatalf("unexpected tail: %#v", tail)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; Publish must not block.
	for i := 0; i < 300; i++ {
		h.Publish(TypePollerBatch, nil)
	}
}
