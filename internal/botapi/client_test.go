package botapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("a", 2000)
	if Truncate(short) != short {
		t.Fatal("text at the limit must pass through unchanged")
	}

	long := strings.Repeat("a", 2050)
	got := Truncate(long)
	if utf8.RuneCountInString(got) != 2000 {
		t.Fatalf("expected 2000 runes, got %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, truncationMark) {
		t.Fatal("truncated text must end with the truncation marker")
	}
	if got[:1999] != long[:1999] {
		t.Fatal("truncation must keep the first 1999 characters")
	}
}

func TestGetUpdates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottok123/getUpdates") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("offset") != "7" {
			t.Errorf("unexpected offset %q", r.PostForm.Get("offset"))
		}
		if r.PostForm.Get("timeout") != "10" {
			t.Errorf("unexpected timeout %q", r.PostForm.Get("timeout"))
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":7,"inline_query":{"id":"q1","query":"hello"}},
			{"update_id":8,"message":{"message_id":5,"chat":{"id":42,"type":"private"},"text":"/start"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok123", "")
	updates, err := c.GetUpdates(context.Background(), 7, 10*time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].InlineQuery == nil || updates[0].InlineQuery.Query != "hello" {
		t.Fatalf("unexpected first update: %#v", updates[0])
	}
	if updates[1].Message == nil || updates[1].Message.Chat.Type != "private" {
		t.Fatalf("unexpected second update: %#v", updates[1])
	}
}

func TestCallRetriesTransportFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			// Garbage body forces a decode failure, which is transport-level.
			_, _ = w.Write([]byte("not json"))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "")
	if _, err := c.GetUpdates(context.Background(), 0, 0); err != nil {
		t.Fatalf("GetUpdates after retries: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestCallDoesNotRetryAPIErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: query is too old"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "")
	err := c.AnswerInlineQuery(context.Background(), "q1", nil)
	if err == nil {
		t.Fatal("expected API error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if !strings.Contains(apiErr.Description, "too old") {
		t.Fatalf("unexpected description: %q", apiErr.Description)
	}
	if hits.Load() != 1 {
		t.Fatalf("API errors must not be retried, got %d attempts", hits.Load())
	}
}

func TestSendMessageTruncatesAndSkipsEmpty(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = r.ParseForm()
		gotText = r.PostForm.Get("text")
		if r.PostForm.Get("reply_to_message_id") != "9" {
			t.Errorf("unexpected reply_to %q", r.PostForm.Get("reply_to_message_id"))
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "")

	// Empty text: ignored, no request made.
	if err := c.SendMessage(context.Background(), 42, "   ", 9); err != nil {
		t.Fatalf("SendMessage empty: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("empty message must not hit the API")
	}

	long := strings.Repeat("x", 2050)
	if err := c.SendMessage(context.Background(), 42, long, 9); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if utf8.RuneCountInString(gotText) != 2000 || !strings.HasSuffix(gotText, truncationMark) {
		t.Fatalf("delivered text not truncated correctly: %d runes", utf8.RuneCountInString(gotText))
	}
}

func TestSendMessageOmitsNonPositiveReplyTo(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Has("reply_to_message_id") {
			t.Error("reply_to_message_id must be omitted for non-positive ids")
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "")
	if err := c.SendMessage(context.Background(), 42, "hi", -1); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
}
