// Package dispatch routes inbound events to their handlers: inline queries
// to the render pipeline, messages to the command handlers. A single loop
// consumes the queue; replies go out through the async delivery pool.
package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stencilbot/stencilbot/internal/botapi"
	"github.com/stencilbot/stencilbot/internal/events"
	"github.com/stencilbot/stencilbot/internal/log"
	"github.com/stencilbot/stencilbot/internal/render"
)

const startText = "This is the Text Image Render Bot. Send /help, or directly use its inline mode."

const helpText = "You can type text for images in its inline mode, seperate parameters by \"/\".\n" +
	"You can add your SVG template by sending SVG files, delete your template by " +
	"/delsvg [id]. The SVG must use positional placeholders ({0} is the full text, " +
	"{1} and so on are the parameters), and must be compatible with Inkscape."

const notImplementedText = "Not Implemented."

// RenderPipeline renders a request text against every registered template.
type RenderPipeline interface {
	RenderAll(ctx context.Context, text string) []string
}

// ReplySender delivers outbound replies.
type ReplySender interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
	AnswerInlineQuery(ctx context.Context, queryID string, results []botapi.InlineResult) error
}

// Submitter accepts fire-and-forget delivery tasks.
type Submitter interface {
	Submit(name string, run func(ctx context.Context) error)
}

// Dispatcher is the single-threaded consumer of the event queue.
type Dispatcher struct {
	queue    *Queue
	pipeline RenderPipeline
	api      ReplySender
	pool     Submitter
	urlRoot  string
	username string
	hub      *events.Hub
	logger   *slog.Logger
}

// New creates a Dispatcher. urlRoot is the public base URL under which
// artifacts are served.
func New(queue *Queue, pipeline RenderPipeline, api ReplySender, pool Submitter, urlRoot, username string, hub *events.Hub) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		pipeline: pipeline,
		api:      api,
		pool:     pool,
		urlRoot:  urlRoot,
		username: username,
		hub:      hub,
		logger:   log.WithComponent("dispatch"),
	}
}

// Run consumes the queue until ctx is cancelled. A failure while handling one
// event never terminates the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatch loop started")
	defer d.logger.Info("dispatch loop stopped")

	for {
		ev, err := d.queue.Pop(ctx)
		if err != nil {
			return err
		}
		d.handle(ctx, ev)
	}
}

// handle routes one event. Panics are confined here so a malformed event
// cannot take the loop down.
func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("failed to process an event", "kind", ev.eventKind(), "panic", r)
		}
	}()

	switch e := ev.(type) {
	case InlineQueryEvent:
		d.handleInlineQuery(ctx, e)
	case MessageEvent:
		d.handleMessage(ctx, e)
	}

	if d.hub != nil {
		d.hub.Publish(events.TypeDispatchHandled, map[string]any{"kind": ev.eventKind()})
	}
}

func (d *Dispatcher) handleInlineQuery(ctx context.Context, e InlineQueryEvent) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return
	}

	// The render runs synchronously on the dispatch thread; only the reply
	// is asynchronous. The pipeline bounds render latency per stage.
	ids := d.pipeline.RenderAll(ctx, text)
	d.logger.Info("rendered inline query", "text", text, "artifacts", len(ids))

	results := d.inlineResults(ids)
	d.pool.Submit("answer_inline_query", func(ctx context.Context) error {
		return d.api.AnswerInlineQuery(ctx, e.QueryID, results)
	})
}

func (d *Dispatcher) handleMessage(ctx context.Context, e MessageEvent) {
	if e.Document != nil {
		d.handleDocument(e)
		return
	}
	if e.Text == "" || e.ChatType != "private" {
		return
	}

	cmd, _ := botapi.ParseCommand(e.Text, d.username)

	var replyText string
	switch cmd {
	case "start":
		replyText = startText
	case "delsvg":
		// Template deletion is handled elsewhere; not wired up yet.
		replyText = notImplementedText
	default:
		replyText = helpText
	}

	chatID, messageID := e.ChatID, e.MessageID
	d.pool.Submit("send_message", func(ctx context.Context) error {
		return d.api.SendMessage(ctx, chatID, replyText, messageID)
	})
}

// handleDocument is the template-upload entry point. Uploads are not
// supported yet; the document is acknowledged in the log only.
func (d *Dispatcher) handleDocument(e MessageEvent) {
	d.logger.Info("document upload not implemented",
		"chat_id", e.ChatID, "file_id", e.Document.FileID)
}

func (d *Dispatcher) inlineResults(ids []string) []botapi.InlineResult {
	results := make([]botapi.InlineResult, 0, len(ids))
	for _, id := range ids {
		u := d.urlRoot + id + render.ArtifactExt
		results = append(results, botapi.InlineResult{
			Type:     "photo",
			ID:       id,
			PhotoURL: u,
			ThumbURL: u,
		})
	}
	return results
}
