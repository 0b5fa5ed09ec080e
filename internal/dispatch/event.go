package dispatch

import "github.com/stencilbot/stencilbot/internal/botapi"

// Event is an inbound event decoded at the queue boundary. The closed set of
// variants is InlineQueryEvent and MessageEvent; handlers switch on the
// concrete type instead of probing optional fields.
type Event interface {
	eventKind() string
}

// InlineQueryEvent is an inline-mode query to render.
type InlineQueryEvent struct {
	QueryID string
	Text    string
}

func (InlineQueryEvent) eventKind() string { return "inline_query" }

// MessageEvent is a chat message, possibly carrying a command or a document.
type MessageEvent struct {
	ChatID    int64
	ChatType  string
	MessageID int64
	Text      string
	Document  *botapi.Document
}

func (MessageEvent) eventKind() string { return "message" }

// FromUpdate decodes a raw update into an Event. Updates that carry neither
// an inline query nor a message are skipped.
func FromUpdate(u botapi.Update) (Event, bool) {
	switch {
	case u.InlineQuery != nil:
		return InlineQueryEvent{
			QueryID: u.InlineQuery.ID,
			Text:    u.InlineQuery.Query,
		}, true
	case u.Message != nil:
		return MessageEvent{
			ChatID:    u.Message.Chat.ID,
			ChatType:  u.Message.Chat.Type,
			MessageID: u.Message.MessageID,
			Text:      u.Message.Text,
			Document:  u.Message.Document,
		}, true
	default:
		return nil, false
	}
}
