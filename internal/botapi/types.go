// Package botapi is a minimal Telegram Bot API client covering the calls the
// dispatcher needs: getUpdates, sendMessage and answerInlineQuery.
package botapi

// Update is one inbound event from the update feed. Exactly one of the
// optional fields is expected to be set; unknown variants are skipped at the
// queue boundary.
type Update struct {
	UpdateID    int64        `json:"update_id"`
	Message     *Message     `json:"message,omitempty"`
	InlineQuery *InlineQuery `json:"inline_query,omitempty"`
}

// Message is a chat message, possibly carrying a document attachment.
type Message struct {
	MessageID int64     `json:"message_id"`
	Chat      Chat      `json:"chat"`
	Text      string    `json:"text,omitempty"`
	Document  *Document `json:"document,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Document is a file attachment on a message.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
}

// InlineQuery is an inline-mode query.
type InlineQuery struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// InlineResult is one entry in an answerInlineQuery response.
type InlineResult struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	PhotoURL string `json:"photo_url"`
	ThumbURL string `json:"thumb_url"`
}
