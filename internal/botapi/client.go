package botapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stencilbot/stencilbot/internal/log"
)

const (
	// maxTextLen is the delivery limit for outbound text; longer payloads
	// are truncated to maxTextLen-1 runes plus the truncation marker.
	maxTextLen     = 2000
	truncationMark = "…"

	retryAttempts = 3
	retryBackoff  = 2 * time.Second

	httpTimeout = 45 * time.Second
)

// APIError is a Bot API level failure (ok=false in the response envelope).
// It is not retried; the request reached the API and was rejected.
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api %s failed: %s", e.Method, e.Description)
}

// Client talks to the Telegram Bot API over HTTP. Transport-level failures
// are retried up to retryAttempts times: the first retry waits retryBackoff,
// later attempts follow immediately.
type Client struct {
	httpc    *http.Client
	apiRoot  string
	token    string
	username string
	logger   *slog.Logger
}

// NewClient creates a Client. apiRoot is the API base URL without a trailing
// slash, e.g. "https://api.telegram.org".
func NewClient(apiRoot, token, username string) *Client {
	return &Client{
		httpc:    &http.Client{Timeout: httpTimeout},
		apiRoot:  strings.TrimRight(apiRoot, "/"),
		token:    token,
		username: username,
		logger:   log.WithComponent("botapi"),
	}
}

// Username returns the configured bot username, if any.
func (c *Client) Username() string { return c.username }

// GetUpdates long-polls the update feed starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.FormatInt(int64(timeout/time.Second), 10))

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage delivers text to a chat. Empty text is ignored; oversized text
// is truncated. replyTo <= 0 means no reply reference.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		c.logger.Warn("empty message ignored", "chat_id", chatID, "reply_to", replyTo)
		return nil
	}
	text = Truncate(text)

	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	if replyTo > 0 {
		params.Set("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// AnswerInlineQuery responds to an inline query with an ordered result list.
func (c *Client) AnswerInlineQuery(ctx context.Context, queryID string, results []InlineResult) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal inline results: %w", err)
	}

	params := url.Values{}
	params.Set("inline_query_id", queryID)
	params.Set("results", string(encoded))
	return c.call(ctx, "answerInlineQuery", params, nil)
}

// Truncate enforces the outbound text limit.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTextLen {
		return text
	}
	return string(runes[:maxTextLen-1]) + truncationMark
}

// call posts a method with form-encoded params and decodes the result into
// out (if non-nil). Network and decode failures are retried; an API-level
// rejection is returned immediately.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiRoot, c.token, method)
	body := params.Encode()

	var lastErr error
	for att := 0; att < retryAttempts; att++ {
		if att == 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("build %s request: %w", method, err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Debug("api call failed", "method", method, "attempt", att+1, "error", err)
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		var envelope struct {
			OK          bool            `json:"ok"`
			Description string          `json:"description"`
			Result      json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			lastErr = fmt.Errorf("decode response: %w", err)
			continue
		}

		if !envelope.OK {
			return &APIError{Method: method, Description: envelope.Description}
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, retryAttempts, lastErr)
}
