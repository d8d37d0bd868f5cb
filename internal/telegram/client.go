// Package telegram is the delivery transport: a minimal Bot API client
// covering what the bridge and the reminder poller need. Outbound text
// over the per-message length cap is pre-split into ordered parts; a
// multi-part send only succeeds once every part is delivered.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmadden/marvin/internal/httpkit"
	"github.com/tmadden/marvin/internal/markup"
)

// DefaultAPIURL is the hosted Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Client is a Telegram Bot API client.
type Client struct {
	token   string
	baseURL string
	// httpClient has no overall timeout: getUpdates long-polls, and
	// every call carries its own context deadline.
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Bot API client. apiURL overrides the endpoint
// for tests and self-hosted servers; empty means the hosted API.
func NewClient(token, apiURL string, logger *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:   token,
		baseURL: apiURL,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithRetry(2, 2*time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call invokes one Bot API method, decoding the result into out when
// out is non-nil. Non-ok responses surface as *APIError.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var wire apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if !wire.OK {
		return &APIError{Code: wire.ErrorCode, Description: wire.Description}
	}

	if out != nil {
		if err := json.Unmarshal(wire.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// sendMessageParams is the sendMessage request body.
type sendMessageParams struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMessage delivers text to a chat. ModeMarkdown renders the text
// to the API's HTML subset first. Text over the length cap is split at
// line boundaries and sent as ordered parts; the first failed part
// aborts the remainder and the whole send reports that failure.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, mode ParseMode) error {
	parseMode := ""
	if mode == ModeMarkdown {
		text = markup.Render(text)
		parseMode = "HTML"
	}

	parts := splitText(text, MessageLimit)
	for i, part := range parts {
		if err := c.sendPart(ctx, chatID, part, parseMode); err != nil {
			return fmt.Errorf("send part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

// sendPart sends one chunk. A 400 on an HTML-formatted part usually
// means the rendered entities did not survive splitting; the part is
// retried once as plain text before the failure is surfaced.
func (c *Client) sendPart(ctx context.Context, chatID int64, text, parseMode string) error {
	err := c.call(ctx, "sendMessage", sendMessageParams{ChatID: chatID, Text: text, ParseMode: parseMode}, nil)
	if err == nil || parseMode == "" || !errors.Is(err, ErrBadRequest) {
		return err
	}

	c.logger.Debug("formatted send rejected, retrying as plain text",
		"chat_id", chatID,
		"error", err,
	)
	return c.call(ctx, "sendMessage", sendMessageParams{ChatID: chatID, Text: text}, nil)
}

// SendTyping signals "composing" to the chat. The indicator expires on
// the Telegram side after a few seconds, so the caller re-sends it on
// a cadence while work is in flight.
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	return c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	}, nil)
}

// GetUpdates long-polls for new updates past offset. timeoutSec is the
// server-side hold; the request context should allow a little longer.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// Me fetches the bot's own identity, used as a startup connectivity
// check.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", map[string]any{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
