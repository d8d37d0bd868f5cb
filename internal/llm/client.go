package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tmadden/marvin/internal/config"
	"github.com/tmadden/marvin/internal/httpkit"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a backend client. timeout bounds a single chat
// call end to end; the dispatcher layers its retry policy on top.
func NewClient(baseURL, apiKey string, temperature float64, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		temperature: temperature,
		httpClient:  httpkit.NewClient(httpkit.WithTimeout(timeout), httpkit.WithLogger(logger)),
		logger:      logger,
	}
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

// chatWire is the chat completions response body.
type chatWire struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// transientStatusError marks 5xx-class backend failures so the
// dispatcher treats them like timeouts (retry, then degrade).
type transientStatusError struct {
	status int
	body   string
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.status, e.body)
}

// Chat sends one chat completion request. The tools schema is
// forwarded verbatim so the model can decide when to call a tool.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		Tools:       tools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "backend request", "payload", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &transientStatusError{
			status: resp.StatusCode,
			body:   httpkit.ReadErrorBody(resp.Body, 2048),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var wire chatWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("backend error: %s", wire.Error.Message)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	choice := wire.Choices[0]
	return &ChatResponse{
		Model:        wire.Model,
		Message:      choice.Message,
		FinishReason: choice.FinishReason,
		Usage:        wire.Usage,
	}, nil
}

// IsTimeout reports whether err is a transient transport outcome:
// a context deadline, a network timeout, or a 5xx response. These are
// the only errors the dispatcher retries.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *transientStatusError
	return errors.As(err, &statusErr)
}
