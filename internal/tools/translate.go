package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/tmadden/marvin/internal/httpkit"
)

const (
	translateAttempts  = 3
	translateBaseDelay = 500 * time.Millisecond
)

// RegisterTranslate adds the translate tool, which calls a
// LibreTranslate-compatible endpoint. The service is slow, so the tool
// is marked Slow and retries transient failures with jittered backoff.
func RegisterTranslate(reg *Registry, baseURL string, logger *slog.Logger) {
	client := httpkit.NewClient(
		httpkit.WithTimeout(30*time.Second),
		httpkit.WithLogger(logger),
	)
	reg.Register(Tool{
		Name:        "translate",
		Description: "Translate text between languages.",
		Slow:        true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type": "string",
				},
				"target": map[string]any{
					"type":        "string",
					"description": "Target language code, e.g. \"de\".",
				},
				"source": map[string]any{
					"type":        "string",
					"description": "Source language code. Defaults to auto-detection.",
				},
			},
			"required": []string{"text", "target"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if baseURL == "" {
				return "", fmt.Errorf("%w: no translation endpoint configured", ErrUnavailable)
			}
			return translate(ctx, client, baseURL, args)
		},
	})
}

func translate(ctx context.Context, client *http.Client, baseURL string, args map[string]any) (string, error) {
	source := stringArg(args, "source")
	if source == "" {
		source = "auto"
	}
	body, err := json.Marshal(map[string]string{
		"q":      stringArg(args, "text"),
		"source": source,
		"target": stringArg(args, "target"),
		"format": "text",
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < translateAttempts; attempt++ {
		if attempt > 0 {
			delay := translateBaseDelay << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(delay)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		out, err := translateOnce(ctx, client, baseURL, body)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func translateOnce(ctx context.Context, client *http.Client, baseURL string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate: %s: %s", resp.Status, httpkit.ReadErrorBody(resp.Body, 512))
	}
	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("translate: decoding response: %w", err)
	}
	return out.TranslatedText, nil
}
