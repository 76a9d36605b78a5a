// Package recognize calls the remote vision model that turns a card image
// into free text. The call is bounded by a per-attempt deadline and a fixed
// number of attempts; exhaustion is a typed, terminal outcome.
package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/carnetocr/carnetocr/internal/common"
)

// Error is the terminal outcome after every recognition attempt failed.
// It is not retryable at this layer; the worker records it as a job error.
type Error struct {
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recognition failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *Error) Unwrap() error { return e.Last }

// Client talks to an Ollama-style chat API.
type Client struct {
	cfg  common.RecognitionConfig
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg common.RecognitionConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/api"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		// The per-attempt deadline lives on the request context, not here.
		http: &http.Client{},
		log:  logger,
	}
}

// Recognize submits the image and returns the transcribed text. Each failed
// attempt (transport error, non-2xx response, empty text) backs off by
// RetryBackoff scaled with the attempt number. After MaxRetries attempts the
// typed *Error is returned.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		text, err := c.attempt(ctx, encoded)
		if err == nil {
			c.log.Info("recognize.ok", "attempt", attempt, "text_len", len(text))
			return text, nil
		}
		lastErr = err
		c.log.Warn("recognize.attempt_failed",
			"attempt", attempt,
			"max_retries", c.cfg.MaxRetries,
			"error", err,
		)

		// A cancelled caller is not a failed recognition; surface the
		// plain context error so it is never recorded as terminal.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < c.cfg.MaxRetries {
			backoff := c.cfg.RetryBackoff * time.Duration(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", &Error{Attempts: c.cfg.MaxRetries, Last: lastErr}
}

func (c *Client) attempt(ctx context.Context, encodedImage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": transcriptionPrompt,
				"images":  []string{encodedImage},
			},
		},
		"stream": false,
	}
	// Opaque model parameters from configuration, forwarded verbatim.
	for k, v := range c.cfg.Parameters {
		body[k] = v
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return "", err
	}

	var cr struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	text := strings.TrimSpace(cr.Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty recognition output")
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("recognize.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}
