package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client generates completions from a local model server
type Client interface {
	// Generate runs one non-streaming completion
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Health reports whether the model server answers
	Health(ctx context.Context) error
}

// ErrInvalidRequest is returned before any network call when a request is incomplete
var ErrInvalidRequest = errors.New("llm: invalid request")

// StatusError is returned when the server answers with a non-200 status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM returned status %d: %s", e.Code, e.Body)
}

// GenerateRequest is the Ollama /api/generate body
type GenerateRequest struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt"`
	System    string                 `json:"system,omitempty"`
	Format    string                 `json:"format,omitempty"` // "json" constrains output to a JSON value
	Stream    bool                   `json:"stream"`
	Options   map[string]interface{} `json:"options,omitempty"`
	KeepAlive string                 `json:"keep_alive,omitempty"`
}

// GenerateResponse carries the completion text and the counters used for metrics
type GenerateResponse struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Response        string    `json:"response"`
	Done            bool      `json:"done"`
	TotalDuration   int64     `json:"total_duration"` // nanoseconds
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
}

// Option configures an Ollama client
type Option func(*ollamaClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ollamaClient) { c.http = hc }
}

// WithTimeout sets the backstop HTTP timeout. Callers still bound each
// request with their own context deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *ollamaClient) { c.http.Timeout = d }
}

type ollamaClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewOllamaClient creates a client for an Ollama server at baseURL
func NewOllamaClient(baseURL string, logger *slog.Logger, opts ...Option) Client {
	c := &ollamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ollamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	switch {
	case req.Model == "":
		return nil, fmt.Errorf("%w: model is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Prompt) == "":
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	started := time.Now()
	var out GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/generate", body, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("LLM response received",
		"model", req.Model,
		"duration_ms", time.Since(started).Milliseconds(),
		"eval_count", out.EvalCount,
		"response_length", len(out.Response))
	return &out, nil
}

func (c *ollamaClient) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// do sends a request and decodes a JSON answer into out when out is non-nil
func (c *ollamaClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// DefaultGenerateRequest builds a deterministic JSON-format request sized for
// short classification answers
func DefaultGenerateRequest(model, prompt string) GenerateRequest {
	return GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Format: "json",
		Options: map[string]interface{}{
			"temperature": 0.0,
			"num_predict": 64,
		},
		KeepAlive: "30m",
	}
}
