// Package generation defines the text generation capability the reply
// pipeline depends on. Backends live in their own packages.
package generation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Meta keys set by the pipeline on every request.
const (
	MetaStep    = "step"
	MetaChannel = "channel"
	MetaLeadID  = "lead_id"
)

// Request is one prompt to a generation backend.
type Request struct {
	SystemPrompt    string
	DeveloperPrompt string
	UserPrompt      string
	Meta            map[string]string
	MaxTokens       int
}

// Response is the raw model output. Trace is opaque diagnostic data passed
// through for logging and storage; callers never interpret it.
type Response struct {
	Content string          `json:"content"`
	Trace   json.RawMessage `json:"trace,omitempty"`
}

// Client sends a prompt to a backend and returns its raw text.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

type loggingClient struct {
	next   Client
	logger *slog.Logger
}

// WithLogging wraps c so every call is logged with its step, duration and
// payload sizes.
func WithLogging(c Client, logger *slog.Logger) Client {
	return &loggingClient{next: c, logger: logger}
}

func (l *loggingClient) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.next.Generate(ctx, req)
	attrs := []any{
		"step", req.Meta[MetaStep],
		"channel", req.Meta[MetaChannel],
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_chars", len(req.SystemPrompt) + len(req.DeveloperPrompt) + len(req.UserPrompt),
	}
	if err != nil {
		l.logger.WarnContext(ctx, "generation failed", append(attrs, "error", err)...)
		return nil, err
	}
	l.logger.DebugContext(ctx, "generation completed", append(attrs, "content_chars", len(resp.Content))...)
	return resp, nil
}
