// Package gemini is a generation backend on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MikeSquared-Agency/quill/internal/generation"
)

const defaultMaxTokens = 1024

var ErrEmptyResponse = errors.New("gemini: empty response")

// Client wraps the official genai client.
type Client struct {
	cli   *genai.Client
	model string
}

// Option adjusts the genai client config before it is built.
type Option func(*genai.ClientConfig)

// WithBaseURL overrides the API endpoint. Tests point it at httptest servers.
func WithBaseURL(url string) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = url
	}
}

func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{cli: cli, model: model}, nil
}

type trace struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	InputTokens  int32  `json:"input_tokens"`
	OutputTokens int32  `json:"output_tokens"`
	DurationMS   int64  `json:"duration_ms"`
}

// Generate implements generation.Client. System and developer prompts are
// sent together as the system instruction.
func (c *Client) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	if system := strings.TrimSpace(req.SystemPrompt + "\n\n" + req.DeveloperPrompt); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.cli.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	tr := trace{
		Provider:     "gemini",
		Model:        c.model,
		FinishReason: string(cand.FinishReason),
		DurationMS:   time.Since(start).Milliseconds(),
	}
	if u := resp.UsageMetadata; u != nil {
		tr.InputTokens = u.PromptTokenCount
		tr.OutputTokens = u.CandidatesTokenCount
	}
	raw, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("marshal trace: %w", err)
	}

	return &generation.Response{Content: text.String(), Trace: raw}, nil
}
