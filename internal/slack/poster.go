package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxSourceChars caps how much of the source text is quoted in a review.
const maxSourceChars = 600

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// DraftReview is what a reviewer sees for one flagged draft.
type DraftReview struct {
	DraftID    string
	LeadID     string
	Channel    string
	Intent     string
	SourceText string
	ReplyText  string
	Issues     []string
	Failures   []string
}

// PostDraftForReview posts a flagged draft to the review channel. It returns
// the message timestamp used to match reactions back to the draft.
func (p *Poster) PostDraftForReview(ctx context.Context, review DraftReview) (string, error) {
	text := formatDraftReview(review)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "React: :+1: send as is | :-1: reject | :shrug: skip",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted draft to slack", "ts", ts, "draft_id", review.DraftID, "lead_id", review.LeadID)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatDraftReview(r DraftReview) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Flagged %s draft* (%s)", r.Channel, r.Intent)
	if r.LeadID != "" {
		fmt.Fprintf(&sb, " for lead %s", r.LeadID)
	}
	sb.WriteString("\n")
	if r.DraftID != "" {
		fmt.Fprintf(&sb, "*Draft:* %s\n", r.DraftID)
	}

	source := r.SourceText
	if len([]rune(source)) > maxSourceChars {
		source = string([]rune(source)[:maxSourceChars]) + "…"
	}
	fmt.Fprintf(&sb, "\n*They said:*\n%s\n", quote(source))
	fmt.Fprintf(&sb, "\n*Reply:*\n%s\n", quote(r.ReplyText))

	if len(r.Issues) > 0 {
		fmt.Fprintf(&sb, "\n*Failing checks: %d*\n", len(r.Issues))
		for _, issue := range r.Issues {
			fmt.Fprintf(&sb, "• %s\n", issue)
		}
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&sb, "\n*Pipeline log:*\n")
		for i, f := range r.Failures {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, f)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func quote(s string) string {
	if strings.TrimSpace(s) == "" {
		return "> _(empty)_"
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
