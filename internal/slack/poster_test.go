package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sampleReview() DraftReview {
	return DraftReview{
		DraftID:    "6f1c2b1e-0000-0000-0000-000000000000",
		LeadID:     "lead-42",
		Channel:    "comment",
		Intent:     "reply",
		SourceText: "Just closed on 3 properties this week!",
		ReplyText:  "I own a real estate business too!\nHappy to help.",
		Issues:     []string{"impersonates the source author", "does not mention \"Lead Desk\""},
		Failures:   []string{"validation: impersonates the source author", "repair: generation failed: overloaded"},
	}
}

func TestFormatDraftReview(t *testing.T) {
	msg := formatDraftReview(sampleReview())

	checks := []string{
		"Flagged comment draft",
		"(reply)",
		"lead-42",
		"6f1c2b1e",
		"> Just closed on 3 properties this week!",
		"> I own a real estate business too!\n> Happy to help.",
		"Failing checks: 2",
		"• impersonates the source author",
		"Pipeline log:",
		"2. repair: generation failed: overloaded",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q\n%s", check, msg)
		}
	}
}

func TestFormatDraftReview_EmptyReplyAndLongSource(t *testing.T) {
	r := sampleReview()
	r.ReplyText = ""
	r.SourceText = strings.Repeat("x", maxSourceChars+50)
	r.LeadID = ""

	msg := formatDraftReview(r)
	if !strings.Contains(msg, "_(empty)_") {
		t.Errorf("expected empty reply marker, got %q", msg)
	}
	if strings.Contains(msg, strings.Repeat("x", maxSourceChars+1)) {
		t.Error("expected source text to be truncated")
	}
	if strings.Contains(msg, "for lead") {
		t.Error("expected no lead line without a lead id")
	}
}

func TestPostDraftForReview_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}
		if text, _ := payload["text"].(string); !strings.Contains(text, "Flagged comment draft") {
			t.Errorf("unexpected text: %v", payload["text"])
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostDraftForReview(context.Background(), sampleReview())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}
}

func TestPostDraftForReview_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	_, err := p.PostDraftForReview(context.Background(), sampleReview())
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected channel_not_found error, got %v", err)
	}
}

func TestPostThread(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "2.0"})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	if err := p.PostThread(context.Background(), "1.0", "what was wrong?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["thread_ts"] != "1.0" || payload["text"] != "what was wrong?" {
		t.Errorf("unexpected payload: %v", payload)
	}
}
