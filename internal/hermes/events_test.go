package hermes

import (
	"encoding/json"
	"testing"
)

func TestReplyRequestedParsing(t *testing.T) {
	raw := `{
		"request_id": "req-001",
		"channel": "comment",
		"intent": "reply",
		"what_they_said": "Just closed on 3 properties this week!",
		"lead_id": "lead-42"
	}`

	var evt ReplyRequested
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("failed to parse ReplyRequested: %v", err)
	}

	if evt.RequestID != "req-001" {
		t.Errorf("expected request_id 'req-001', got '%s'", evt.RequestID)
	}
	if evt.Channel != "comment" || evt.Intent != "reply" {
		t.Errorf("unexpected channel/intent: %s/%s", evt.Channel, evt.Intent)
	}
	if evt.LeadID == nil || *evt.LeadID != "lead-42" {
		t.Errorf("expected lead_id 'lead-42', got %v", evt.LeadID)
	}
	if evt.Notes != nil {
		t.Errorf("expected nil notes, got %q", *evt.Notes)
	}
}

func TestReplyGeneratedOmitsEmptyIDs(t *testing.T) {
	data, err := json.Marshal(ReplyGenerated{Channel: "dm", Intent: "nurture", ReplyText: "hi", Failures: []string{}})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, key := range []string{"request_id", "draft_id", "lead_id"} {
		if _, ok := m[key]; ok {
			t.Errorf("expected %s to be omitted, got %v", key, m[key])
		}
	}
	if _, ok := m["failures"]; !ok {
		t.Error("expected failures to be present")
	}
}

func TestSubjectConstants(t *testing.T) {
	subjects := map[string]string{
		SubjectReplyRequested:  "quill.reply.requested",
		SubjectReplyGenerated:  "quill.reply.generated",
		SubjectReplyFlagged:    "quill.reply.flagged",
		SubjectReplyReviewed:   "quill.reply.reviewed",
		SubjectSlackReaction:   "swarm.slack.reaction",
		SubjectAgentRegistered: "swarm.agent.quill.registered",
	}
	for got, want := range subjects {
		if got != want {
			t.Errorf("expected subject %q, got %q", want, got)
		}
	}
}
