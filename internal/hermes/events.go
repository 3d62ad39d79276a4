package hermes

import "time"

// Subjects quill publishes or subscribes to.
const (
	SubjectReplyRequested  = "quill.reply.requested"
	SubjectReplyGenerated  = "quill.reply.generated"
	SubjectReplyFlagged    = "quill.reply.flagged"
	SubjectReplyReviewed   = "quill.reply.reviewed"
	SubjectSlackReaction   = "swarm.slack.reaction"
	SubjectAgentRegistered = "swarm.agent.quill.registered"
)

// ReplyRequested asks for a draft. RequestID is echoed on the resulting
// events so callers can correlate.
type ReplyRequested struct {
	RequestID    string  `json:"request_id"`
	Channel      string  `json:"channel"`
	Intent       string  `json:"intent"`
	WhatTheySaid string  `json:"what_they_said"`
	Notes        *string `json:"notes,omitempty"`
	LeadID       *string `json:"lead_id,omitempty"`
}

// ReplyGenerated announces every finished draft, valid or not.
type ReplyGenerated struct {
	RequestID    string          `json:"request_id,omitempty"`
	DraftID      string          `json:"draft_id,omitempty"`
	LeadID       string          `json:"lead_id,omitempty"`
	Channel      string          `json:"channel"`
	Intent       string          `json:"intent"`
	ReplyText    string          `json:"reply_text"`
	Valid        bool            `json:"valid"`
	Repaired     bool            `json:"repaired"`
	UsedFallback bool            `json:"used_fallback"`
	Checks       map[string]bool `json:"checks"`
	Failures     []string        `json:"failures"`
}

// ReplyFlagged is published when a draft still fails checks after repair.
type ReplyFlagged struct {
	RequestID string   `json:"request_id,omitempty"`
	DraftID   string   `json:"draft_id,omitempty"`
	LeadID    string   `json:"lead_id,omitempty"`
	Channel   string   `json:"channel"`
	Issues    []string `json:"issues"`
}

// ReplyReviewed carries a human verdict on a flagged draft.
type ReplyReviewed struct {
	DraftID  string `json:"draft_id"`
	LeadID   string `json:"lead_id,omitempty"`
	Verdict  string `json:"verdict"`
	Reviewer string `json:"reviewer,omitempty"`
}

// AgentRegistered is published once at startup.
type AgentRegistered struct {
	Agent      string    `json:"agent"`
	Subscribes []string  `json:"subscribes"`
	Publishes  []string  `json:"publishes"`
	Provider   string    `json:"provider"`
	StartedAt  time.Time `json:"started_at"`
}
