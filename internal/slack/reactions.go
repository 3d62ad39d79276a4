package slack

import (
	"encoding/json"
	"fmt"
)

// ReactionEvent is the structure received from slack-forwarder via NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// ReviewVerdict maps a Slack reaction to a review status.
type ReviewVerdict string

const (
	VerdictApproved ReviewVerdict = "approved"
	VerdictRejected ReviewVerdict = "rejected"
	VerdictSkipped  ReviewVerdict = "skipped"
	VerdictUnknown  ReviewVerdict = "unknown"
)

// ParseReaction converts a Slack reaction emoji name to a review verdict.
func ParseReaction(reaction string) ReviewVerdict {
	switch reaction {
	case "+1", "thumbsup":
		return VerdictApproved
	case "-1", "thumbsdown":
		return VerdictRejected
	case "shrug":
		return VerdictSkipped
	default:
		return VerdictUnknown
	}
}

// ParseReactionEvent parses a NATS payload from slack-forwarder. The
// forwarder wraps fields in a metadata map; a flat payload is accepted too.
func ParseReactionEvent(data []byte) (*ReactionEvent, error) {
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
		ReactionEvent
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse reaction wrapper: %w", err)
	}

	evt := wrapper.ReactionEvent
	if len(wrapper.Metadata) > 0 {
		evt = ReactionEvent{
			Reaction:  wrapper.Metadata["text"],
			UserID:    wrapper.Metadata["user_id"],
			Channel:   wrapper.Metadata["channel_id"],
			MessageTS: wrapper.Metadata["message_ts"],
		}
	}

	// Clean reaction text (remove colons if present)
	if len(evt.Reaction) > 2 && evt.Reaction[0] == ':' && evt.Reaction[len(evt.Reaction)-1] == ':' {
		evt.Reaction = evt.Reaction[1 : len(evt.Reaction)-1]
	}

	return &evt, nil
}
