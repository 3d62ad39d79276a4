// Package signal describes what a source message says: the typed analysis a
// model returns, how it is parsed and checked, and the fallback used when the
// model cannot produce one.
package signal

import "strings"

// Channel is the delivery context of a reply. It fixes length and link rules.
type Channel string

const (
	ChannelComment  Channel = "comment"
	ChannelDM       Channel = "dm"
	ChannelFollowup Channel = "followup"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelComment, ChannelDM, ChannelFollowup:
		return true
	}
	return false
}

// WordRange returns the inclusive word-count bounds for a reply on c.
func (c Channel) WordRange() (lo, hi int) {
	switch c {
	case ChannelDM:
		return 40, 140
	case ChannelFollowup:
		return 30, 90
	default:
		return 40, 110
	}
}

// Intent is what the reply is trying to do.
type Intent string

const (
	IntentReply   Intent = "reply"
	IntentInvite  Intent = "invite"
	IntentSupport Intent = "support"
	IntentNurture Intent = "nurture"
	IntentClarify Intent = "clarify"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentReply, IntentInvite, IntentSupport, IntentNurture, IntentClarify:
		return true
	}
	return false
}

// Stage is a coarse read of business maturity.
type Stage string

const (
	StageSoloOwner   Stage = "solo_owner"
	StageSmallTeam   Stage = "small_team"
	StageGrowing     Stage = "growing"
	StageStabilizing Stage = "stabilizing"
	StageUnknown     Stage = "unknown"
)

func (s Stage) Valid() bool {
	switch s {
	case StageSoloOwner, StageSmallTeam, StageGrowing, StageStabilizing, StageUnknown:
		return true
	}
	return false
}

// Detected holds entities found in the source text. Every field is empty when
// the text does not evidence it.
type Detected struct {
	PersonName      *string  `json:"person_name" jsonschema:"description=Name of the person who wrote the text. null unless it appears in the text."`
	BusinessName    *string  `json:"business_name" jsonschema:"description=Business named in the text. null unless it appears in the text."`
	Trade           *string  `json:"trade" jsonschema:"description=Trade or profession evidenced by the text. null when unclear."`
	Location        *string  `json:"location" jsonschema:"description=Place named in the text. null unless it appears in the text."`
	ServiceKeywords []string `json:"service_keywords" jsonschema:"description=Service-related words copied from the text. Empty when none."`
}

// Extract is the structured read of the source text produced by the Analyze
// step and consumed once by the Respond step.
type Extract struct {
	RawText          string   `json:"raw_text" jsonschema:"description=The source text verbatim."`
	Channel          Channel  `json:"channel" jsonschema:"enum=comment,enum=dm,enum=followup"`
	Intent           Intent   `json:"intent" jsonschema:"enum=reply,enum=invite,enum=support,enum=nurture,enum=clarify"`
	Detected         Detected `json:"detected"`
	Values           []string `json:"values" jsonschema:"description=Short labels for what the writer seems to value (e.g. honesty)."`
	Pressures        []string `json:"pressures" jsonschema:"description=Short labels for what is pressing on the writer (e.g. time)."`
	Risks            []string `json:"risks" jsonschema:"description=Short labels for how a reply could land badly (e.g. overwhelmed)."`
	Openings         []string `json:"openings" jsonschema:"description=Short labels for what a reply can pick up on (e.g. busy)."`
	Stage            Stage    `json:"stage" jsonschema:"enum=solo_owner,enum=small_team,enum=growing,enum=stabilizing,enum=unknown"`
	DoNotSay         []string `json:"do_not_say" jsonschema:"description=Phrases the reply must avoid."`
	RecommendedAngle string   `json:"recommended_angle" jsonschema:"description=One sentence guiding the reply."`
	Confidence       float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

// Input is what the caller knows before any analysis happens.
type Input struct {
	Channel      Channel
	Intent       Intent
	WhatTheySaid string
	Notes        string
}

// Groundings returns the lowercase terms a reply may cite to show it read the
// source text: service keywords, the person's name and the detected values.
func (e Extract) Groundings() []string {
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	for _, k := range e.Detected.ServiceKeywords {
		add(k)
	}
	if e.Detected.PersonName != nil {
		add(*e.Detected.PersonName)
	}
	for _, v := range e.Values {
		add(v)
	}
	return out
}
