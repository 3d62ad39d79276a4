package signal

import "github.com/MikeSquared-Agency/quill/internal/catalog"

// FallbackConfidence marks an analysis that was not read from the source text.
const FallbackConfidence = 0.3

// FallbackAngle is the recommended angle of the fallback analysis.
const FallbackAngle = "Acknowledge what they shared in their own words and offer one low-pressure next step."

// Fallback returns the conservative analysis used when the Analyze step fails
// twice. It detects nothing, so the reply can only ground itself in the
// generic values below.
func Fallback(in Input) Extract {
	return Extract{
		RawText: in.WhatTheySaid,
		Channel: in.Channel,
		Intent:  in.Intent,
		Detected: Detected{
			ServiceKeywords: []string{},
		},
		Values:           []string{"honesty", "reliability"},
		Pressures:        []string{"time"},
		Risks:            []string{"sounding salesy"},
		Openings:         []string{"busy"},
		Stage:            StageUnknown,
		DoNotSay:         append([]string(nil), catalog.JargonTerms...),
		RecommendedAngle: FallbackAngle,
		Confidence:       FallbackConfidence,
	}
}
