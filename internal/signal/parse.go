package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when the model output contains no {...} span at all.
var ErrNoJSON = errors.New("signal: no JSON object in model output")

// jsonObjectRE is greedy on purpose: it spans from the first '{' to the last
// '}' so prose before and after the object is dropped.
var jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)

// ValidationError lists every structural problem found in an analysis.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "signal: invalid analysis: " + strings.Join(e.Problems, "; ")
}

// wireExtract mirrors Extract with pointers so missing fields can be told
// apart from zero values.
type wireExtract struct {
	RawText          *string       `json:"raw_text"`
	Channel          *string       `json:"channel"`
	Intent           *string       `json:"intent"`
	Detected         *wireDetected `json:"detected"`
	Values           *[]string     `json:"values"`
	Pressures        *[]string     `json:"pressures"`
	Risks            *[]string     `json:"risks"`
	Openings         *[]string     `json:"openings"`
	Stage            *string       `json:"stage"`
	DoNotSay         *[]string     `json:"do_not_say"`
	RecommendedAngle *string       `json:"recommended_angle"`
	Confidence       *float64      `json:"confidence"`
}

type wireDetected struct {
	PersonName      *string  `json:"person_name"`
	BusinessName    *string  `json:"business_name"`
	Trade           *string  `json:"trade"`
	Location        *string  `json:"location"`
	ServiceKeywords []string `json:"service_keywords"`
}

// ExtractJSON returns the first greedy {...} span of raw.
func ExtractJSON(raw string) (string, error) {
	m := jsonObjectRE.FindString(raw)
	if m == "" {
		return "", ErrNoJSON
	}
	return m, nil
}

// Parse turns raw Analyze output into a validated Extract. The request's own
// text, channel and intent always replace whatever the model echoed back.
func Parse(raw string, in Input) (Extract, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return Extract{}, err
	}

	var w wireExtract
	if err := json.Unmarshal([]byte(obj), &w); err != nil {
		return Extract{}, fmt.Errorf("decode analysis: %w", err)
	}

	var problems []string
	missing := func(name string) { problems = append(problems, name+" is required") }

	if w.Channel != nil && !Channel(*w.Channel).Valid() {
		problems = append(problems, fmt.Sprintf("channel %q is not one of comment, dm, followup", *w.Channel))
	}
	if w.Intent != nil && !Intent(*w.Intent).Valid() {
		problems = append(problems, fmt.Sprintf("intent %q is not one of reply, invite, support, nurture, clarify", *w.Intent))
	}
	if w.Detected == nil {
		missing("detected")
	}
	for _, f := range []struct {
		name string
		v    *[]string
	}{
		{"values", w.Values},
		{"pressures", w.Pressures},
		{"risks", w.Risks},
		{"openings", w.Openings},
		{"do_not_say", w.DoNotSay},
	} {
		if f.v == nil {
			missing(f.name)
		}
	}
	if w.Stage == nil {
		missing("stage")
	}
	if w.RecommendedAngle == nil {
		missing("recommended_angle")
	}
	if w.Confidence == nil {
		missing("confidence")
	}
	if len(problems) > 0 {
		return Extract{}, &ValidationError{Problems: problems}
	}

	e := Extract{
		RawText: in.WhatTheySaid,
		Channel: in.Channel,
		Intent:  in.Intent,
		Detected: Detected{
			PersonName:      nonEmpty(w.Detected.PersonName),
			BusinessName:    nonEmpty(w.Detected.BusinessName),
			Trade:           nonEmpty(w.Detected.Trade),
			Location:        nonEmpty(w.Detected.Location),
			ServiceKeywords: labels(w.Detected.ServiceKeywords),
		},
		Values:           labels(*w.Values),
		Pressures:        labels(*w.Pressures),
		Risks:            labels(*w.Risks),
		Openings:         labels(*w.Openings),
		Stage:            Stage(strings.TrimSpace(*w.Stage)),
		DoNotSay:         labels(*w.DoNotSay),
		RecommendedAngle: strings.TrimSpace(*w.RecommendedAngle),
		Confidence:       *w.Confidence,
	}
	if err := e.Validate(); err != nil {
		return Extract{}, err
	}
	return e, nil
}

// Validate checks enum membership, the confidence range and required text.
// It is structural only: well-formed invented content passes.
func (e Extract) Validate() error {
	var problems []string
	if !e.Channel.Valid() {
		problems = append(problems, fmt.Sprintf("channel %q is not one of comment, dm, followup", e.Channel))
	}
	if !e.Intent.Valid() {
		problems = append(problems, fmt.Sprintf("intent %q is not one of reply, invite, support, nurture, clarify", e.Intent))
	}
	if !e.Stage.Valid() {
		problems = append(problems, fmt.Sprintf("stage %q is not one of solo_owner, small_team, growing, stabilizing, unknown", e.Stage))
	}
	if strings.TrimSpace(e.RecommendedAngle) == "" {
		problems = append(problems, "recommended_angle must not be empty")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		problems = append(problems, fmt.Sprintf("confidence %v is outside 0-1", e.Confidence))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

func labels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
