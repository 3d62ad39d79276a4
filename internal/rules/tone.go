// Package rules scores reply text against the fixed style contract. Every
// function here is pure and deterministic.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
)

var (
	shoutingRE   = regexp.MustCompile(`[A-Z]{3,}`)
	listMarkerRE = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
)

// MaxExclamations is the most '!' characters a reply may carry.
const MaxExclamations = 1

// ToneResult is the outcome of ValidateTone.
type ToneResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// FindBannedPhrases returns every catalog phrase found in text, in catalog
// order. A nil result means the text passes.
func FindBannedPhrases(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range catalog.BannedPhrases {
		if strings.Contains(lower, phrase) {
			found = append(found, phrase)
		}
	}
	return found
}

// ValidateTone runs the four tone checks. Each failing check adds exactly one
// issue.
func ValidateTone(text string) ToneResult {
	issues := []string{}

	if banned := FindBannedPhrases(text); len(banned) > 0 {
		issues = append(issues, "uses banned phrases: "+strings.Join(banned, ", "))
	}
	if n := strings.Count(text, "!"); n > MaxExclamations {
		issues = append(issues, fmt.Sprintf("uses %d exclamation marks, at most %d allowed", n, MaxExclamations))
	}
	if m := shoutingRE.FindString(text); m != "" {
		issues = append(issues, fmt.Sprintf("shouts with consecutive capitals (%q)", m))
	}
	if listMarkerRE.MatchString(text) {
		issues = append(issues, "starts a line with a bullet or number marker")
	}

	return ToneResult{Valid: len(issues) == 0, Issues: issues}
}
