package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
	"github.com/MikeSquared-Agency/quill/internal/signal"
)

// Checks are the boolean verdicts attached to every drafted reply.
type Checks struct {
	DirectedAtThem           bool `json:"directed_at_them"`
	ReferencesSpecificDetail bool `json:"references_specific_detail"`
	MentionsBrand            bool `json:"mentions_brand"`
	MentionsProduct          bool `json:"mentions_product"`
	IncludesLink             bool `json:"includes_link"`
	SingleCTA                bool `json:"single_cta"`
	NoBannedPhrases          bool `json:"no_banned_phrases"`
	NoImpersonation          bool `json:"no_impersonation"`
}

// All reports whether every check passed.
func (c Checks) All() bool {
	return c.DirectedAtThem && c.ReferencesSpecificDetail && c.MentionsBrand &&
		c.MentionsProduct && c.IncludesLink && c.SingleCTA && c.NoBannedPhrases && c.NoImpersonation
}

// Length carries the size metrics of a reply and the channel bounds.
type Length struct {
	Chars    int  `json:"chars"`
	Words    int  `json:"words"`
	MinWords int  `json:"min_words"`
	MaxWords int  `json:"max_words"`
	InRange  bool `json:"in_range"`
}

// Report is the full validation outcome for one candidate reply.
type Report struct {
	Checks Checks     `json:"checks"`
	Length Length     `json:"length"`
	Tone   ToneResult `json:"tone"`
	Issues []string   `json:"issues"`
}

// Valid reports whether the reply can ship without repair.
func (r Report) Valid() bool {
	return r.Checks.All() && r.Length.InRange && r.Tone.Valid
}

// CountWords splits on whitespace.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CheckLength compares the word count against the channel range.
func CheckLength(text string, ch signal.Channel) (Length, string) {
	lo, hi := ch.WordRange()
	l := Length{
		Chars:    utf8.RuneCountInString(text),
		Words:    CountWords(text),
		MinWords: lo,
		MaxWords: hi,
	}
	switch {
	case l.Words < lo:
		return l, fmt.Sprintf("too short: %d words, minimum is %d for %s", l.Words, lo, ch)
	case l.Words > hi:
		return l, fmt.Sprintf("too long: %d words, maximum is %d for %s", l.Words, hi, ch)
	}
	l.InRange = true
	return l, ""
}

// Validate runs the tone validator and every structural check against text,
// using e as ground truth for the specific-detail check and e.Channel for the
// length and link rules.
func Validate(text string, e signal.Extract, b catalog.Brand) Report {
	r := Report{Issues: []string{}}
	note := func(ok bool, reason string) bool {
		if !ok && reason != "" {
			r.Issues = append(r.Issues, reason)
		}
		return ok
	}

	r.Tone = ValidateTone(text)
	r.Issues = append(r.Issues, r.Tone.Issues...)
	r.Checks.NoBannedPhrases = len(FindBannedPhrases(text)) == 0

	r.Checks.NoImpersonation = note(CheckImpersonation(text))
	r.Checks.DirectedAtThem = note(CheckDirectedAtRecipient(text))
	r.Checks.ReferencesSpecificDetail = note(CheckSpecificDetail(text, e))
	r.Checks.MentionsBrand = note(CheckBrand(text, b))
	r.Checks.MentionsProduct = note(CheckProduct(text, b))
	r.Checks.IncludesLink = note(CheckLink(text, e.Channel, b))
	r.Checks.SingleCTA = note(CheckSingleCTA(text))

	length, reason := CheckLength(text, e.Channel)
	r.Length = length
	note(length.InRange, reason)

	return r
}
