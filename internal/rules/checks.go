package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
	"github.com/MikeSquared-Agency/quill/internal/signal"
)

// pattern is one named regular expression of a detection family.
type pattern struct {
	name string
	re   *regexp.Regexp
}

const tradeWords = `plumbing|hvac|heating|cooling|air|electric|electrical|roofing|landscaping|lawn|construction|remodeling|contracting|painting|cleaning|pest|pool|solar|realty|real estate|properties|mortgage|insurance|law|dental|salon|auto|garage|bakery`

// impersonationPatterns match the writer claiming the source author's business
// as their own.
var impersonationPatterns = []pattern{
	{"owns a trade business", regexp.MustCompile(`(?i)\bI\s+(?:own|run|operate|started|founded|manage)\s+(?:[\w'&.-]+\s+){0,5}?(?:` + tradeWords + `)\b`)},
	{"owns a company", regexp.MustCompile(`(?i)\bI\s+(?:own|run|operate|started|founded)\s+(?:a|an|my|the)\s+(?:[\w'&.-]+\s+){0,3}?(?:company|business|shop|firm|crew)\b`)},
	{"speaks from a named business", regexp.MustCompile(`\b[Aa]t\s+(?:[A-Z][\w'&.-]*\s+){1,4}(?:Plumbing|HVAC|Heating|Electric|Electrical|Roofing|Landscaping|Construction|Remodeling|Contracting|Painting|Cleaning|Realty|Properties|Services|Solutions)\b`)},
	{"claims my company", regexp.MustCompile(`(?i)\bmy\s+(?:company|business|team|crew|customers|clients|techs|technicians|shop|trucks)\b`)},
	{"speaks as we at", regexp.MustCompile(`(?i)\bwe\s+(?:specialize|install|repair|service)\b`)},
}

// thirdPersonPatterns match narration about the recipient instead of speech
// to them.
var thirdPersonPatterns = []pattern{
	{"they did", regexp.MustCompile(`(?i)\bthey(?:'re|\s+are|\s+have|'ve)?\s+(?:own|owns|run|runs|mentioned|said|posted|shared|wrote|noted|seem|seems|sound|sounds|closed|juggling|busy)\b`)},
	{"their thing", regexp.MustCompile(`(?i)\btheir\s+(?:business|post|comment|company|team|message|shop|work|week|clients|customers)\b`)},
	{"he or she did", regexp.MustCompile(`(?i)\b(?:he|she)(?:'s|\s+is)?\s+(?:owns|runs|mentioned|said|posted|shared|wrote|closed|juggling)\b`)},
	{"the author", regexp.MustCompile(`(?i)\b(?:this|the)\s+(?:person|user|author|poster)\b`)},
	// Lowercase only: "the Lead Desk" names the product.
	{"the lead", regexp.MustCompile(`\b(?:[Tt]his|[Tt]he)\s+lead\b`)},
}

// clauseBreakRE splits text into clauses so a business claim cannot span
// two of them.
var clauseBreakRE = regexp.MustCompile(`(?i)[,;:!?()]|\.(?:\s|$)|\s(?:because|and|but|so|since|when|while|after|before|until|which|where|who|though|although)\s`)

// ctaPatterns are the call-to-action shapes. Each counts once no matter how
// often it appears.
var ctaPatterns = []pattern{
	{"trailing question", regexp.MustCompile(`\?\s*["')\]]*\s*$`)},
	{"happy to", regexp.MustCompile(`(?i)\bhappy to\b`)},
	{"if you want", regexp.MustCompile(`(?i)\bif you want\b`)},
	{"let me know", regexp.MustCompile(`(?i)\blet me know\b`)},
	{"reach out", regexp.MustCompile(`(?i)\breach out\b`)},
	{"feel free", regexp.MustCompile(`(?i)\bfeel free\b`)},
}

// MaxCTAs is how many call-to-action patterns one reply may contain.
const MaxCTAs = 1

func firstMatch(patterns []pattern, text string) (pattern, string, bool) {
	for _, p := range patterns {
		if m := p.re.FindString(text); m != "" {
			return p, m, true
		}
	}
	return pattern{}, "", false
}

// CheckImpersonation fails when the text speaks as the owner of a business.
func CheckImpersonation(text string) (bool, string) {
	for _, clause := range clauseBreakRE.Split(text, -1) {
		if p, m, ok := firstMatch(impersonationPatterns, clause); ok {
			return false, fmt.Sprintf("impersonates the source author (%s: %q)", p.name, strings.TrimSpace(m))
		}
	}
	return true, ""
}

// CheckDirectedAtRecipient fails when the text narrates about the recipient
// in the third person.
func CheckDirectedAtRecipient(text string) (bool, string) {
	if p, m, ok := firstMatch(thirdPersonPatterns, text); ok {
		return false, fmt.Sprintf("talks about the recipient instead of to them (%s: %q)", p.name, strings.TrimSpace(m))
	}
	return true, ""
}

// CheckSpecificDetail passes when the text cites at least one grounding term
// from the analysis.
func CheckSpecificDetail(text string, e signal.Extract) (bool, string) {
	lower := strings.ToLower(text)
	for _, g := range e.Groundings() {
		if strings.Contains(lower, g) {
			return true, ""
		}
	}
	return false, "does not reference a specific detail from their message"
}

// CheckBrand requires the literal brand name.
func CheckBrand(text string, b catalog.Brand) (bool, string) {
	if b.Name == "" || strings.Contains(text, b.Name) {
		return true, ""
	}
	return false, fmt.Sprintf("does not mention %q", b.Name)
}

// CheckProduct requires the literal product name.
func CheckProduct(text string, b catalog.Brand) (bool, string) {
	if b.Product == "" || strings.Contains(text, b.Product) {
		return true, ""
	}
	return false, fmt.Sprintf("does not mention %q", b.Product)
}

// CheckLink requires the link, except in direct messages.
func CheckLink(text string, ch signal.Channel, b catalog.Brand) (bool, string) {
	if ch == signal.ChannelDM || b.Link == "" || strings.Contains(text, b.Link) {
		return true, ""
	}
	return false, fmt.Sprintf("does not include the link %s", b.Link)
}

// CountCTAs returns the names of the call-to-action patterns found in text.
func CountCTAs(text string) []string {
	var found []string
	for _, p := range ctaPatterns {
		if p.re.MatchString(text) {
			found = append(found, p.name)
		}
	}
	return found
}

// CheckSingleCTA allows at most MaxCTAs call-to-action patterns.
func CheckSingleCTA(text string) (bool, string) {
	found := CountCTAs(text)
	if len(found) <= MaxCTAs {
		return true, ""
	}
	return false, fmt.Sprintf("has %d calls to action (%s), at most %d allowed", len(found), strings.Join(found, ", "), MaxCTAs)
}
