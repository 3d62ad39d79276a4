// Package catalog holds the fixed style contract that every drafted reply is
// scored against: banned vocabulary, the jargon subset repeated in prompts,
// meta labels models like to prepend, and the default brand terms.
package catalog

// BannedPhrases is marketing and SaaS jargon that must never appear in a reply.
// Matching is case-insensitive substring matching, so entries are lowercase.
var BannedPhrases = []string{
	"leverage",
	"synergy",
	"synergies",
	"game-changer",
	"game changer",
	"streamline",
	"cutting-edge",
	"cutting edge",
	"revolutionize",
	"seamless",
	"unlock",
	"supercharge",
	"best-in-class",
	"world-class",
	"circle back",
	"touch base",
	"low-hanging fruit",
	"move the needle",
	"paradigm",
	"disrupt",
	"value proposition",
	"empower",
	"elevate your",
	"growth hack",
	"holistic",
	"robust",
	"next level",
	"next-level",
	"10x",
	"turnkey",
	"all-in-one",
	"skyrocket",
}

// JargonTerms is the short list named explicitly in the system preamble and
// used as the do-not-say list of the fallback analysis.
var JargonTerms = []string{
	"leverage",
	"synergy",
	"streamline",
	"game-changer",
	"cutting-edge",
	"seamless",
	"unlock",
	"supercharge",
}

// MetaLabels are prefixes a model sometimes puts in front of the reply itself.
// They are stripped from the start of the text, case-insensitively.
var MetaLabels = []string{
	"here's the reply:",
	"here is the reply:",
	"here's a reply:",
	"here is a reply:",
	"here's:",
	"here is:",
	"reply:",
	"response:",
	"draft:",
	"message:",
	"comment:",
}

// Brand carries the literal terms every reply must mention.
type Brand struct {
	Name    string `json:"name"`
	Product string `json:"product"`
	Link    string `json:"link"`
}

// DefaultBrand is used when configuration does not override the brand terms.
var DefaultBrand = Brand{
	Name:    "2nd Look",
	Product: "Lead Desk",
	Link:    "https://2ndlook.app/desk",
}
