package reply

import (
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
)

var (
	leadingMarkerRE = regexp.MustCompile(`(?m)^[ \t]*(?:[-*•]|\d+[.)])[ \t]+`)
	blankRunRE      = regexp.MustCompile(`\n{3,}`)
	codeFenceRE     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n(.*)\\n```$")
)

var quotePairs = [][2]string{
	{`"`, `"`},
	{`'`, `'`},
	{"“", "”"},
	{"‘", "’"},
}

// Clean turns raw model output into reply text: meta labels and list markers
// are removed, wrapping quotes are dropped and blank runs collapse to one
// empty line.
func Clean(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if m := codeFenceRE.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = stripMetaLabels(s)
	s = stripWrappingQuotes(s)
	s = leadingMarkerRE.ReplaceAllString(s, "")
	s = blankRunRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func stripMetaLabels(s string) string {
	for {
		stripped := false
		for _, label := range catalog.MetaLabels {
			if len(s) >= len(label) && strings.EqualFold(s[:len(label)], label) {
				s = strings.TrimSpace(s[len(label):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

func stripWrappingQuotes(s string) string {
	for _, q := range quotePairs {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			// "a" and "b" is two quotes, not one wrapped reply.
			if !strings.Contains(inner, q[0]) && !strings.Contains(inner, q[1]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}
