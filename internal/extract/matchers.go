package extract

import (
	"regexp"
	"strings"
)

// InstitutionMatcher attempts to find an institution name in free text.
// Matchers run in order; the first hit wins.
type InstitutionMatcher interface {
	Match(text string) (string, bool)
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(text string) (string, bool) {
	if found := m.re.FindString(text); found != "" {
		return strings.TrimSpace(found), true
	}
	return "", false
}

// defaultInstitutionMatchers cover cards that print the institution without a
// label. Append new patterns here; call sites never change.
var defaultInstitutionMatchers = []InstitutionMatcher{
	// "Universidad" followed by up to three words.
	regexpMatcher{regexp.MustCompile(`(?i)universidad\s+[^\s,.]+(?:\s+[^\s,.]+){0,3}`)},
	// Word immediately preceding "University".
	regexpMatcher{regexp.MustCompile(`(?i)[^\s,.]+\s+university`)},
	// Known institution abbreviations.
	regexpMatcher{regexp.MustCompile(`\b(?:UPTC|UNAL|UIS)\b`)},
}
