package filter

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobalert/internal/model"
)

// KeywordFilter keeps postings whose title or description contains any of the
// keywords. Keywords are literal text matched case-insensitively; an empty
// keyword list matches everything.
type KeywordFilter struct {
	patterns []*regexp.Regexp
}

// NewKeywordFilter compiles one case-insensitive pattern per non-blank keyword.
// Regex metacharacters in keywords are escaped, so "C++" matches literally.
func NewKeywordFilter(keywords []string) *KeywordFilter {
	f := &KeywordFilter{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		f.patterns = append(f.patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
	}
	return f
}

// Match reports whether any keyword occurs in the posting's title or description.
func (f *KeywordFilter) Match(p model.RawPosting) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, re := range f.patterns {
		if re.MatchString(p.Title) {
			return true
		}
		if p.Description != "" && re.MatchString(p.Description) {
			return true
		}
	}
	return false
}

// Apply returns the postings that Match, preserving order.
func (f *KeywordFilter) Apply(postings []model.RawPosting) []model.RawPosting {
	if len(f.patterns) == 0 {
		return postings
	}
	var kept []model.RawPosting
	for _, p := range postings {
		if f.Match(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
