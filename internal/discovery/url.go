package discovery

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobalert/internal/model"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// ResolveURL returns the page to scrape for a company. URL references are used
// as-is; bare names become a best-guess https://careers.<slug>.com, which is a
// heuristic and will not resolve for most real companies.
func ResolveURL(target model.CompanyTarget) string {
	if target.IsURL {
		return NormalizeURL(target.Name)
	}
	slug := whitespaceRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(target.Name)), "")
	return NormalizeURL("https://careers." + slug + ".com")
}

// NormalizeURL prefixes https:// when raw has no http(s) scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}
