package strategy

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// cleanText returns the selection's text with whitespace runs collapsed.
func cleanText(s *goquery.Selection) string {
	return collapseSpace(s.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveHref resolves href against base. It returns "" when href is empty or
// cannot be parsed.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if !ref.IsAbs() {
			return ""
		}
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// RegistrableDomain keeps the last two labels of host ("www.foo.com" -> "foo.com").
// A port, if present, is dropped. Registry lookups are keyed by this value.
func RegistrableDomain(host string) string {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return host
	}
	return parts[len(parts)-2] + "." + parts[len(parts)-1]
}

// firstPathSegment returns "acme" for "https://jobs.lever.co/acme/123".
func firstPathSegment(u *url.URL) string {
	if u == nil {
		return ""
	}
	seg, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	return seg
}
