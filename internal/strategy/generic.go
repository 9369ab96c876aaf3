package strategy

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobalert/internal/model"
)

// jobIndicators mark a link as a likely posting when found in its text or href.
var jobIndicators = []string{"jobs", "careers", "position", "opening", "apply"}

// Generic treats every hyperlink whose visible text or href mentions a job
// indicator as a posting. Company defaults to the page's registrable domain.
func Generic(doc *goquery.Document, baseURL *url.URL) ([]model.RawPosting, error) {
	company := ""
	if baseURL != nil {
		company = RegistrableDomain(baseURL.Host)
	}

	var postings []model.RawPosting
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := cleanText(a)
		if strings.TrimSpace(href) == "" || text == "" {
			return
		}
		if !looksLikeJobLink(text, href) {
			return
		}
		abs := resolveHref(baseURL, href)
		if abs == "" {
			return
		}
		postings = append(postings, model.RawPosting{
			Title:   text,
			URL:     abs,
			Company: company,
		})
	})
	return postings, nil
}

func looksLikeJobLink(text, href string) bool {
	text = strings.ToLower(text)
	href = strings.ToLower(href)
	for _, ind := range jobIndicators {
		if strings.Contains(text, ind) || strings.Contains(href, ind) {
			return true
		}
	}
	return false
}
