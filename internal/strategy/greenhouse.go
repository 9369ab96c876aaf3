package strategy

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobalert/internal/model"
)

// Greenhouse parses hosted Greenhouse job boards (boards.greenhouse.io/<token>).
// Each opening is a div.opening holding the title link and a span.location.
func Greenhouse(doc *goquery.Document, baseURL *url.URL) ([]model.RawPosting, error) {
	company := collapseSpace(strings.TrimPrefix(cleanText(doc.Find(".company-name").First()), "at "))
	if company == "" {
		company = firstPathSegment(baseURL)
	}

	var postings []model.RawPosting
	doc.Find("div.opening").Each(func(_ int, div *goquery.Selection) {
		a := div.Find("a").First()
		href, _ := a.Attr("href")
		title := cleanText(a)
		link := resolveHref(baseURL, href)
		if title == "" || link == "" {
			return
		}
		postings = append(postings, model.RawPosting{
			Title:    title,
			URL:      link,
			Company:  company,
			Location: cleanText(div.Find("span.location").First()),
		})
	})
	return postings, nil
}
