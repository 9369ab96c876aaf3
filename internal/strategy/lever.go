package strategy

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobalert/internal/model"
)

// Lever parses hosted Lever boards (jobs.lever.co/<company>).
func Lever(doc *goquery.Document, baseURL *url.URL) ([]model.RawPosting, error) {
	company := firstPathSegment(baseURL)

	var postings []model.RawPosting
	doc.Find("div.posting").Each(func(_ int, div *goquery.Selection) {
		a := div.Find("a.posting-title").First()
		href, _ := a.Attr("href")
		title := cleanText(a.Find("h5").First())
		if title == "" {
			title = cleanText(a)
		}
		link := resolveHref(baseURL, href)
		if title == "" || link == "" {
			return
		}
		postings = append(postings, model.RawPosting{
			Title:    title,
			URL:      link,
			Company:  company,
			Location: cleanText(div.Find(".sort-by-location").First()),
		})
	})
	return postings, nil
}
