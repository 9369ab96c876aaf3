package strategy

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobalert/internal/model"
)

// Apple parses the jobs list of Apple's career site.
func Apple(doc *goquery.Document, baseURL *url.URL) ([]model.RawPosting, error) {
	var postings []model.RawPosting
	doc.Find("ul.jobs-list li").Each(func(_ int, li *goquery.Selection) {
		title := cleanText(li.Find("h2.job-title").First())
		href, _ := li.Find("a.job-link").First().Attr("href")
		link := resolveHref(baseURL, href)
		if title == "" || link == "" {
			return
		}
		postings = append(postings, model.RawPosting{
			Title:       title,
			URL:         link,
			Company:     "Apple",
			Location:    cleanText(li.Find("span.job-location").First()),
			Description: cleanText(li.Find("div.job-description").First()),
		})
	})
	return postings, nil
}
