// Package notifier builds job digests and delivers them through a transport.
package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/amishk599/jobalert/internal/model"
)

// DefaultDashboardURL is linked from the digest footer when none is configured.
const DefaultDashboardURL = "http://localhost:3000"

const descriptionLimit = 150

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { background-color: #f5f5f5; padding: 20px; border-radius: 5px; margin-bottom: 20px; }
  .job { border: 1px solid #ddd; padding: 15px; margin-bottom: 15px; border-radius: 5px; }
  .job-title { font-weight: bold; font-size: 18px; margin-bottom: 5px; }
  .job-company, .job-location { color: #666; margin-bottom: 5px; }
  .job-link { display: inline-block; background-color: #4a7aff; color: white; padding: 8px 15px; text-decoration: none; border-radius: 3px; }
  .footer { margin-top: 30px; font-size: 12px; color: #999; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>New Job Matches Found!</h1>
    <p>We found {{.Count}} new {{.Noun}} matching your criteria.</p>
  </div>
{{range .Jobs}}
  <div class="job">
    <div class="job-title">{{.Title}}</div>
    <div class="job-company">{{.Company}}</div>
    {{if .Location}}<div class="job-location">{{.Location}}</div>{{end}}
    <p>{{.Summary}}</p>
    <a href="{{.URL}}" class="job-link">View Job</a>
  </div>
{{end}}
  <div class="footer">
    <p>You're receiving this email because you set up a job alert for {{.Companies}} with keywords {{.Keywords}}.</p>
    <p>To manage your alerts, <a href="{{.DashboardURL}}">visit your dashboard</a>.</p>
  </div>
</div>
</body>
</html>
`))

type digestJob struct {
	Title    string
	Company  string
	Location string
	Summary  string
	URL      template.URL
}

type digestData struct {
	Count        int
	Noun         string
	Jobs         []digestJob
	Companies    string
	Keywords     string
	DashboardURL string
}

// BuildDigest renders the single message for a batch of postings. Every
// interpolated value is escaped by html/template.
func BuildDigest(alert *model.JobAlert, postings []model.JobPosting, dashboardURL string) (model.Digest, error) {
	if dashboardURL == "" {
		dashboardURL = DefaultDashboardURL
	}
	data := digestData{
		Count:        len(postings),
		Noun:         plural(len(postings), "job"),
		Companies:    strings.Join(alert.CompanyNames(), ", "),
		Keywords:     strings.Join(alert.Words(), ", "),
		DashboardURL: strings.TrimSuffix(dashboardURL, "/") + "/dashboard",
	}
	for _, p := range postings {
		data.Jobs = append(data.Jobs, digestJob{
			Title:    p.Title,
			Company:  p.Company,
			Location: p.Location,
			Summary:  Summarize(p.Description),
			URL:      safeURL(p.URL),
		})
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return model.Digest{}, fmt.Errorf("rendering digest: %w", err)
	}

	return model.Digest{
		Recipient: alert.Email,
		Subject:   Subject(len(postings)),
		HTML:      buf.String(),
		Alert:     alert,
		Postings:  postings,
	}, nil
}

// Subject is the digest subject line for n postings.
func Subject(n int) string {
	return fmt.Sprintf("%d New %s Found - Job Alert Bot", n, plural(n, "Job"))
}

// Summarize shortens a description to its first 150 characters.
func Summarize(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return "Click to view job details"
	}
	runes := []rune(description)
	if len(runes) <= descriptionLimit {
		return description
	}
	return string(runes[:descriptionLimit]) + "..."
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

// safeURL passes through http(s) links only; anything else renders as "#".
func safeURL(raw string) template.URL {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return template.URL(raw)
	}
	return template.URL("#")
}
