package notifier

import (
	"strings"
	"testing"

	"github.com/amishk599/jobalert/internal/model"
)

func TestBuildDigest_ContainsEveryPosting(t *testing.T) {
	postings := []model.JobPosting{samplePosting("1", "Backend Engineer"), samplePosting("2", "Platform Engineer")}

	d, err := BuildDigest(sampleAlert(), postings, "https://jobs.example.org/")
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}

	if d.Recipient != "dev@example.com" {
		t.Errorf("recipient = %q", d.Recipient)
	}
	if d.Subject != "2 New Jobs Found - Job Alert Bot" {
		t.Errorf("subject = %q", d.Subject)
	}
	for _, want := range []string{
		"Backend Engineer",
		"Platform Engineer",
		"https://acme.com/jobs/1",
		"Remote, US",
		"We found 2 new jobs",
		"Acme, https://careers.globex.com",
		"engineer, golang",
		"https://jobs.example.org/dashboard",
	} {
		if !strings.Contains(d.HTML, want) {
			t.Errorf("digest html missing %q", want)
		}
	}
}

func TestBuildDigest_EscapesScrapedText(t *testing.T) {
	p := samplePosting("1", `<script>alert("x")</script>`)
	p.URL = "javascript:alert(1)"

	d, err := BuildDigest(sampleAlert(), []model.JobPosting{p}, "")
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}

	if strings.Contains(d.HTML, "<script>") {
		t.Error("title was not escaped")
	}
	if strings.Contains(d.HTML, "javascript:") {
		t.Error("non-http link was not neutralised")
	}
	if !strings.Contains(d.HTML, DefaultDashboardURL+"/dashboard") {
		t.Error("expected default dashboard url")
	}
}

func TestBuildDigest_SingularSubjectAndMissingLocation(t *testing.T) {
	p := samplePosting("1", "Engineer")
	p.Location = ""
	p.Description = ""

	d, err := BuildDigest(sampleAlert(), []model.JobPosting{p}, "")
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}
	if d.Subject != "1 New Job Found - Job Alert Bot" {
		t.Errorf("subject = %q", d.Subject)
	}
	if strings.Contains(d.HTML, `class="job-location"`+">") {
		t.Error("location block rendered without a location")
	}
	if !strings.Contains(d.HTML, "Click to view job details") {
		t.Error("missing placeholder for absent description")
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("a", 200)

	if got := Summarize(long); got != strings.Repeat("a", 150)+"..." {
		t.Errorf("long description = %q (len %d)", got, len(got))
	}
	if got := Summarize("short"); got != "short" {
		t.Errorf("short description = %q", got)
	}
	if got := Summarize("   "); got != "Click to view job details" {
		t.Errorf("blank description = %q", got)
	}
	if got := Summarize(strings.Repeat("é", 151)); got != strings.Repeat("é", 150)+"..." {
		t.Error("truncation should count characters, not bytes")
	}
}
