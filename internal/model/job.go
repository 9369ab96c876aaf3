package model

import (
	"context"
	"time"
)

// CompanyTarget is one company of an alert as seen by discovery.
type CompanyTarget struct {
	Name  string // free text, or an absolute URL when IsURL
	IsURL bool
}

// RawPosting is a candidate posting produced by an extraction strategy.
type RawPosting struct {
	Title       string
	URL         string // absolute; dedup key within an alert
	Company     string
	Description string
	Location    string
	PostedAt    *time.Time // nullable (few career pages expose it)
}

// JobPosting is a persisted posting belonging to an alert.
type JobPosting struct {
	ID          string
	AlertID     string
	Title       string
	Company     string
	Description string
	URL         string
	Location    string
	PostedAt    *time.Time
	Notified    bool
	CreatedAt   time.Time
}

// Digest is the single message sent for one check with new postings.
type Digest struct {
	Recipient string
	Subject   string
	HTML      string
	Alert     *JobAlert
	Postings  []JobPosting
}

// AlertRepository reads alerts owned by the alert-management collaborator.
type AlertRepository interface {
	// GetAlert returns ErrAlertNotFound when no alert has the given id.
	GetAlert(ctx context.Context, id string) (*JobAlert, error)
	// ListActiveAlerts returns every active alert; an empty frequency means any.
	ListActiveAlerts(ctx context.Context, freq Frequency) ([]JobAlert, error)
}

// JobRepository reads and writes the postings of an alert.
type JobRepository interface {
	ListKnownJobURLs(ctx context.Context, alertID string) (map[string]struct{}, error)
	// InsertJobs persists postings with notified=false. Postings whose URL is
	// already recorded for the alert are skipped, not reported as errors.
	InsertJobs(ctx context.Context, alertID string, postings []RawPosting) ([]JobPosting, error)
	ListUnnotifiedJobs(ctx context.Context, alertID string) ([]JobPosting, error)
	MarkNotified(ctx context.Context, ids []string) error
}

// PageFetcher downloads a career page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// Notifier delivers a digest through some transport.
type Notifier interface {
	Send(ctx context.Context, digest Digest) error
}
