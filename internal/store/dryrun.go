package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobalert/internal/model"
)

// DryRunStore reads alerts and known postings from an inner repository but
// never writes. Inserted postings are echoed back with fresh identities, so a
// dry-run check reports what it would have stored and mailed.
type DryRunStore struct {
	alerts model.AlertRepository
	jobs   model.JobRepository
}

// NewDryRunStore wraps the given repositories.
func NewDryRunStore(alerts model.AlertRepository, jobs model.JobRepository) *DryRunStore {
	return &DryRunStore{alerts: alerts, jobs: jobs}
}

func (s *DryRunStore) GetAlert(ctx context.Context, id string) (*model.JobAlert, error) {
	return s.alerts.GetAlert(ctx, id)
}

func (s *DryRunStore) ListActiveAlerts(ctx context.Context, freq model.Frequency) ([]model.JobAlert, error) {
	return s.alerts.ListActiveAlerts(ctx, freq)
}

func (s *DryRunStore) ListKnownJobURLs(ctx context.Context, alertID string) (map[string]struct{}, error) {
	return s.jobs.ListKnownJobURLs(ctx, alertID)
}

func (s *DryRunStore) InsertJobs(_ context.Context, alertID string, postings []model.RawPosting) ([]model.JobPosting, error) {
	now := time.Now().UTC()
	out := make([]model.JobPosting, 0, len(postings))
	for _, p := range postings {
		job := newJobPosting(alertID, p, now)
		job.ID = "dry-run-" + uuid.NewString()
		out = append(out, job)
	}
	return out, nil
}

// ListUnnotifiedJobs reports nothing pending so a dry run only shows new postings.
func (s *DryRunStore) ListUnnotifiedJobs(_ context.Context, _ string) ([]model.JobPosting, error) {
	return nil, nil
}

func (s *DryRunStore) MarkNotified(_ context.Context, _ []string) error { return nil }
