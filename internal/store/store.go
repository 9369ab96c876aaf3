// Package store persists alerts and their postings.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// Store is implemented by every storage backend. The alert CRUD methods are
// used by the alert-management commands; the monitoring pipeline only needs
// the model repository interfaces.
type Store interface {
	model.AlertRepository
	model.JobRepository

	CreateAlert(ctx context.Context, in model.AlertInput) (*model.JobAlert, error)
	UpdateAlert(ctx context.Context, id string, in model.AlertInput) (*model.JobAlert, error)
	SetAlertActive(ctx context.Context, id string, active bool) error
	DeleteAlert(ctx context.Context, id string) error
	ListAlerts(ctx context.Context) ([]model.JobAlert, error)
	ListJobs(ctx context.Context, alertID string) ([]model.JobPosting, error)
	Close() error
}

// Open returns the backend selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// validateInput checks the invariants the collaborator owns: at least one
// company and one keyword, a known frequency, and a recipient.
func validateInput(in model.AlertInput) error {
	if len(nonBlank(in.Companies)) == 0 {
		return fmt.Errorf("alert needs at least one company")
	}
	if len(nonBlank(in.Keywords)) == 0 {
		return fmt.Errorf("alert needs at least one keyword")
	}
	if !in.Frequency.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownFrequency, in.Frequency)
	}
	if !strings.Contains(in.Email, "@") {
		return fmt.Errorf("invalid email %q", in.Email)
	}
	return nil
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
