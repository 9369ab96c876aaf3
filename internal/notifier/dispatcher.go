package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// Dispatcher sends one digest per batch of postings and marks them delivered.
//
// Delivery is at-least-once: if the send succeeds but the notified flag cannot
// be written, the postings stay unnotified and are mailed again by the next
// check of the alert.
type Dispatcher struct {
	transport    model.Notifier
	jobs         model.JobRepository
	dashboardURL string
	logger       *slog.Logger
}

// NewDispatcher wires a dispatcher to a transport and the job repository.
func NewDispatcher(transport model.Notifier, jobs model.JobRepository, dashboardURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transport:    transport,
		jobs:         jobs,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

// Notify is a no-op for an empty batch. A transport failure is returned as a
// *model.DeliveryError and leaves every posting unnotified.
func (d *Dispatcher) Notify(ctx context.Context, alert *model.JobAlert, postings []model.JobPosting) error {
	if len(postings) == 0 {
		return nil
	}

	digest, err := BuildDigest(alert, postings, d.dashboardURL)
	if err != nil {
		return fmt.Errorf("notifying alert %s: %w", alert.ID, err)
	}

	if err := d.transport.Send(ctx, digest); err != nil {
		return &model.DeliveryError{AlertID: alert.ID, Recipient: alert.Email, Err: err}
	}

	ids := make([]string, len(postings))
	for i, p := range postings {
		ids[i] = p.ID
	}
	if err := d.jobs.MarkNotified(ctx, ids); err != nil {
		return fmt.Errorf("notifying alert %s: digest sent but marking %d postings failed: %w", alert.ID, len(ids), err)
	}

	d.logger.Info("sent digest",
		"alert_id", alert.ID,
		"recipient", alert.Email,
		"postings", len(postings),
	)
	return nil
}

// SendTestMessage sends a digest with one dummy posting to verify the transport works.
func SendTestMessage(ctx context.Context, n model.Notifier, recipient, dashboardURL string) error {
	now := time.Now()
	alert := &model.JobAlert{
		ID:        "test-alert",
		Companies: []model.Company{{Name: "Job Alert Test"}},
		Keywords:  []model.Keyword{{Word: "integration"}},
		Frequency: model.FrequencyDaily,
		Email:     recipient,
		Active:    true,
		CreatedAt: now,
	}
	posting := model.JobPosting{
		ID:          "test-001",
		AlertID:     alert.ID,
		Title:       "Test Notification: Integration Verified",
		Company:     "Job Alert Test",
		Description: "If you can read this, digests from this installation reach you.",
		URL:         "https://www.ycombinator.com/jobs",
		Location:    "Everywhere",
		PostedAt:    &now,
		CreatedAt:   now,
	}
	digest, err := BuildDigest(alert, []model.JobPosting{posting}, dashboardURL)
	if err != nil {
		return err
	}
	return n.Send(ctx, digest)
}
