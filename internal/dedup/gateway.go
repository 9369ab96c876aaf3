// Package dedup decides which discovered postings are new for an alert and
// persists them.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amishk599/jobalert/internal/model"
)

// Gateway persists only postings whose URL has not been recorded for the alert.
type Gateway struct {
	jobs   model.JobRepository
	logger *slog.Logger
}

// NewGateway creates a gateway over the job repository.
func NewGateway(jobs model.JobRepository, logger *slog.Logger) *Gateway {
	return &Gateway{jobs: jobs, logger: logger}
}

// PersistNew drops candidates already known for the alert (one read), drops
// repeated URLs within the batch, and inserts the rest with notified=false.
// It returns exactly the rows that were inserted; a URL that a concurrent
// writer stored first is treated as known.
func (g *Gateway) PersistNew(ctx context.Context, alertID string, candidates []model.RawPosting) ([]model.JobPosting, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	known, err := g.jobs.ListKnownJobURLs(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("loading known urls for alert %s: %w", alertID, err)
	}

	fresh := make([]model.RawPosting, 0, len(candidates))
	batch := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		if _, ok := known[c.URL]; ok {
			continue
		}
		if _, ok := batch[c.URL]; ok {
			continue
		}
		batch[c.URL] = struct{}{}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	saved, err := g.jobs.InsertJobs(ctx, alertID, fresh)
	if err != nil {
		return nil, fmt.Errorf("persisting postings for alert %s: %w", alertID, err)
	}

	g.logger.Debug("persisted new postings",
		"alert_id", alertID,
		"candidates", len(candidates),
		"unseen", len(fresh),
		"inserted", len(saved),
	)
	return saved, nil
}
