// Package checker runs the discover -> dedup -> notify sequence for one alert.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/amishk599/jobalert/internal/model"
)

// Discoverer produces the keyword-matched candidates of an alert.
type Discoverer interface {
	DiscoverAlert(ctx context.Context, alert *model.JobAlert) []model.RawPosting
}

// Persister stores the candidates not yet known for an alert.
type Persister interface {
	PersistNew(ctx context.Context, alertID string, candidates []model.RawPosting) ([]model.JobPosting, error)
}

// Dispatcher mails a batch of postings and marks them notified.
type Dispatcher interface {
	Notify(ctx context.Context, alert *model.JobAlert, postings []model.JobPosting) error
}

// Locker guards a key across processes. acquired is false when another holder
// owns the key; release must be called only when acquired is true.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// Result summarizes one check.
type Result struct {
	AlertID     string `json:"alert_id"`
	Discovered  int    `json:"discovered"`
	NewPostings int    `json:"new_postings"`
	Notified    int    `json:"notified"`
	Skipped     bool   `json:"skipped"`
}

// Checker owns the full check pipeline for any alert. Checks for the same
// alert id never run concurrently: a caller arriving while one is in flight
// waits for it and shares its result.
type Checker struct {
	alerts     model.AlertRepository
	jobs       model.JobRepository
	discoverer Discoverer
	persister  Persister
	dispatcher Dispatcher
	locker     Locker
	flights    singleflight.Group
	timeout    time.Duration
	logger     *slog.Logger
}

// DefaultTimeout bounds one shared check run.
const DefaultTimeout = 10 * time.Minute

// NewChecker creates a checker wired with all its dependencies.
func NewChecker(
	alerts model.AlertRepository,
	jobs model.JobRepository,
	discoverer Discoverer,
	persister Persister,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Checker {
	return &Checker{
		alerts:     alerts,
		jobs:       jobs,
		discoverer: discoverer,
		persister:  persister,
		dispatcher: dispatcher,
		timeout:    DefaultTimeout,
		logger:     logger,
	}
}

// SetTimeout changes how long a shared check run may take. Non-positive
// values are ignored.
func (c *Checker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SetLocker adds a cross-process guard on top of the in-process one.
func (c *Checker) SetLocker(l Locker) {
	c.locker = l
}

// CheckAlert runs one check. A missing or inactive alert yields a zero result
// and no error.
//
// The shared run is detached from every caller's context and bounded by the
// check timeout instead, so one caller giving up never fails the others. A
// caller whose own context ends stops waiting and gets its context error.
func (c *Checker) CheckAlert(ctx context.Context, alertID string) (Result, error) {
	flight := c.flights.DoChan(alertID, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.check(runCtx, alertID)
	})

	select {
	case r := <-flight:
		if r.Shared {
			c.logger.Debug("joined in-flight check", "alert_id", alertID)
		}
		res, _ := r.Val.(Result)
		return res, r.Err
	case <-ctx.Done():
		c.logger.Warn("stopped waiting for check", "alert_id", alertID, "error", ctx.Err())
		return Result{AlertID: alertID}, fmt.Errorf("checking alert %s: %w", alertID, ctx.Err())
	}
}

func (c *Checker) check(ctx context.Context, alertID string) (Result, error) {
	res := Result{AlertID: alertID}

	if c.locker != nil {
		release, acquired, err := c.locker.Acquire(ctx, "jobalert:check:"+alertID)
		if err != nil {
			return res, fmt.Errorf("checking alert %s: acquiring lock: %w", alertID, err)
		}
		if !acquired {
			c.logger.Info("check already running elsewhere, skipping", "alert_id", alertID)
			res.Skipped = true
			return res, nil
		}
		defer release()
	}

	alert, err := c.alerts.GetAlert(ctx, alertID)
	if errors.Is(err, model.ErrAlertNotFound) {
		c.logger.Warn("alert not found, nothing to check", "alert_id", alertID)
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("checking alert %s: loading alert: %w", alertID, err)
	}
	if !alert.Active {
		c.logger.Debug("alert inactive, nothing to check", "alert_id", alertID)
		return res, nil
	}

	candidates := c.discoverer.DiscoverAlert(ctx, alert)
	res.Discovered = len(candidates)

	saved, err := c.persister.PersistNew(ctx, alertID, candidates)
	if err != nil {
		return res, fmt.Errorf("checking alert %s: %w", alertID, err)
	}
	res.NewPostings = len(saved)

	pending, err := c.pendingPostings(ctx, alertID, saved)
	if err != nil {
		return res, err
	}

	if len(pending) == 0 {
		c.logger.Info("no new postings", "alert_id", alertID, "discovered", res.Discovered)
		return res, nil
	}
	if err := c.dispatcher.Notify(ctx, alert, pending); err != nil {
		return res, err
	}
	res.Notified = len(pending)

	c.logger.Info("checked alert",
		"alert_id", alertID,
		"companies", len(alert.Companies),
		"discovered", res.Discovered,
		"new", res.NewPostings,
		"notified", res.Notified,
	)
	return res, nil
}

// pendingPostings returns the postings just saved followed by any earlier
// postings of the alert whose digest never went out.
func (c *Checker) pendingPostings(ctx context.Context, alertID string, saved []model.JobPosting) ([]model.JobPosting, error) {
	unnotified, err := c.jobs.ListUnnotifiedJobs(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("checking alert %s: listing unnotified postings: %w", alertID, err)
	}

	pending := append([]model.JobPosting(nil), saved...)
	seen := make(map[string]struct{}, len(saved))
	for _, p := range saved {
		seen[p.ID] = struct{}{}
	}
	for _, p := range unnotified {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		pending = append(pending, p)
	}
	if carried := len(pending) - len(saved); carried > 0 {
		c.logger.Info("redelivering unnotified postings", "alert_id", alertID, "count", carried)
	}
	return pending, nil
}

// SweepResult counts the outcome of checking every alert of one frequency.
type SweepResult struct {
	Total     int `json:"total"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Sweep checks every active alert with the given frequency, up to limit at a
// time. Individual failures are logged and counted, never returned.
func (c *Checker) Sweep(ctx context.Context, freq model.Frequency, limit int) (SweepResult, error) {
	alerts, err := c.alerts.ListActiveAlerts(ctx, freq)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing %s alerts: %w", freq, err)
	}

	failed := make([]bool, len(alerts))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, a := range alerts {
		g.Go(func() error {
			if _, err := c.CheckAlert(gctx, a.ID); err != nil {
				c.logger.Error("sweep check failed", "alert_id", a.ID, "frequency", freq, "error", err)
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{Total: len(alerts)}
	for _, f := range failed {
		if f {
			res.Failures++
		}
	}
	res.Successes = res.Total - res.Failures
	return res, nil
}
