// Package scheduler owns one recurring trigger per active alert and runs the
// alert check when it fires.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/amishk599/jobalert/internal/checker"
	"github.com/amishk599/jobalert/internal/model"
)

// Trigger expressions in standard five-field cron syntax.
const (
	hourlySpec = "0 * * * *" // top of every hour
	dailySpec  = "0 9 * * *" // 09:00 every day
	weeklySpec = "0 9 * * 1" // 09:00 every Monday
)

const (
	defaultMaxConcurrentChecks = 4
	defaultCheckTimeout        = 10 * time.Minute
)

// AlertChecker runs one discover -> dedup -> notify sequence.
type AlertChecker interface {
	CheckAlert(ctx context.Context, alertID string) (checker.Result, error)
}

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	Location            *time.Location // wall clock for triggers, UTC if nil
	MaxConcurrentChecks int
	CheckTimeout        time.Duration
}

// Entry describes one scheduled alert.
type Entry struct {
	AlertID   string          `json:"alert_id"`
	Frequency model.Frequency `json:"frequency"`
	Next      time.Time       `json:"next"`
}

type scheduled struct {
	entryID   cron.EntryID
	frequency model.Frequency
}

// Manager maps alert ids to cron entries. The map is guarded by mu; cron runs
// each firing on its own goroutine and the worker semaphore bounds how many
// checks execute at once.
type Manager struct {
	cron         *cron.Cron
	alerts       model.AlertRepository
	checker      AlertChecker
	workers      *semaphore.Weighted
	capacity     int
	checkTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	entries map[string]scheduled
	runCtx  context.Context
}

// NewManager creates a stopped manager. Call Start, then Initialize.
func NewManager(alerts model.AlertRepository, c AlertChecker, opts Options, logger *slog.Logger) *Manager {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxConcurrentChecks <= 0 {
		opts.MaxConcurrentChecks = defaultMaxConcurrentChecks
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = defaultCheckTimeout
	}

	cl := cronLogger{logger: logger}
	return &Manager{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		alerts:       alerts,
		checker:      c,
		workers:      semaphore.NewWeighted(int64(opts.MaxConcurrentChecks)),
		capacity:     opts.MaxConcurrentChecks,
		checkTimeout: opts.CheckTimeout,
		logger:       logger,
		entries:      make(map[string]scheduled),
		runCtx:       context.Background(),
	}
}

// CronSpec translates a frequency into its trigger expression.
func CronSpec(freq model.Frequency) (string, error) {
	switch freq {
	case model.FrequencyHourly:
		return hourlySpec, nil
	case model.FrequencyDaily:
		return dailySpec, nil
	case model.FrequencyWeekly:
		return weeklySpec, nil
	default:
		return "", fmt.Errorf("%w: %q", model.ErrUnknownFrequency, freq)
	}
}

// Start begins firing triggers. Checks started by triggers inherit ctx.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()
	m.cron.Start()
	m.logger.Info("scheduler started", "max_concurrent_checks", m.capacity)
}

// Stop halts the timer and waits for checks started by triggers to finish.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("scheduler stopped")
}

// Initialize schedules every active alert, rebuilding the in-memory map from
// storage. Alerts that cannot be scheduled are logged and skipped. It returns
// how many alerts ended up scheduled.
func (m *Manager) Initialize(ctx context.Context) (int, error) {
	alerts, err := m.alerts.ListActiveAlerts(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("initializing scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.capacity)
	for _, a := range alerts {
		g.Go(func() error {
			if err := m.Schedule(gctx, a.ID); err != nil {
				m.logger.Error("could not schedule alert", "alert_id", a.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := len(m.Entries())
	m.logger.Info("scheduler initialized", "active_alerts", len(alerts), "scheduled", n)
	return n, nil
}

// Schedule (re)registers the alert's trigger and then runs one check
// synchronously. A failing check is logged and does not undo the trigger.
func (m *Manager) Schedule(ctx context.Context, alertID string) error {
	registered, err := m.Register(ctx, alertID)
	if err != nil || !registered {
		return err
	}
	m.RunOnce(ctx, alertID)
	return nil
}

// Register cancels any existing trigger for the alert and, if the alert
// exists and is active, installs a new one for its frequency. It reports
// whether a trigger is now installed. An unknown frequency yields a
// *model.SchedulingError and leaves the alert unscheduled. A failed alert
// lookup leaves any existing trigger in place.
func (m *Manager) Register(ctx context.Context, alertID string) (bool, error) {
	alert, err := m.alerts.GetAlert(ctx, alertID)
	if err != nil && !errors.Is(err, model.ErrAlertNotFound) {
		return false, fmt.Errorf("scheduling alert %s: %w", alertID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(alertID)

	if err != nil {
		m.logger.Info("alert not found, leaving unscheduled", "alert_id", alertID)
		return false, nil
	}
	if !alert.Active {
		m.logger.Info("alert inactive, leaving unscheduled", "alert_id", alertID)
		return false, nil
	}

	spec, err := CronSpec(alert.Frequency)
	if err != nil {
		return false, &model.SchedulingError{AlertID: alertID, Frequency: alert.Frequency, Err: err}
	}
	id, err := m.cron.AddFunc(spec, func() { m.fire(alertID) })
	if err != nil {
		return false, &model.SchedulingError{AlertID: alertID, Frequency: alert.Frequency, Err: err}
	}
	m.entries[alertID] = scheduled{entryID: id, frequency: alert.Frequency}

	m.logger.Info("alert scheduled",
		"alert_id", alertID,
		"frequency", alert.Frequency,
		"spec", spec,
		"next", m.cron.Entry(id).Next,
	)
	return true, nil
}

// Unschedule removes the alert's trigger. It is safe to call for an alert
// that is not scheduled; the return value reports whether one was removed.
// A check already running for the alert is left to finish.
func (m *Manager) Unschedule(alertID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.removeLocked(alertID)
	if removed {
		m.logger.Info("alert unscheduled", "alert_id", alertID)
	}
	return removed
}

func (m *Manager) removeLocked(alertID string) bool {
	s, ok := m.entries[alertID]
	if !ok {
		return false
	}
	m.cron.Remove(s.entryID)
	delete(m.entries, alertID)
	return true
}

// Entries lists scheduled alerts ordered by id. Next is zero until Start.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for id, s := range m.entries {
		out = append(out, Entry{
			AlertID:   id,
			Frequency: s.frequency,
			Next:      m.cron.Entry(s.entryID).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertID < out[j].AlertID })
	return out
}

// RunOnce runs a check for the alert on the worker pool, bounded by the check
// timeout. Failures are logged with the alert id and returned.
func (m *Manager) RunOnce(ctx context.Context, alertID string) (checker.Result, error) {
	if err := m.workers.Acquire(ctx, 1); err != nil {
		m.logger.Warn("check dropped, no worker available", "alert_id", alertID, "error", err)
		return checker.Result{AlertID: alertID}, fmt.Errorf("waiting for a check worker: %w", err)
	}
	defer m.workers.Release(1)

	cctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	res, err := m.checker.CheckAlert(cctx, alertID)
	if err != nil {
		m.logger.Error("alert check failed", "alert_id", alertID, "error", err)
	}
	return res, err
}

// fire is the trigger body. It never panics or returns an error to cron.
func (m *Manager) fire(alertID string) {
	m.mu.Lock()
	ctx := m.runCtx
	m.mu.Unlock()

	m.logger.Debug("trigger fired", "alert_id", alertID)
	m.RunOnce(ctx, alertID)
}

// Hooks called by the alert-management side after it writes an alert.

func (m *Manager) OnAlertCreated(ctx context.Context, alertID string) error {
	return m.Schedule(ctx, alertID)
}

func (m *Manager) OnAlertUpdated(ctx context.Context, alertID string) error {
	return m.Schedule(ctx, alertID)
}

func (m *Manager) OnAlertActivated(ctx context.Context, alertID string) error {
	return m.Schedule(ctx, alertID)
}

func (m *Manager) OnAlertDeactivated(alertID string) {
	m.Unschedule(alertID)
}

func (m *Manager) OnAlertDeleted(alertID string) {
	m.Unschedule(alertID)
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
