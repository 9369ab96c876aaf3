package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobalert/internal/checker"
	"github.com/amishk599/jobalert/internal/model"
)

// --- Fakes ---

type MemoryAlerts struct {
	mu     sync.Mutex
	alerts map[string]*model.JobAlert
}

func newAlerts(alerts ...*model.JobAlert) *MemoryAlerts {
	m := &MemoryAlerts{alerts: make(map[string]*model.JobAlert)}
	for _, a := range alerts {
		m.alerts[a.ID] = a
	}
	return m
}

func (m *MemoryAlerts) GetAlert(_ context.Context, id string) (*model.JobAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, model.ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryAlerts) ListActiveAlerts(_ context.Context, freq model.Frequency) ([]model.JobAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.JobAlert
	for _, a := range m.alerts {
		if a.Active && (freq == "" || a.Frequency == freq) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MemoryAlerts) set(id string, fn func(a *model.JobAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.alerts[id])
}

// GatedAlerts blocks GetAlert until release is closed, signalling entered first.
type GatedAlerts struct {
	*MemoryAlerts
	entered chan struct{}
	release chan struct{}
}

func (g *GatedAlerts) GetAlert(ctx context.Context, id string) (*model.JobAlert, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryAlerts.GetAlert(ctx, id)
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CountingChecker counts checks per alert, optionally blocking or failing.
type CountingChecker struct {
	mu      sync.Mutex
	calls   map[string]int
	err     error
	release chan struct{}

	running atomic.Int32
	maxRun  atomic.Int32
}

func newChecker() *CountingChecker {
	return &CountingChecker{calls: make(map[string]int)}
}

func (c *CountingChecker) CheckAlert(_ context.Context, id string) (checker.Result, error) {
	n := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		cur := c.maxRun.Load()
		if n <= cur || c.maxRun.CompareAndSwap(cur, n) {
			break
		}
	}
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[id]++
	return checker.Result{AlertID: id}, c.err
}

func (c *CountingChecker) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alert(id string, freq model.Frequency, active bool) *model.JobAlert {
	return &model.JobAlert{
		ID:        id,
		Companies: []model.Company{{Name: "Example"}},
		Keywords:  []model.Keyword{{Word: "engineer"}},
		Frequency: freq,
		Email:     "dev@example.com",
		Active:    active,
	}
}

func newManager(alerts *MemoryAlerts, c *CountingChecker) *Manager {
	return NewManager(alerts, c, Options{}, discardLogger())
}

// --- Tests ---

func TestCronSpec_NextFireTimes(t *testing.T) {
	// Wednesday 2026-03-04 10:30 UTC
	from := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		freq model.Frequency
		want time.Time
	}{
		{model.FrequencyHourly, time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)},
		{model.FrequencyDaily, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)},
		{model.FrequencyWeekly, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			spec, err := CronSpec(tt.freq)
			if err != nil {
				t.Fatalf("CronSpec: %v", err)
			}
			sched, err := cron.ParseStandard(spec)
			if err != nil {
				t.Fatalf("ParseStandard(%q): %v", spec, err)
			}
			if got := sched.Next(from); !got.Equal(tt.want) {
				t.Errorf("next = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := CronSpec("monthly"); !errors.Is(err, model.ErrUnknownFrequency) {
		t.Errorf("expected ErrUnknownFrequency, got %v", err)
	}
}

func TestSchedule_RegistersAndRunsOnce(t *testing.T) {
	c := newChecker()
	m := newManager(newAlerts(alert("a1", model.FrequencyDaily, true)), c)

	if err := m.Schedule(context.Background(), "a1"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if got := c.count("a1"); got != 1 {
		t.Errorf("initial checks = %d, want 1", got)
	}
	entries := m.Entries()
	if len(entries) != 1 || entries[0].AlertID != "a1" || entries[0].Frequency != model.FrequencyDaily {
		t.Errorf("entries = %+v", entries)
	}
}

func TestSchedule_RescheduleReplacesTrigger(t *testing.T) {
	alerts := newAlerts(alert("a1", model.FrequencyDaily, true))
	m := newManager(alerts, newChecker())
	ctx := context.Background()

	if err := m.Schedule(ctx, "a1"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	alerts.set("a1", func(a *model.JobAlert) { a.Frequency = model.FrequencyHourly })
	if err := m.Schedule(ctx, "a1"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if n := len(m.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
	if e := m.Entries(); len(e) != 1 || e[0].Frequency != model.FrequencyHourly {
		t.Errorf("entries = %+v, want one hourly", e)
	}
}

func TestSchedule_InactiveOrMissingStaysUnscheduled(t *testing.T) {
	c := newChecker()
	m := newManager(newAlerts(alert("off", model.FrequencyDaily, false)), c)

	for _, id := range []string{"off", "missing"} {
		if err := m.Schedule(context.Background(), id); err != nil {
			t.Fatalf("Schedule(%s): %v", id, err)
		}
		if c.count(id) != 0 {
			t.Errorf("%s: check should not run", id)
		}
	}
	if len(m.Entries()) != 0 {
		t.Errorf("entries = %+v, want none", m.Entries())
	}
}

func TestSchedule_UnknownFrequencyIsSchedulingError(t *testing.T) {
	c := newChecker()
	m := newManager(newAlerts(alert("a1", "fortnightly", true)), c)

	err := m.Schedule(context.Background(), "a1")

	var se *model.SchedulingError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchedulingError, got %v", err)
	}
	if se.AlertID != "a1" || se.Frequency != "fortnightly" {
		t.Errorf("scheduling error fields = %+v", se)
	}
	if len(m.Entries()) != 0 || c.count("a1") != 0 {
		t.Error("alert with unknown frequency must stay unscheduled and unchecked")
	}
}

func TestSchedule_DeactivationRemovesPreviousTrigger(t *testing.T) {
	alerts := newAlerts(alert("a1", model.FrequencyWeekly, true))
	m := newManager(alerts, newChecker())
	ctx := context.Background()

	if err := m.Schedule(ctx, "a1"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	alerts.set("a1", func(a *model.JobAlert) { a.Active = false })
	if err := m.OnAlertUpdated(ctx, "a1"); err != nil {
		t.Fatalf("OnAlertUpdated: %v", err)
	}

	if len(m.Entries()) != 0 || len(m.cron.Entries()) != 0 {
		t.Error("inactive alert should have no trigger after reschedule")
	}
}

func TestUnschedule_Idempotent(t *testing.T) {
	m := newManager(newAlerts(alert("a1", model.FrequencyHourly, true)), newChecker())

	if err := m.Schedule(context.Background(), "a1"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !m.Unschedule("a1") {
		t.Error("first Unschedule should report removal")
	}
	if m.Unschedule("a1") {
		t.Error("second Unschedule should be a no-op")
	}
	m.OnAlertDeleted("never-scheduled")
	if len(m.cron.Entries()) != 0 {
		t.Error("cron still holds an entry")
	}
}

func TestRegister_SlowAlertLookupDoesNotBlockScheduleReads(t *testing.T) {
	alerts := &GatedAlerts{
		MemoryAlerts: newAlerts(alert("a1", model.FrequencyDaily, true), alert("a2", model.FrequencyHourly, true)),
		entered:      make(chan struct{}, 2),
		release:      make(chan struct{}),
	}
	m := NewManager(alerts, newChecker(), Options{}, discardLogger())

	close(alerts.release)
	if _, err := m.Register(context.Background(), "a2"); err != nil {
		t.Fatalf("Register(a2): %v", err)
	}
	<-alerts.entered
	alerts.release = make(chan struct{})

	registered := make(chan error, 1)
	go func() {
		_, err := m.Register(context.Background(), "a1")
		registered <- err
	}()
	<-alerts.entered

	reads := make(chan struct{})
	go func() {
		m.Entries()
		m.Unschedule("a2")
		close(reads)
	}()
	select {
	case <-reads:
	case <-time.After(time.Second):
		t.Fatal("Entries/Unschedule blocked while an alert lookup was in flight")
	}

	close(alerts.release)
	if err := <-registered; err != nil {
		t.Fatalf("Register(a1): %v", err)
	}
	entries := m.Entries()
	if len(entries) != 1 || entries[0].AlertID != "a1" {
		t.Errorf("entries = %+v, want only a1", entries)
	}
}

func TestRunOnce_LogsWhenNoWorkerAvailable(t *testing.T) {
	c := newChecker()
	c.release = make(chan struct{})
	var logs lockedBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	m := NewManager(newAlerts(), c, Options{MaxConcurrentChecks: 1}, logger)

	busy := make(chan struct{})
	go func() {
		defer close(busy)
		m.RunOnce(context.Background(), "a1")
	}()
	for c.running.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.RunOnce(ctx, "a2"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RunOnce err = %v, want deadline exceeded", err)
	}
	close(c.release)
	<-busy

	out := logs.String()
	if !strings.Contains(out, "check dropped") || !strings.Contains(out, "alert_id=a2") {
		t.Errorf("expected dropped-check warning for a2, got logs:\n%s", out)
	}
	if c.count("a2") != 0 {
		t.Error("dropped check must not run")
	}
}

func TestRunOnce_FailureKeepsTrigger(t *testing.T) {
	c := newChecker()
	c.err = &model.DeliveryError{AlertID: "a1", Err: errors.New("smtp down")}
	m := newManager(newAlerts(alert("a1", model.FrequencyDaily, true)), c)

	if err := m.Schedule(context.Background(), "a1"); err != nil {
		t.Fatalf("Schedule should not surface check failures: %v", err)
	}
	m.fire("a1")

	if got := c.count("a1"); got != 2 {
		t.Errorf("checks = %d, want 2", got)
	}
	if len(m.Entries()) != 1 {
		t.Error("failed check must not unregister the trigger")
	}
}

func TestRunOnce_WorkerCapacityBoundsChecks(t *testing.T) {
	c := newChecker()
	c.release = make(chan struct{})
	m := NewManager(newAlerts(), c, Options{MaxConcurrentChecks: 1}, discardLogger())

	var wg sync.WaitGroup
	for _, id := range []string{"a1", "a2", "a3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RunOnce(context.Background(), id)
		}()
	}
	for range 3 {
		c.release <- struct{}{}
	}
	wg.Wait()

	if got := c.maxRun.Load(); got != 1 {
		t.Errorf("max concurrent checks = %d, want 1", got)
	}
}

func TestRunOnce_AppliesCheckTimeout(t *testing.T) {
	var deadline time.Time
	fc := checkFunc(func(ctx context.Context, id string) (checker.Result, error) {
		deadline, _ = ctx.Deadline()
		return checker.Result{AlertID: id}, nil
	})
	m := NewManager(newAlerts(), fc, Options{CheckTimeout: time.Minute}, discardLogger())

	start := time.Now()
	if _, err := m.RunOnce(context.Background(), "a1"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if deadline.IsZero() || deadline.Sub(start) > time.Minute+time.Second {
		t.Errorf("deadline = %v, want about one minute after %v", deadline, start)
	}
}

func TestInitialize_SchedulesActiveAlerts(t *testing.T) {
	c := newChecker()
	m := newManager(newAlerts(
		alert("a1", model.FrequencyHourly, true),
		alert("a2", model.FrequencyWeekly, true),
		alert("a3", model.FrequencyDaily, false),
		alert("a4", "yearly", true),
	), c)

	n, err := m.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if n != 2 {
		t.Errorf("scheduled = %d, want 2", n)
	}
	for _, id := range []string{"a1", "a2"} {
		if c.count(id) != 1 {
			t.Errorf("%s: initial checks = %d, want 1", id, c.count(id))
		}
	}
}

func TestStartedManagerReportsNextFire(t *testing.T) {
	m := newManager(newAlerts(alert("a1", model.FrequencyHourly, true)), newChecker())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	defer m.Stop()

	if _, err := m.Register(ctx, "a1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	entries := m.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	next := entries[0].Next
	if next.IsZero() || next.Minute() != 0 || next.Sub(time.Now()) > time.Hour {
		t.Errorf("next fire = %v, want the next top of the hour", next)
	}
}

type checkFunc func(ctx context.Context, id string) (checker.Result, error)

func (f checkFunc) CheckAlert(ctx context.Context, id string) (checker.Result, error) {
	return f(ctx, id)
}
