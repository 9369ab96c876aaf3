package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// --- Fakes ---

// MemoryAlerts serves alerts from a map.
type MemoryAlerts struct {
	alerts map[string]*model.JobAlert
}

func (m *MemoryAlerts) GetAlert(_ context.Context, id string) (*model.JobAlert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, model.ErrAlertNotFound
	}
	return a, nil
}

func (m *MemoryAlerts) ListActiveAlerts(_ context.Context, freq model.Frequency) ([]model.JobAlert, error) {
	var out []model.JobAlert
	for _, a := range m.alerts {
		if a.Active && (freq == "" || a.Frequency == freq) {
			out = append(out, *a)
		}
	}
	return out, nil
}

// MemoryJobs keeps postings per alert and doubles as the persister.
type MemoryJobs struct {
	mu   sync.Mutex
	jobs map[string][]model.JobPosting
	next int
}

func NewMemoryJobs() *MemoryJobs {
	return &MemoryJobs{jobs: make(map[string][]model.JobPosting)}
}

func (m *MemoryJobs) ListKnownJobURLs(_ context.Context, alertID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[string]struct{})
	for _, j := range m.jobs[alertID] {
		known[j.URL] = struct{}{}
	}
	return known, nil
}

func (m *MemoryJobs) InsertJobs(_ context.Context, alertID string, postings []model.RawPosting) ([]model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var saved []model.JobPosting
	for _, p := range postings {
		m.next++
		job := model.JobPosting{ID: string(rune('A' + m.next)), AlertID: alertID, Title: p.Title, URL: p.URL}
		m.jobs[alertID] = append(m.jobs[alertID], job)
		saved = append(saved, job)
	}
	return saved, nil
}

func (m *MemoryJobs) PersistNew(ctx context.Context, alertID string, candidates []model.RawPosting) ([]model.JobPosting, error) {
	known, _ := m.ListKnownJobURLs(ctx, alertID)
	var fresh []model.RawPosting
	for _, c := range candidates {
		if _, ok := known[c.URL]; !ok {
			fresh = append(fresh, c)
		}
	}
	return m.InsertJobs(ctx, alertID, fresh)
}

func (m *MemoryJobs) ListUnnotifiedJobs(ctx context.Context, alertID string) ([]model.JobPosting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.JobPosting
	for _, j := range m.jobs[alertID] {
		if !j.Notified {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *MemoryJobs) MarkNotified(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool)
	for _, id := range ids {
		set[id] = true
	}
	for alertID, jobs := range m.jobs {
		for i := range jobs {
			if set[jobs[i].ID] {
				m.jobs[alertID][i].Notified = true
			}
		}
	}
	return nil
}

// CountingDiscoverer returns canned candidates and tracks concurrency.
type CountingDiscoverer struct {
	postings []model.RawPosting
	started  chan struct{}
	release  chan struct{}

	calls   atomic.Int32
	running atomic.Int32
	maxRun  atomic.Int32
}

func (d *CountingDiscoverer) DiscoverAlert(_ context.Context, _ *model.JobAlert) []model.RawPosting {
	d.calls.Add(1)
	n := d.running.Add(1)
	defer d.running.Add(-1)
	for {
		cur := d.maxRun.Load()
		if n <= cur || d.maxRun.CompareAndSwap(cur, n) {
			break
		}
	}
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	return d.postings
}

// RecordingDispatcher records every call and marks postings notified unless
// Err is set.
type RecordingDispatcher struct {
	mu      sync.Mutex
	jobs    *MemoryJobs
	Batches [][]model.JobPosting
	Err     error
}

func (r *RecordingDispatcher) Notify(ctx context.Context, _ *model.JobAlert, postings []model.JobPosting) error {
	r.mu.Lock()
	r.Batches = append(r.Batches, postings)
	err := r.Err
	r.mu.Unlock()
	if err != nil {
		return &model.DeliveryError{Err: err}
	}
	ids := make([]string, len(postings))
	for i, p := range postings {
		ids[i] = p.ID
	}
	return r.jobs.MarkNotified(ctx, ids)
}

// StaticLocker reports a fixed acquisition outcome.
type StaticLocker struct {
	acquired bool
	released atomic.Int32
}

func (l *StaticLocker) Acquire(_ context.Context, _ string) (func(), bool, error) {
	return func() { l.released.Add(1) }, l.acquired, nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeAlert(id string, freq model.Frequency) *model.JobAlert {
	return &model.JobAlert{
		ID:        id,
		Companies: []model.Company{{Name: "Example"}},
		Keywords:  []model.Keyword{{Word: "engineer"}},
		Frequency: freq,
		Email:     id + "@example.com",
		Active:    true,
	}
}

func candidates(urls ...string) []model.RawPosting {
	out := make([]model.RawPosting, len(urls))
	for i, u := range urls {
		out[i] = model.RawPosting{Title: "Engineer", URL: u}
	}
	return out
}

type fixture struct {
	checker    *Checker
	jobs       *MemoryJobs
	discoverer *CountingDiscoverer
	dispatcher *RecordingDispatcher
}

func newFixture(alerts ...*model.JobAlert) *fixture {
	m := &MemoryAlerts{alerts: make(map[string]*model.JobAlert)}
	for _, a := range alerts {
		m.alerts[a.ID] = a
	}
	jobs := NewMemoryJobs()
	d := &CountingDiscoverer{postings: candidates("https://x.com/1", "https://x.com/2")}
	disp := &RecordingDispatcher{jobs: jobs}
	return &fixture{
		checker:    NewChecker(m, jobs, d, jobs, disp, discardLogger()),
		jobs:       jobs,
		discoverer: d,
		dispatcher: disp,
	}
}

// --- Tests ---

func TestCheckAlert_NewPostingsNotifiedOnce(t *testing.T) {
	f := newFixture(activeAlert("a1", model.FrequencyDaily))
	ctx := context.Background()

	res, err := f.checker.CheckAlert(ctx, "a1")
	if err != nil {
		t.Fatalf("CheckAlert: %v", err)
	}
	want := Result{AlertID: "a1", Discovered: 2, NewPostings: 2, Notified: 2}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}

	res, err = f.checker.CheckAlert(ctx, "a1")
	if err != nil {
		t.Fatalf("second CheckAlert: %v", err)
	}
	if res.NewPostings != 0 || res.Notified != 0 {
		t.Errorf("second run = %+v, want nothing new", res)
	}
	if len(f.dispatcher.Batches) != 1 {
		t.Errorf("digests = %d, want 1", len(f.dispatcher.Batches))
	}
}

func TestCheckAlert_NothingNewNeverCallsNotify(t *testing.T) {
	f := newFixture(activeAlert("a1", model.FrequencyDaily))
	f.discoverer.postings = nil

	res, err := f.checker.CheckAlert(context.Background(), "a1")
	if err != nil {
		t.Fatalf("CheckAlert: %v", err)
	}
	if res != (Result{AlertID: "a1"}) {
		t.Errorf("result = %+v, want zero counts", res)
	}
	if n := len(f.dispatcher.Batches); n != 0 {
		t.Errorf("Notify called %d times with nothing new, want 0", n)
	}
}

func TestCheckAlert_WaiterSurvivesLeaderCancellation(t *testing.T) {
	f := newFixture(activeAlert("a1", model.FrequencyHourly))
	f.discoverer.started = make(chan struct{}, 1)
	f.discoverer.release = make(chan struct{})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.checker.CheckAlert(leaderCtx, "a1")
		leaderErr <- err
	}()
	<-f.discoverer.started

	type outcome struct {
		res Result
		err error
	}
	waiter := make(chan outcome, 1)
	go func() {
		res, err := f.checker.CheckAlert(context.Background(), "a1")
		waiter <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}
	close(f.discoverer.release)

	got := <-waiter
	if got.err != nil {
		t.Fatalf("waiter failed after leader cancelled: %v", got.err)
	}
	if got.res.Notified != 2 {
		t.Errorf("waiter result = %+v, want 2 notified", got.res)
	}
	if f.discoverer.calls.Load() != 1 {
		t.Errorf("discovery calls = %d, want 1", f.discoverer.calls.Load())
	}
}

func TestCheckAlert_MissingOrInactiveIsNoop(t *testing.T) {
	inactive := activeAlert("off", model.FrequencyDaily)
	inactive.Active = false
	f := newFixture(inactive)

	for _, id := range []string{"off", "missing"} {
		res, err := f.checker.CheckAlert(context.Background(), id)
		if err != nil {
			t.Fatalf("CheckAlert(%s): %v", id, err)
		}
		if res != (Result{AlertID: id}) {
			t.Errorf("CheckAlert(%s) = %+v, want zero result", id, res)
		}
	}
	if f.discoverer.calls.Load() != 0 {
		t.Error("discovery should not run for missing or inactive alerts")
	}
}

func TestCheckAlert_FailedDeliveryRedeliveredNextRun(t *testing.T) {
	f := newFixture(activeAlert("a1", model.FrequencyHourly))
	f.dispatcher.Err = errors.New("smtp down")
	ctx := context.Background()

	_, err := f.checker.CheckAlert(ctx, "a1")
	var de *model.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}

	f.dispatcher.Err = nil
	res, err := f.checker.CheckAlert(ctx, "a1")
	if err != nil {
		t.Fatalf("second CheckAlert: %v", err)
	}
	if res.NewPostings != 0 || res.Notified != 2 {
		t.Errorf("result = %+v, want 0 new and 2 redelivered", res)
	}
}

func TestCheckAlert_OverlappingCallsShareOneRun(t *testing.T) {
	f := newFixture(activeAlert("a1", model.FrequencyHourly))
	f.discoverer.started = make(chan struct{}, 2)
	f.discoverer.release = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = f.checker.CheckAlert(context.Background(), "a1")
	}()
	<-f.discoverer.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = f.checker.CheckAlert(context.Background(), "a1")
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.discoverer.release)
	wg.Wait()

	if got := f.discoverer.maxRun.Load(); got != 1 {
		t.Errorf("max concurrent checks = %d, want 1", got)
	}
	if got := f.discoverer.calls.Load(); got != 1 {
		t.Errorf("discovery calls = %d, want 1", got)
	}
	if results[0] != results[1] {
		t.Errorf("overlapping callers got different results: %+v vs %+v", results[0], results[1])
	}
	if len(f.dispatcher.Batches) != 1 {
		t.Errorf("digests = %d, want 1", len(f.dispatcher.Batches))
	}
}

func TestCheckAlert_DifferentAlertsRunConcurrently(t *testing.T) {
	f := newFixture(activeAlert("a1", model.FrequencyDaily), activeAlert("a2", model.FrequencyDaily))
	f.discoverer.started = make(chan struct{}, 2)
	f.discoverer.release = make(chan struct{})

	var wg sync.WaitGroup
	for _, id := range []string{"a1", "a2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.checker.CheckAlert(context.Background(), id)
		}()
	}
	<-f.discoverer.started
	<-f.discoverer.started
	close(f.discoverer.release)
	wg.Wait()

	if got := f.discoverer.maxRun.Load(); got != 2 {
		t.Errorf("max concurrent checks = %d, want 2", got)
	}
}

func TestCheckAlert_LockHeldElsewhereSkips(t *testing.T) {
	f := newFixture(activeAlert("a1", model.FrequencyDaily))
	locker := &StaticLocker{acquired: false}
	f.checker.SetLocker(locker)

	res, err := f.checker.CheckAlert(context.Background(), "a1")
	if err != nil {
		t.Fatalf("CheckAlert: %v", err)
	}
	if !res.Skipped {
		t.Error("expected skipped result")
	}
	if f.discoverer.calls.Load() != 0 || locker.released.Load() != 0 {
		t.Error("skipped check must not discover or release a lock it does not hold")
	}

	locker.acquired = true
	if _, err := f.checker.CheckAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("CheckAlert: %v", err)
	}
	if locker.released.Load() != 1 {
		t.Error("lock should be released after the check")
	}
}

func TestSweep_CountsSuccessesAndFailures(t *testing.T) {
	f := newFixture(
		activeAlert("h1", model.FrequencyHourly),
		activeAlert("h2", model.FrequencyHourly),
		activeAlert("d1", model.FrequencyDaily),
	)
	f.dispatcher.Err = errors.New("smtp down")

	res, err := f.checker.Sweep(context.Background(), model.FrequencyHourly, 2)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res != (SweepResult{Total: 2, Successes: 0, Failures: 2}) {
		t.Errorf("sweep = %+v", res)
	}

	f.dispatcher.Err = nil
	res, err = f.checker.Sweep(context.Background(), model.FrequencyDaily, 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res != (SweepResult{Total: 1, Successes: 1}) {
		t.Errorf("sweep = %+v", res)
	}
}
