package checker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/amishk599/jobalert/internal/dedup"
	"github.com/amishk599/jobalert/internal/discovery"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/notifier"
	"github.com/amishk599/jobalert/internal/store"
	"github.com/amishk599/jobalert/internal/strategy"
)

type pageFetcher map[string]string

func (p pageFetcher) FetchPage(_ context.Context, url string) ([]byte, error) {
	page, ok := p[url]
	if !ok {
		return nil, &model.FetchError{URL: url, StatusCode: 404, Err: errors.New("not found")}
	}
	return []byte(page), nil
}

type mailbox struct {
	mu   sync.Mutex
	sent []model.Digest
}

func (m *mailbox) Send(_ context.Context, d model.Digest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, d)
	return nil
}

func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	alert, err := db.CreateAlert(ctx, model.AlertInput{
		Companies: []string{"Example", "Broken"},
		Keywords:  []string{"engineer"},
		Frequency: model.FrequencyDaily,
		Email:     "dev@example.com",
		Active:    true,
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	pages := pageFetcher{
		"https://careers.example.com": `<html><body>
			<a href="/jobs/1">Senior Engineer</a>
			<a href="/jobs/2">Marketing Lead</a>
		</body></html>`,
	}
	box := &mailbox{}
	c := NewChecker(
		db, db,
		discovery.NewEngine(pages, strategy.DefaultRegistry(), discardLogger()),
		dedup.NewGateway(db, discardLogger()),
		notifier.NewDispatcher(box, db, "", discardLogger()),
		discardLogger(),
	)

	res, err := c.CheckAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("CheckAlert: %v", err)
	}
	if res.Discovered != 1 || res.NewPostings != 1 || res.Notified != 1 {
		t.Errorf("first run = %+v, want 1/1/1", res)
	}
	if len(box.sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(box.sent))
	}
	if !strings.Contains(box.sent[0].HTML, "https://careers.example.com/jobs/1") {
		t.Error("digest missing posting link")
	}

	jobs, err := db.ListJobs(ctx, alert.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || !jobs[0].Notified {
		t.Errorf("persisted jobs = %+v, want one notified posting", jobs)
	}

	res, err = c.CheckAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("second CheckAlert: %v", err)
	}
	if res.NewPostings != 0 || res.Notified != 0 || len(box.sent) != 1 {
		t.Errorf("second run = %+v with %d emails, want nothing new", res, len(box.sent))
	}
}

func TestPipeline_DryRunPersistsNothing(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "dry.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	alert, err := db.CreateAlert(ctx, model.AlertInput{
		Companies: []string{"https://careers.example.com"},
		Keywords:  []string{"engineer"},
		Frequency: model.FrequencyWeekly,
		Email:     "dev@example.com",
		Active:    true,
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	dry := store.NewDryRunStore(db, db)
	c := NewChecker(
		dry, dry,
		discovery.NewEngine(pageFetcher{"https://careers.example.com": `<a href="/careers/9">Staff Engineer</a>`},
			strategy.DefaultRegistry(), discardLogger()),
		dedup.NewGateway(dry, discardLogger()),
		notifier.NewDispatcher(notifier.NewLogNotifier(discardLogger()), dry, "", discardLogger()),
		discardLogger(),
	)

	for range 2 {
		res, err := c.CheckAlert(ctx, alert.ID)
		if err != nil {
			t.Fatalf("CheckAlert: %v", err)
		}
		if res.NewPostings != 1 {
			t.Errorf("dry run new postings = %d, want 1 every time", res.NewPostings)
		}
	}

	jobs, err := db.ListJobs(ctx, alert.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("dry run wrote %d jobs", len(jobs))
	}
}
