package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func timePtr(t time.Time) *time.Time { return &t }

func sampleAlert() *model.JobAlert {
	return &model.JobAlert{
		ID:        "alert-1",
		Companies: []model.Company{{Name: "Acme"}, {Name: "https://careers.globex.com"}},
		Keywords:  []model.Keyword{{Word: "engineer"}, {Word: "golang"}},
		Frequency: model.FrequencyDaily,
		Email:     "dev@example.com",
		Active:    true,
	}
}

func samplePosting(id, title string) model.JobPosting {
	return model.JobPosting{
		ID:          id,
		AlertID:     "alert-1",
		Title:       title,
		Company:     "Acme",
		Description: "Build things.",
		URL:         "https://acme.com/jobs/" + id,
		Location:    "Remote, US",
		PostedAt:    timePtr(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)),
	}
}

// RecordingTransport records digests passed to Send.
type RecordingTransport struct {
	Sent []model.Digest
	Err  error
}

func (r *RecordingTransport) Send(_ context.Context, d model.Digest) error {
	if r.Err != nil {
		return r.Err
	}
	r.Sent = append(r.Sent, d)
	return nil
}

// MarkingJobs records MarkNotified calls.
type MarkingJobs struct {
	Marked [][]string
	Err    error
}

func (m *MarkingJobs) ListKnownJobURLs(_ context.Context, _ string) (map[string]struct{}, error) {
	return nil, nil
}

func (m *MarkingJobs) InsertJobs(_ context.Context, _ string, _ []model.RawPosting) ([]model.JobPosting, error) {
	return nil, nil
}

func (m *MarkingJobs) ListUnnotifiedJobs(_ context.Context, _ string) ([]model.JobPosting, error) {
	return nil, nil
}

func (m *MarkingJobs) MarkNotified(_ context.Context, ids []string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Marked = append(m.Marked, ids)
	return nil
}

var errTransport = errors.New("550 mailbox unavailable")
