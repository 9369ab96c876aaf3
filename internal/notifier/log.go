package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes digests to the given logger instead of mailing them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each posting of a digest via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the digest header and one line per posting. It never fails.
func (n *LogNotifier) Send(_ context.Context, d model.Digest) error {
	n.logger.Info("digest", "recipient", d.Recipient, "subject", d.Subject)
	for _, p := range d.Postings {
		args := []any{"company", p.Company, "title", p.Title, "location", p.Location, "url", p.URL}
		if p.PostedAt != nil {
			args = append(args, "posted_at", *p.PostedAt)
		}
		n.logger.Info("new job", args...)
	}
	return nil
}
