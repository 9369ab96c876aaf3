package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure PageFetcher implements model.PageFetcher.
var _ model.PageFetcher = (*PageFetcher)(nil)

// PageFetcher is a decorator that retries transient page-fetch failures with
// exponential backoff and jitter before giving up.
type PageFetcher struct {
	inner      model.PageFetcher
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewPageFetcher wraps inner with retry logic.
// maxRetries is the number of additional attempts after the first failure;
// zero disables retrying. baseDelay is doubled on each subsequent retry.
func NewPageFetcher(inner model.PageFetcher, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *PageFetcher {
	return &PageFetcher{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// FetchPage fetches url, retrying on transient errors. The last error is
// returned once retries are exhausted.
func (f *PageFetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := f.inner.FetchPage(ctx, url)
		if err == nil || attempt == f.maxRetries || !isRetryable(err) {
			return body, err
		}

		delay := f.backoffDelay(attempt+1, err)
		f.logger.Warn("retrying page fetch",
			"url", url,
			"attempt", attempt+1,
			"max_retries", f.maxRetries,
			"delay", delay,
			"error", err,
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("retry of %s cancelled: %w", url, ctx.Err())
		case <-t.C:
		}
	}
}

// backoffDelay is baseDelay doubled per prior retry, jittered by up to 30% either
// way. A server-supplied Retry-After (429/503) wins.
func (f *PageFetcher) backoffDelay(attempt int, err error) time.Duration {
	var fe *model.FetchError
	if errors.As(err, &fe) && fe.RetryAfter > 0 {
		return fe.RetryAfter
	}
	delay := f.baseDelay << (attempt - 1)
	return time.Duration(float64(delay) * (0.7 + 0.6*rand.Float64()))
}

// isRetryable reports whether err looks transient: network failures, 429 and 5xx.
// Cancellation and other 4xx responses (a missing career page stays missing) are final.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var fe *model.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= 500
	}
	return true
}
