package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/amishk599/jobalert/internal/model"
)

// DefaultUserAgent is a current desktop browser string; many career sites
// refuse requests without one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultMaxBodyBytes caps how much of a career page is read.
const DefaultMaxBodyBytes = 5 << 20

// Ensure HTTPFetcher implements model.PageFetcher.
var _ model.PageFetcher = (*HTTPFetcher)(nil)

// HTTPFetcher downloads career pages. A shared semaphore bounds the number of
// fetches in flight across every alert in the process.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	slots        *semaphore.Weighted
}

// NewHTTPFetcher creates a fetcher allowing at most maxConcurrent requests at
// once and reading at most maxBodyBytes of each response body. Bodies above
// the cap are truncated, not rejected.
func NewHTTPFetcher(client *http.Client, userAgent string, maxConcurrent int64, maxBodyBytes int64) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &HTTPFetcher{
		client:       client,
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
		slots:        semaphore.NewWeighted(maxConcurrent),
	}
}

// FetchPage GETs url and returns the (possibly truncated) body. Any non-2xx
// status is reported as a *model.FetchError.
func (f *HTTPFetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	if err := f.slots.Acquire(ctx, 1); err != nil {
		return nil, &model.FetchError{URL: url, Err: err}
	}
	defer f.slots.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &model.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &model.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, &model.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
