package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// maxSlackPostings keeps a digest under Slack's 50-block message limit.
const maxSlackPostings = 20

// SlackNotifier posts digests to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each digest as one Slack message.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Send posts the digest using Block Kit. A 429 is retried once after the
// Retry-After delay.
func (s *SlackNotifier) Send(ctx context.Context, d model.Digest) error {
	body, err := json.Marshal(buildPayload(d))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	for attempt := 1; ; attempt++ {
		status, retryAfter, err := s.post(ctx, body)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusOK:
			s.logger.Info("slack message sent", "recipient", d.Recipient, "postings", len(d.Postings), "attempts", attempt)
			return nil
		case status == http.StatusTooManyRequests && attempt == 1:
			s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
			t := time.NewTimer(retryAfter)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		default:
			return fmt.Errorf("slack webhook returned HTTP %d (attempt %d)", status, attempt)
		}
	}
}

// post sends one webhook request and reports the status with the server's
// Retry-After hint (at least one second).
func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	wait := time.Second
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	}
	return resp.StatusCode, wait, nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string     `json:"type"`
	Text  *slackText `json:"text,omitempty"`
	URL   string     `json:"url,omitempty"`
	Style string     `json:"style,omitempty"`
}

func buildPayload(d model.Digest) slackPayload {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: d.Subject},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Alert for:* " + d.Recipient},
		},
	}

	shown := d.Postings
	if len(shown) > maxSlackPostings {
		shown = shown[:maxSlackPostings]
	}
	for _, p := range shown {
		location := p.Location
		if location == "" {
			location = "Not listed"
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*" + p.Title + "*\n" + Summarize(p.Description)},
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + p.Company},
				{Type: "mrkdwn", Text: "*Location:*\n" + location},
			},
		})
		blocks = append(blocks, slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  &slackText{Type: "plain_text", Text: "View Job"},
					URL:   p.URL,
					Style: "primary",
				},
			},
		})
	}
	if extra := len(d.Postings) - len(shown); extra > 0 {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("_...and %d more_", extra)},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})

	return slackPayload{Text: d.Subject, Blocks: blocks}
}
