package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/amishk599/jobalert/internal/checker"
	"github.com/amishk599/jobalert/internal/scheduler"
)

// Client calls a running daemon's admin API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the API at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// Schedule fires the created/updated/activated hook for an alert.
func (c *Client) Schedule(ctx context.Context, alertID string) (ScheduleResponse, error) {
	var out ScheduleResponse
	err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(alertID)+"/schedule", &out)
	return out, err
}

// Unschedule fires the deactivated/deleted hook for an alert.
func (c *Client) Unschedule(ctx context.Context, alertID string) error {
	return c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(alertID)+"/schedule", nil)
}

// Check runs an on-demand check inside the daemon.
func (c *Client) Check(ctx context.Context, alertID string) (checker.Result, error) {
	var out checker.Result
	err := c.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(alertID)+"/check", &out)
	return out, err
}

// Sweep checks every active alert of one frequency.
func (c *Client) Sweep(ctx context.Context, frequency string) (checker.SweepResult, error) {
	var out checker.SweepResult
	err := c.do(ctx, http.MethodPost, "/cron/"+url.PathEscape(frequency), &out)
	return out, err
}

// Schedules lists the daemon's scheduled alerts.
func (c *Client) Schedules(ctx context.Context) ([]scheduler.Entry, error) {
	var out []scheduler.Entry
	err := c.do(ctx, http.MethodGet, "/schedules", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body errorBody
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, body.Error)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
