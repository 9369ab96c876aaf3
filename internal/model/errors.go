package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlertNotFound    = errors.New("alert not found")
	ErrUnknownFrequency = errors.New("unknown frequency")
)

// FetchError reports a failure reaching a company's career page. StatusCode is
// zero for network-level failures.
type FetchError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a strategy that could not extract postings from a page.
type ParseError struct {
	Domain string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Domain, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DeliveryError reports a digest the transport refused.
type DeliveryError struct {
	AlertID   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver digest for alert %s to %s: %v", e.AlertID, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SchedulingError reports an alert whose frequency cannot be turned into a trigger.
type SchedulingError struct {
	AlertID   string
	Frequency Frequency
	Err       error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule alert %s (frequency %q): %v", e.AlertID, e.Frequency, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}
