package model

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is how often an alert is checked.
type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// ParseFrequency validates s as one of the known frequencies (case-insensitive).
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
	return f, nil
}

// Valid reports whether f is hourly, daily or weekly.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// JobAlert is a user's standing request to be emailed about new postings.
type JobAlert struct {
	ID        string
	Companies []Company
	Keywords  []Keyword
	Frequency Frequency
	Email     string
	Active    bool
	CreatedAt time.Time
}

// Company is a career page reference: a free-text name or an absolute URL.
type Company struct {
	ID      string
	Name    string
	AlertID string
}

// Target converts the company reference into what the discovery engine consumes.
func (c Company) Target() CompanyTarget {
	return CompanyTarget{Name: c.Name, IsURL: strings.HasPrefix(c.Name, "http")}
}

// Keyword is matched case-insensitively against posting titles and descriptions.
type Keyword struct {
	ID      string
	Word    string
	AlertID string
}

// Words returns the keyword strings of the alert.
func (a *JobAlert) Words() []string {
	words := make([]string, 0, len(a.Keywords))
	for _, k := range a.Keywords {
		words = append(words, k.Word)
	}
	return words
}

// CompanyNames returns the company references of the alert.
func (a *JobAlert) CompanyNames() []string {
	names := make([]string, 0, len(a.Companies))
	for _, c := range a.Companies {
		names = append(names, c.Name)
	}
	return names
}

// AlertInput carries the writable fields of an alert for create/update.
type AlertInput struct {
	Companies []string
	Keywords  []string
	Frequency Frequency
	Email     string
	Active    bool
}
