// Package strategy turns career-page documents into candidate postings.
//
// Career pages share no machine-readable format, so a Registry maps a
// registrable domain to a site-specific Strategy and falls back to a generic
// link heuristic for every other domain.
package strategy

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobalert/internal/model"
)

// GenericName is the name Lookup reports for the fallback strategy.
const GenericName = "generic"

// Strategy extracts postings from a parsed career page. baseURL is the page
// URL and is used to resolve relative links.
type Strategy interface {
	Extract(doc *goquery.Document, baseURL *url.URL) ([]model.RawPosting, error)
}

// Func adapts a plain function to the Strategy interface.
type Func func(doc *goquery.Document, baseURL *url.URL) ([]model.RawPosting, error)

// Extract calls f(doc, baseURL).
func (f Func) Extract(doc *goquery.Document, baseURL *url.URL) ([]model.RawPosting, error) {
	return f(doc, baseURL)
}

// Registry maps a normalized domain ("apple.com") to its Strategy.
type Registry struct {
	mu       sync.RWMutex
	byDomain map[string]Strategy
	fallback Strategy
}

// NewRegistry returns an empty registry that answers every lookup with fallback.
func NewRegistry(fallback Strategy) *Registry {
	return &Registry{
		byDomain: make(map[string]Strategy),
		fallback: fallback,
	}
}

// DefaultRegistry returns a registry with every built-in site strategy and the
// generic fallback.
func DefaultRegistry() *Registry {
	r := NewRegistry(Func(Generic))
	r.Register("apple.com", Func(Apple))
	r.Register("greenhouse.io", Func(Greenhouse))
	r.Register("lever.co", Func(Lever))
	return r
}

// Register installs s for domain, replacing any previous entry.
func (r *Registry) Register(domain string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDomain[strings.ToLower(domain)] = s
}

// Lookup returns the strategy registered for domain and the name it is
// registered under, or the fallback and GenericName.
func (r *Registry) Lookup(domain string) (Strategy, string) {
	domain = strings.ToLower(domain)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byDomain[domain]; ok {
		return s, domain
	}
	return r.fallback, GenericName
}

// Domains lists the registered domains in sorted order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domains := make([]string, 0, len(r.byDomain))
	for d := range r.byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
