// Package discovery fetches company career pages and turns them into
// keyword-matched candidate postings.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobalert/internal/filter"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/strategy"
)

// defaultCompanyFanout bounds how many companies of one alert are scraped at once.
const defaultCompanyFanout = 4

// Engine runs fetch -> strategy -> keyword filter for each company of an alert.
type Engine struct {
	fetcher  model.PageFetcher
	registry *strategy.Registry
	fanout   int
	logger   *slog.Logger
}

// NewEngine wires an engine with its page fetcher and strategy registry.
func NewEngine(fetcher model.PageFetcher, registry *strategy.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		fetcher:  fetcher,
		registry: registry,
		fanout:   defaultCompanyFanout,
		logger:   logger,
	}
}

// SetCompanyFanout changes how many companies of one alert are scraped concurrently.
func (e *Engine) SetCompanyFanout(n int) {
	if n > 0 {
		e.fanout = n
	}
}

// DiscoverAlert scrapes every company of the alert and returns the keyword
// matches in company order. An alert with no companies or no keywords yields
// nothing. A failing company never affects the others.
func (e *Engine) DiscoverAlert(ctx context.Context, alert *model.JobAlert) []model.RawPosting {
	if len(alert.Companies) == 0 || len(alert.Keywords) == 0 {
		return nil
	}
	keywords := alert.Words()

	results := make([][]model.RawPosting, len(alert.Companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fanout)
	for i, c := range alert.Companies {
		g.Go(func() error {
			results[i] = e.Discover(gctx, c.Target(), keywords)
			e.logger.Info("scraped company",
				"alert_id", alert.ID,
				"company", c.Name,
				"matched", len(results[i]),
			)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.RawPosting
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// Discover returns the postings for one company that match at least one
// keyword. Fetch and parse failures are logged and yield no postings.
func (e *Engine) Discover(ctx context.Context, target model.CompanyTarget, keywords []string) []model.RawPosting {
	postings, err := e.discover(ctx, target, keywords)
	if err != nil {
		e.logger.Warn("discovery failed",
			"company", target.Name,
			"error", err,
		)
		return nil
	}
	return postings
}

func (e *Engine) discover(ctx context.Context, target model.CompanyTarget, keywords []string) ([]model.RawPosting, error) {
	raw, err := e.scrape(ctx, target)
	if err != nil {
		return nil, err
	}
	return filter.NewKeywordFilter(keywords).Apply(raw), nil
}

// Preview scrapes one company and returns every extracted posting alongside
// the keyword matches. Unlike Discover it reports failures to the caller.
func (e *Engine) Preview(ctx context.Context, target model.CompanyTarget, keywords []string) (all, matched []model.RawPosting, err error) {
	all, err = e.scrape(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	return all, filter.NewKeywordFilter(keywords).Apply(all), nil
}

// scrape fetches the company's page and runs the registered strategy over it.
func (e *Engine) scrape(ctx context.Context, target model.CompanyTarget) ([]model.RawPosting, error) {
	pageURL := ResolveURL(target)
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &model.FetchError{URL: pageURL, Err: err}
	}

	body, err := e.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	domain := strategy.RegistrableDomain(base.Host)
	s, name := e.registry.Lookup(domain)
	e.logger.Debug("extracting postings", "url", pageURL, "domain", domain, "strategy", name)

	raw, err := extract(s, body, base)
	if err != nil {
		return nil, &model.ParseError{Domain: domain, Err: err}
	}
	return raw, nil
}

// extract parses body and runs s over it, turning a strategy panic into an error.
func extract(s strategy.Strategy, body []byte, base *url.URL) (postings []model.RawPosting, err error) {
	defer func() {
		if r := recover(); r != nil {
			postings, err = nil, fmt.Errorf("strategy panic: %v", r)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return s.Extract(doc, base)
}
