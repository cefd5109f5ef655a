// Package aerocrawl provides a public SDK for embedding the crawler as a
// library.
//
// Example usage:
//
//	crawler, err := aerocrawl.NewCrawler(
//	    aerocrawl.WithBatchSize(3),
//	    aerocrawl.WithDryRun(),
//	    aerocrawl.WithSource(config.SourceConfig{
//	        Name:       "skyjobs",
//	        Type:       "selector",
//	        BaseURL:    "https://careers.skyjobs.example",
//	        ListingURL: "https://careers.skyjobs.example/vacancies",
//	        Selectors:  config.SelectorSet{Item: "div.vacancy", Title: "h3 a", URL: "h3 a"},
//	    }),
//	)
//
//	stats, err := crawler.Crawl(ctx, "skyjobs")
package aerocrawl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"aerocrawl/internal/adapter"
	"aerocrawl/internal/cache"
	"aerocrawl/internal/classify"
	"aerocrawl/internal/config"
	"aerocrawl/internal/orchestrator"
	"aerocrawl/internal/stealth"
	"aerocrawl/internal/store"
	"aerocrawl/internal/types"
)

// Stats is the per-run result summary.
type Stats = types.CrawlSessionStats

// Crawler is the high-level API for running crawls programmatically.
type Crawler struct {
	cfg      *config.Config
	logger   *slog.Logger
	js       store.JobStore
	sessions orchestrator.SessionFactory

	mu       sync.Mutex
	orch     *orchestrator.Orchestrator
	registry *adapter.Registry
	ownStore bool
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithConfig replaces the entire configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Crawler) { c.cfg = cfg }
}

// WithSource appends a source definition.
func WithSource(src config.SourceConfig) Option {
	return func(c *Crawler) { c.cfg.Sources = append(c.cfg.Sources, src) }
}

// WithBatchSize sets the detail-fetch window and flush size.
func WithBatchSize(n int) Option {
	return func(c *Crawler) { c.cfg.Crawler.BatchSize = n }
}

// WithFilterFile points the title filter at a category file.
func WithFilterFile(path string) Option {
	return func(c *Crawler) {
		c.cfg.Crawler.UseFilter = true
		c.cfg.Crawler.FilterFile = path
	}
}

// WithoutFilter disables title filtering.
func WithoutFilter() Option {
	return func(c *Crawler) { c.cfg.Crawler.UseFilter = false }
}

// WithDryRun swaps MongoDB for an in-memory store.
func WithDryRun() Option {
	return func(c *Crawler) { c.cfg.Store.DryRun = true }
}

// WithMongoURI sets the store connection string and database.
func WithMongoURI(uri, database string) Option {
	return func(c *Crawler) {
		c.cfg.Store.URI = uri
		c.cfg.Store.Database = database
	}
}

// WithLogger replaces the default stderr logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithStore injects a JobStore, bypassing the configured one. The caller
// keeps ownership and closes it.
func WithStore(js store.JobStore) Option {
	return func(c *Crawler) { c.js = js }
}

// WithSessionFactory replaces the stealth browser launcher, mainly for
// tests.
func WithSessionFactory(f orchestrator.SessionFactory) Option {
	return func(c *Crawler) { c.sessions = f }
}

// NewCrawler builds a crawler from defaults plus options.
func NewCrawler(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		cfg:    config.DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := config.Validate(c.cfg); err != nil {
		return nil, err
	}

	registry, err := adapter.NewRegistry(c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.registry = registry

	if c.sessions == nil {
		launcher := stealth.NewLauncher(c.cfg.Stealth, c.logger)
		c.sessions = func(ctx context.Context) (adapter.Session, error) {
			return launcher.Acquire(ctx)
		}
	}
	return c, nil
}

// RegisterAdapter plugs in a bespoke SiteAdapter alongside the configured
// data-driven ones.
func (c *Crawler) RegisterAdapter(a adapter.SiteAdapter) {
	c.registry.Register(a)
}

// Sources returns the registered source names.
func (c *Crawler) Sources() []string {
	return c.registry.Names()
}

// Crawl runs the full pipeline for one source.
func (c *Crawler) Crawl(ctx context.Context, source string) (Stats, error) {
	site, err := c.registry.Get(source)
	if err != nil {
		return Stats{}, err
	}
	orch, err := c.orchestrator(ctx)
	if err != nil {
		return Stats{}, err
	}
	return orch.Run(ctx, site)
}

// CrawlAll runs every registered source in turn, stopping on the first
// fatal error.
func (c *Crawler) CrawlAll(ctx context.Context) ([]Stats, error) {
	var all []Stats
	for _, name := range c.Sources() {
		stats, err := c.Crawl(ctx, name)
		all = append(all, stats)
		if err != nil {
			return all, fmt.Errorf("source %s: %w", name, err)
		}
	}
	return all, nil
}

// Stop requests a cooperative stop of the in-flight run.
func (c *Crawler) Stop() {
	c.mu.Lock()
	orch := c.orch
	c.mu.Unlock()
	if orch != nil {
		orch.Stop()
	}
}

// Close releases the store connection when the crawler owns it.
func (c *Crawler) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.js != nil && c.ownStore {
		return c.js.Close(ctx)
	}
	return nil
}

func (c *Crawler) orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orch != nil {
		return c.orch, nil
	}

	if c.js == nil {
		if c.cfg.Store.DryRun {
			c.js = store.NewMemStore()
		} else {
			ms, err := store.NewMongoStore(ctx, c.cfg.Store, c.logger)
			if err != nil {
				return nil, err
			}
			c.js = ms
		}
		c.ownStore = true
	}

	var classifier *classify.Classifier
	if c.cfg.Crawler.UseFilter {
		categories := classify.DefaultCategories()
		exclusions := classify.DefaultExclusions()
		if c.cfg.Crawler.FilterFile != "" {
			var err error
			categories, exclusions, err = classify.LoadFilterFile(c.cfg.Crawler.FilterFile)
			if err != nil {
				return nil, err
			}
		}
		var err error
		classifier, err = classify.New(categories, exclusions, c.cfg.Crawler.MatchThreshold, c.logger)
		if err != nil {
			return nil, err
		}
	}

	c.orch = orchestrator.New(c.cfg, classifier, c.js, cache.New(c.logger), c.sessions, c.logger)
	return c.orch, nil
}
