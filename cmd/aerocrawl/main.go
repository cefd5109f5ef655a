package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aerocrawl/internal/adapter"
	"aerocrawl/internal/cache"
	"aerocrawl/internal/classify"
	"aerocrawl/internal/config"
	"aerocrawl/internal/orchestrator"
	"aerocrawl/internal/stealth"
	"aerocrawl/internal/store"
	"aerocrawl/internal/types"
)

var (
	cfgFile   string
	verbose   bool
	batchSize int
	maxJobs   int
	dryRun    bool
	noFilter  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aerocrawl",
		Short: "AeroCrawl — aviation job posting crawler",
		Long: `AeroCrawl ingests job postings from anti-bot-hardened airline career
sites, normalizes their inconsistent fields, classifies postings by
relevance, removes duplicates, and persists each one exactly once.

Features:
  • Stealth browser sessions with human-like pacing and interaction
  • Data-driven site adapters (CSS/XPath selectors or JSON APIs)
  • Weighted keyword title filtering before any detail fetch
  • Store-backed URL dedup plus fuzzy duplicate detection
  • Batched MongoDB persistence that never reopens closed records`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [source...]",
		Short: "Crawl one or more configured sources",
		Long:  "Run the full pipeline (listing, filtering, dedup, detail fetch, persist) for each named source in turn.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCrawl,
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "detail-fetch window and flush size (0 = config default)")
	cmd.Flags().IntVarP(&maxJobs, "max-jobs", "m", 0, "cap on listing items per source (0 = per-source limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "use an in-memory store instead of MongoDB")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "disable the title filter")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	for _, name := range args {
		if !cfg.HasSource(name) {
			return fmt.Errorf("%w: %s (see `aerocrawl sources`)", types.ErrUnknownSource, name)
		}
	}

	classifier, err := buildClassifier(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	js, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer js.Close(context.Background())

	registry, err := adapter.NewRegistry(cfg, logger)
	if err != nil {
		return err
	}

	launcher := stealth.NewLauncher(cfg.Stealth, logger)
	sessions := func(ctx context.Context) (adapter.Session, error) {
		return launcher.Acquire(ctx)
	}
	orch := orchestrator.New(cfg, classifier, js, cache.New(logger), sessions, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, finishing current window...", "signal", sig)
		orch.Stop()
		<-sigCh
		logger.Warn("second signal, aborting")
		cancel()
	}()

	var failed bool
	for _, name := range args {
		site, err := registry.Get(name)
		if err != nil {
			return err
		}

		stats, err := orch.Run(ctx, site)
		switch {
		case errors.Is(err, types.ErrRunStopped):
			printStats(stats)
			fmt.Println("\n⏹  Stopped; in-flight work was flushed.")
			return nil
		case err != nil:
			logger.Error("run failed", "source", name, "error", err)
			failed = true
		default:
			printStats(stats)
		}
	}
	if failed {
		return fmt.Errorf("one or more sources failed")
	}
	return nil
}

// buildClassifier loads the filter file, or falls back to the built-in
// aviation categories. Returns nil when filtering is disabled.
func buildClassifier(cfg *config.Config, logger *slog.Logger) (*classify.Classifier, error) {
	if !cfg.Crawler.UseFilter {
		return nil, nil
	}
	categories := classify.DefaultCategories()
	exclusions := classify.DefaultExclusions()
	if cfg.Crawler.FilterFile != "" {
		var err error
		categories, exclusions, err = classify.LoadFilterFile(cfg.Crawler.FilterFile)
		if err != nil {
			return nil, fmt.Errorf("load filter file: %w", err)
		}
	}
	return classify.New(categories, exclusions, cfg.Crawler.MatchThreshold, logger)
}

// buildStore connects to MongoDB, or hands back an in-memory store for
// dry runs.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.JobStore, error) {
	if cfg.Store.DryRun {
		logger.Info("dry run: using in-memory store")
		return store.NewMemStore(), nil
	}
	return store.NewMongoStore(ctx, cfg.Store, logger)
}

func printStats(s types.CrawlSessionStats) {
	fmt.Printf("\n✅ %s finished in %.1fs\n", s.Source, s.DurationSeconds)
	fmt.Printf("   Found:         %d listed\n", s.Found)
	fmt.Printf("   Matched:       %d passed the title filter\n", s.Matched)
	fmt.Printf("   Dedup skipped: %d already known\n", s.DedupSkipped)
	fmt.Printf("   Persisted:     %d created, %d updated\n", s.Created, s.Updated)
	fmt.Printf("   Errors:        %d\n", s.Errors)
}

// sourcesCmd creates the "sources" subcommand.
func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if len(cfg.Sources) == 0 {
				fmt.Println("No sources configured. Run `aerocrawl config init` to create a starter config.")
				return nil
			}
			for _, src := range cfg.Sources {
				limits := cfg.Limits(src.Name)
				fmt.Printf("%-20s %-9s max %d jobs / %d pages  %s\n",
					src.Name, src.Type, limits.MaxJobs, limits.MaxPages, src.ListingURL)
			}
			return nil
		},
	}
}

// configCmd creates the "config" subcommand with show/init.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Crawler:\n")
			fmt.Printf("  Batch Size:       %d\n", cfg.Crawler.BatchSize)
			fmt.Printf("  Max Retries:      %d\n", cfg.Crawler.MaxRetries)
			fmt.Printf("  Request Timeout:  %s\n", cfg.Crawler.RequestTimeout)
			fmt.Printf("  Title Filter:     %v (threshold %.1f)\n", cfg.Crawler.UseFilter, cfg.Crawler.MatchThreshold)
			fmt.Printf("\nStealth:\n")
			fmt.Printf("  Stealth Mode:     %v\n", cfg.Stealth.StealthMode)
			fmt.Printf("  Request Delay:    %s – %s\n", cfg.Stealth.RequestDelayMin, cfg.Stealth.RequestDelayMax)
			fmt.Printf("  Random Scroll:    %v\n", cfg.Stealth.RandomScroll)
			fmt.Printf("  Random Mouse:     %v\n", cfg.Stealth.RandomMouse)
			fmt.Printf("  User Agents:      %d configured\n", len(cfg.Stealth.UserAgents))
			fmt.Printf("  Proxies:          %d configured (rotate: %v)\n", len(cfg.Stealth.ProxyList), cfg.Stealth.RotateProxy)
			fmt.Printf("\nStore:\n")
			fmt.Printf("  Database:         %s\n", cfg.Store.Database)
			fmt.Printf("  Jobs Collection:  %s\n", cfg.Store.JobsCollection)
			fmt.Printf("  Dry Run:          %v\n", cfg.Store.DryRun)
			fmt.Printf("\nSources:            %d configured\n", len(cfg.Sources))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a starter aerocrawl.yaml to the current directory",
		RunE: func(c *cobra.Command, args []string) error {
			const path = "aerocrawl.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("AeroCrawl %s\n", config.Version)
		},
	}
}

// setupLogger creates the structured logger per the logging config; the
// --verbose flag forces debug level.
func setupLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if batchSize > 0 {
		cfg.Crawler.BatchSize = batchSize
	}
	if maxJobs > 0 {
		for i := range cfg.Sources {
			cfg.Sources[i].Limits.MaxJobs = maxJobs
		}
	}
	if dryRun {
		cfg.Store.DryRun = true
	}
	if noFilter {
		cfg.Crawler.UseFilter = false
	}
}

const starterConfig = `# AeroCrawl configuration.
crawler:
  batch_size: 3
  max_retries: 2
  retry_delay: 2s
  request_timeout: 30s
  use_filter: true
  # filter_file: filters.json   # omit to use the built-in aviation categories
  match_threshold: 1.5

stealth:
  stealth_mode: true
  request_delay_min: 2s
  request_delay_max: 6s
  page_load_delay: 3s
  random_scroll: true
  random_mouse: true
  # proxy_list: ["http://proxy-1:8080"]
  # rotate_proxy: true

store:
  uri: mongodb://localhost:27017
  database: aerocrawl
  jobs_collection: jobs
  company_collection: companies
  crawl_log_collection: crawl_logs
  connect_timeout: 10s
  dry_run: false

logging:
  level: info
  format: text

sources:
  - name: skyjobs
    type: selector
    base_url: https://careers.skyjobs.example
    listing_url: https://careers.skyjobs.example/vacancies
    limits:
      max_jobs: 100
      max_pages: 10
    selectors:
      item: "div.vacancy"
      title: "h3 a"
      url: "h3 a"
      company: ".company"
      location: ".location"
      date: ".posted"
      next_page: "a.next"
      description: "div.description"
      requirements: "div.requirements"
      closing_date: ".closing-date"

  - name: aerojobs-api
    type: api
    listing_url: https://api.aerojobs.example/v1/jobs?page={page}
    limits:
      max_jobs: 200
      max_pages: 5
    field_paths:
      items: data.jobs
      title: attributes.title
      url: attributes.url
      company: attributes.airline.name
      location: attributes.base
      date: attributes.posted
      description: attributes.body
`
