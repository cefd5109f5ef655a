package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for aerocrawl. It is constructed once at
// process start and passed explicitly into constructors; there is no
// ambient mutable global.
type Config struct {
	Crawler CrawlerConfig  `mapstructure:"crawler" yaml:"crawler"`
	Stealth StealthConfig  `mapstructure:"stealth" yaml:"stealth"`
	Store   StoreConfig    `mapstructure:"store"   yaml:"store"`
	Cache   CacheConfig    `mapstructure:"cache"   yaml:"cache"`
	Logging LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Sources []SourceConfig `mapstructure:"sources" yaml:"sources"`
}

// CrawlerConfig controls the per-run pipeline.
type CrawlerConfig struct {
	// BatchSize bounds both the detail-fetch window and the persistence
	// flush size. Keeping it small is a politeness/anti-detection control,
	// not merely a performance knob.
	BatchSize      int           `mapstructure:"batch_size"      yaml:"batch_size"`
	MaxRetries     int           `mapstructure:"max_retries"     yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	UseFilter      bool          `mapstructure:"use_filter"      yaml:"use_filter"`
	FilterFile     string        `mapstructure:"filter_file"     yaml:"filter_file"`
	MatchThreshold float64       `mapstructure:"match_threshold" yaml:"match_threshold"`
}

// StealthConfig controls the anti-detection browsing session.
type StealthConfig struct {
	StealthMode     bool          `mapstructure:"stealth_mode"      yaml:"stealth_mode"`
	RequestDelayMin time.Duration `mapstructure:"request_delay_min" yaml:"request_delay_min"`
	RequestDelayMax time.Duration `mapstructure:"request_delay_max" yaml:"request_delay_max"`
	PageLoadDelay   time.Duration `mapstructure:"page_load_delay"   yaml:"page_load_delay"`
	RandomScroll    bool          `mapstructure:"random_scroll"     yaml:"random_scroll"`
	RandomMouse     bool          `mapstructure:"random_mouse"      yaml:"random_mouse"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	ProxyList       []string      `mapstructure:"proxy_list"        yaml:"proxy_list"`
	RotateProxy     bool          `mapstructure:"rotate_proxy"      yaml:"rotate_proxy"`
}

// StoreConfig controls the long-term job store.
type StoreConfig struct {
	URI                string        `mapstructure:"uri"                 yaml:"uri"`
	Database           string        `mapstructure:"database"            yaml:"database"`
	JobsCollection     string        `mapstructure:"jobs_collection"     yaml:"jobs_collection"`
	CompanyCollection  string        `mapstructure:"company_collection"  yaml:"company_collection"`
	CrawlLogCollection string        `mapstructure:"crawl_log_collection" yaml:"crawl_log_collection"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"     yaml:"connect_timeout"`
	// DryRun swaps the Mongo store for an in-memory one.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// CacheConfig controls the aggregate stats cache.
type CacheConfig struct {
	StatsTTL time.Duration `mapstructure:"stats_ttl" yaml:"stats_ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SourceConfig is a data-driven description of one external site. The core
// never knows selectors beyond this mapping; bespoke adapters live outside.
type SourceConfig struct {
	Name       string `mapstructure:"name"        yaml:"name"`
	Type       string `mapstructure:"type"        yaml:"type"` // selector, api
	BaseURL    string `mapstructure:"base_url"    yaml:"base_url"`
	ListingURL string `mapstructure:"listing_url" yaml:"listing_url"`

	Limits SourceLimits `mapstructure:"limits" yaml:"limits"`

	// Selectors drive the selector adapter (type "selector").
	Selectors SelectorSet `mapstructure:"selectors" yaml:"selectors"`

	// FieldPaths drive the API adapter (type "api"): dotted JSON paths.
	FieldPaths map[string]string `mapstructure:"field_paths" yaml:"field_paths"`
}

// SourceLimits bounds one run against one source.
type SourceLimits struct {
	MaxJobs  int `mapstructure:"max_jobs"  yaml:"max_jobs"`
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`
}

// SelectorSet maps listing and detail fields to CSS or XPath selectors.
// A selector prefixed with "xpath:" is evaluated as XPath, anything else as
// a CSS selector.
type SelectorSet struct {
	Item     string `mapstructure:"item"     yaml:"item"`
	Title    string `mapstructure:"title"    yaml:"title"`
	URL      string `mapstructure:"url"      yaml:"url"`
	Company  string `mapstructure:"company"  yaml:"company"`
	Location string `mapstructure:"location" yaml:"location"`
	Date     string `mapstructure:"date"     yaml:"date"`
	NextPage string `mapstructure:"next_page" yaml:"next_page"`

	Description    string `mapstructure:"description"    yaml:"description"`
	Requirements   string `mapstructure:"requirements"   yaml:"requirements"`
	Qualifications string `mapstructure:"qualifications" yaml:"qualifications"`
	ClosingDate    string `mapstructure:"closing_date"   yaml:"closing_date"`
	JobType        string `mapstructure:"job_type"       yaml:"job_type"`
	Department     string `mapstructure:"department"     yaml:"department"`
}

// Limits returns the limits for a named source, falling back to defaults
// when the source sets none.
func (c *Config) Limits(source string) SourceLimits {
	for _, s := range c.Sources {
		if s.Name == source {
			l := s.Limits
			if l.MaxJobs <= 0 {
				l.MaxJobs = 100
			}
			if l.MaxPages <= 0 {
				l.MaxPages = 10
			}
			return l
		}
	}
	return SourceLimits{MaxJobs: 100, MaxPages: 10}
}

// HasSource reports whether a source with the given name is configured.
func (c *Config) HasSource(name string) bool {
	for _, s := range c.Sources {
		if s.Name == name {
			return true
		}
	}
	return false
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawler: CrawlerConfig{
			BatchSize:      4,
			MaxRetries:     2,
			RetryDelay:     2 * time.Second,
			RequestTimeout: 30 * time.Second,
			UseFilter:      true,
			MatchThreshold: 1.5,
		},
		Stealth: StealthConfig{
			StealthMode:     true,
			RequestDelayMin: 2 * time.Second,
			RequestDelayMax: 5 * time.Second,
			PageLoadDelay:   3 * time.Second,
			RandomScroll:    true,
			RandomMouse:     true,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Store: StoreConfig{
			URI:                "mongodb://localhost:27017",
			Database:           "aerocrawl",
			JobsCollection:     "jobs",
			CompanyCollection:  "company_mappings",
			CrawlLogCollection: "crawl_logs",
			ConnectTimeout:     10 * time.Second,
		},
		Cache: CacheConfig{
			StatsTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
