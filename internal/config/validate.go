package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Crawler.BatchSize < 1 {
		return fmt.Errorf("crawler.batch_size must be >= 1, got %d", cfg.Crawler.BatchSize)
	}
	if cfg.Crawler.BatchSize > 20 {
		return fmt.Errorf("crawler.batch_size must be <= 20, got %d", cfg.Crawler.BatchSize)
	}
	if cfg.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0, got %d", cfg.Crawler.MaxRetries)
	}
	if cfg.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if cfg.Crawler.MatchThreshold <= 0 {
		return fmt.Errorf("crawler.match_threshold must be > 0")
	}

	if cfg.Stealth.RequestDelayMin < 0 || cfg.Stealth.RequestDelayMax < 0 {
		return fmt.Errorf("stealth request delays must be >= 0")
	}
	if cfg.Stealth.RequestDelayMax < cfg.Stealth.RequestDelayMin {
		return fmt.Errorf("stealth.request_delay_max must be >= stealth.request_delay_min")
	}
	if cfg.Stealth.RotateProxy && len(cfg.Stealth.ProxyList) == 0 {
		return fmt.Errorf("stealth.rotate_proxy is set but stealth.proxy_list is empty")
	}
	for _, proxyURL := range cfg.Stealth.ProxyList {
		if _, err := url.Parse(proxyURL); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
		}
	}

	if !cfg.Store.DryRun {
		if cfg.Store.URI == "" {
			return fmt.Errorf("store.uri must be set")
		}
		if cfg.Store.Database == "" {
			return fmt.Errorf("store.database must be set")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level %q is not supported (valid: debug, info, warn, error)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	seen := map[string]bool{}
	for _, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("source with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source %q", s.Name)
		}
		seen[s.Name] = true
		if s.Type != "selector" && s.Type != "api" {
			return fmt.Errorf("source %q: type must be 'selector' or 'api', got %q", s.Name, s.Type)
		}
		if s.ListingURL == "" {
			return fmt.Errorf("source %q: listing_url must be set", s.Name)
		}
		if s.Type == "selector" && (s.Selectors.Item == "" || s.Selectors.Title == "" || s.Selectors.URL == "") {
			return fmt.Errorf("source %q: selectors.item, selectors.title and selectors.url are required", s.Name)
		}
		if s.Limits.MaxJobs < 0 || s.Limits.MaxPages < 0 {
			return fmt.Errorf("source %q: limits must be >= 0", s.Name)
		}
	}

	return nil
}
