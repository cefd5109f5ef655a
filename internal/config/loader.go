package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("AEROCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("aerocrawl")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".aerocrawl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("crawler.batch_size", cfg.Crawler.BatchSize)
	v.SetDefault("crawler.max_retries", cfg.Crawler.MaxRetries)
	v.SetDefault("crawler.retry_delay", cfg.Crawler.RetryDelay)
	v.SetDefault("crawler.request_timeout", cfg.Crawler.RequestTimeout)
	v.SetDefault("crawler.use_filter", cfg.Crawler.UseFilter)
	v.SetDefault("crawler.match_threshold", cfg.Crawler.MatchThreshold)

	v.SetDefault("stealth.stealth_mode", cfg.Stealth.StealthMode)
	v.SetDefault("stealth.request_delay_min", cfg.Stealth.RequestDelayMin)
	v.SetDefault("stealth.request_delay_max", cfg.Stealth.RequestDelayMax)
	v.SetDefault("stealth.page_load_delay", cfg.Stealth.PageLoadDelay)
	v.SetDefault("stealth.random_scroll", cfg.Stealth.RandomScroll)
	v.SetDefault("stealth.random_mouse", cfg.Stealth.RandomMouse)
	v.SetDefault("stealth.user_agents", cfg.Stealth.UserAgents)
	v.SetDefault("stealth.rotate_proxy", cfg.Stealth.RotateProxy)

	v.SetDefault("store.uri", cfg.Store.URI)
	v.SetDefault("store.database", cfg.Store.Database)
	v.SetDefault("store.jobs_collection", cfg.Store.JobsCollection)
	v.SetDefault("store.company_collection", cfg.Store.CompanyCollection)
	v.SetDefault("store.crawl_log_collection", cfg.Store.CrawlLogCollection)
	v.SetDefault("store.connect_timeout", cfg.Store.ConnectTimeout)
	v.SetDefault("store.dry_run", cfg.Store.DryRun)

	v.SetDefault("cache.stats_ttl", cfg.Cache.StatsTTL)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
