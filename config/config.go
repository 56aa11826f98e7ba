package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the price scraper configuration.
type Config struct {
	API         API     `yaml:"api"`
	Sites       []Site  `yaml:"sites"`
	Storage     Storage `yaml:"storage"`
	Scraper     Scraper `yaml:"scraper"`
	Report      Report  `yaml:"report"`
	MetricsAddr string  `yaml:"metrics_addr"`
	Verbose     bool    `yaml:"verbose"`
}

// API describes the remote catalog endpoints.
type API struct {
	Get      string        `yaml:"get"`
	Set      string        `yaml:"set"`
	Login    string        `yaml:"login"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Site is one extraction rule record. Later records override earlier ones
// with the same site.
type Site struct {
	Site      string `yaml:"site"`
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"`
}

// Storage configures the checkpoint and the run archive.
type Storage struct {
	Driver         string `yaml:"driver"` // file or sqlite
	Checkpoint     string `yaml:"checkpoint"`
	ArchiveDir     string `yaml:"archive_dir"`
	DisableArchive bool   `yaml:"disable_archive"`
}

// Scraper configures shop page fetching.
type Scraper struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Accept    string        `yaml:"accept"`
	// PageCacheSize bounds the per-run page cache. Negative disables it.
	PageCacheSize int `yaml:"page_cache_size"`
}

// Report configures the optional per-link outcome report.
type Report struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // csv or json
}

// DefaultConfig returns defaults matching the historical file layout.
func DefaultConfig() *Config {
	return &Config{
		API: API{
			Timeout: 60 * time.Second,
		},
		Storage: Storage{
			Driver:     "file",
			Checkpoint: "storage/cache.json",
			ArchiveDir: "storage",
		},
		Scraper: Scraper{
			Timeout:       30 * time.Second,
			UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 11_2_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.146 Safari/537.36",
			Accept:        "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			PageCacheSize: 128,
		},
		Report: Report{
			Format: "csv",
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateEndpoint("get", c.API.Get); err != nil {
		return err
	}
	if err := validateEndpoint("set", c.API.Set); err != nil {
		return err
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}

	for i, site := range c.Sites {
		if site.Site == "" {
			return fmt.Errorf("sites[%d]: site cannot be empty", i)
		}
	}

	if c.Storage.Driver != "file" && c.Storage.Driver != "sqlite" {
		return fmt.Errorf("storage driver must be file or sqlite")
	}
	if c.Storage.Checkpoint == "" {
		return fmt.Errorf("checkpoint path cannot be empty")
	}
	if !c.Storage.DisableArchive && c.Storage.ArchiveDir == "" {
		return fmt.Errorf("archive dir cannot be empty unless the archive is disabled")
	}

	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("scraper timeout must be positive")
	}
	if c.Scraper.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.Report.Path != "" && c.Report.Format != "csv" && c.Report.Format != "json" {
		return fmt.Errorf("report format must be csv or json")
	}

	return nil
}

func validateEndpoint(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("api %s endpoint cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid api %s endpoint: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("api %s endpoint must include a host", name)
	}
	return nil
}
