package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "PRICESCRAPER_"

// EnvString returns the trimmed value of key if it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer if it is set.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overrides credentials and runtime knobs from PRICESCRAPER_* variables.
func ApplyEnv(cfg *Config) error {
	if value, ok := EnvString(envPrefix + "LOGIN"); ok {
		cfg.API.Login = value
	}
	if value, ok := EnvString(envPrefix + "PASSWORD"); ok {
		cfg.API.Password = value
	}
	if value, ok := EnvString(envPrefix + "METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := EnvInt(envPrefix + "PAGE_CACHE"); err != nil {
		return err
	} else if ok {
		cfg.Scraper.PageCacheSize = value
	}
	return nil
}
