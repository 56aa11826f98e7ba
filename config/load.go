package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML config at path, merges an optional sibling
// "<name>.local.<ext>" override on top, fills unset values from
// DefaultConfig and finally applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	localPath := LocalPath(path)
	override := &Config{}
	if err := readYAML(localPath, override); err == nil {
		if err := mergo.Merge(cfg, *override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", localPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := mergo.Merge(cfg, *DefaultConfig()); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LocalPath returns the override file name for path, e.g. config.local.yml.
func LocalPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
