// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for exfs2 components.
//
// Configuration is loaded from a single optional YAML file, resolved in
// this order: the --config flag, then the EXFS2_CONFIG environment
// variable, then built-in defaults. There is no directory scanning or
// implicit discovery — the resolved source is deterministic and can
// always be named in a log line.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration for an exfs2 command invocation.
type Config struct {
	// Directory is where segment files live.
	Directory string `yaml:"directory"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// AllocationHints enables the advisory allocation hint cache.
	AllocationHints bool `yaml:"allocation_hints"`
}

// Default returns the built-in configuration used when no file is
// found at any resolved source.
func Default() *Config {
	return &Config{
		Directory:       ".",
		LogLevel:        "info",
		AllocationHints: true,
	}
}

// Resolve returns the path Load should read from, applying the
// documented precedence: an explicit --config flag value, then the
// EXFS2_CONFIG environment variable, then "" (meaning: no file, use
// defaults).
func Resolve(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("EXFS2_CONFIG")
}

// Load resolves a config file path via Resolve and loads it, or returns
// Default() unchanged if no path resolves. A path that resolves but
// cannot be read or parsed is an error — an explicit request for a
// config file that fails to load must not silently fall back.
func Load(flagValue string) (*Config, error) {
	path := Resolve(flagValue)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, using
// Default() as the base so every field an incomplete file leaves unset
// keeps its Default() value.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.Directory = expandHome(cfg.Directory)
	return cfg, nil
}

// expandHome resolves a leading "~" the way shells do, since YAML files
// carry no shell to do it for them.
func expandHome(path string) string {
	if path != "~" && !hasHomePrefix(path) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

func hasHomePrefix(path string) bool {
	return len(path) >= 2 && path[0] == '~' && path[1] == filepath.Separator
}

// Validate reports whether the configuration is usable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want one of debug, info, warn, error)", c.LogLevel)
	}
	if c.Directory == "" {
		return fmt.Errorf("directory must not be empty")
	}
	return nil
}
