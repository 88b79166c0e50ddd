// Package config provides configuration types and helpers for errdb.
package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds the application-wide configuration.
type Config struct {
	Format   string         `mapstructure:"format"`
	Verbose  bool           `mapstructure:"verbose"`
	Color    string         `mapstructure:"color"`
	Store    StoreConfig    `mapstructure:"store"`
	Collect  CollectConfig  `mapstructure:"collect"`
	Sanitize SanitizeConfig `mapstructure:"sanitize"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Report   ReportConfig   `mapstructure:"report"`
	Watch    WatchConfig    `mapstructure:"watch"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Log      LogConfig      `mapstructure:"log"`
}

// StoreConfig locates the target store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// CollectConfig holds settings for walking a Blackbox Mini dataset.
type CollectConfig struct {
	Root         string `mapstructure:"root"`          // Dataset root
	Slices       string `mapstructure:"slices"`        // Glob for slice directories
	ProjectLimit int    `mapstructure:"project_limit"` // 0 means all projects
	SourceName   string `mapstructure:"source_name"`   // Recorded as source_db
}

// SanitizeConfig selects masking rules, candidate ranking and extra patterns.
type SanitizeConfig struct {
	// Rules lists masking rules in the order they run. Empty uses the defaults.
	// Available: path_windows, path_unix, path_relative, file_name, line,
	// column, hex_literal, identity_hash, qualified_name, string_literal
	Rules []string `mapstructure:"rules"`

	// RankOrder orders candidate kinds, most preferred first.
	RankOrder []string `mapstructure:"rank_order"`

	// PatternsFile is an optional YAML file of additional javac patterns.
	PatternsFile string `mapstructure:"patterns_file"`
}

// EnrichConfig holds enrichment settings.
type EnrichConfig struct {
	DecodeEscapes bool `mapstructure:"decode_escapes"`
	ProgressEvery int  `mapstructure:"progress_every"`
}

// ReportConfig holds defaults for report queries.
type ReportConfig struct {
	Top       int  `mapstructure:"top"`
	FirstOnly bool `mapstructure:"first_only"`
}

// WatchConfig holds settings for merge --watch.
type WatchConfig struct {
	Pattern string        `mapstructure:"pattern"`
	Settle  time.Duration `mapstructure:"settle"`
}

// LLMConfig holds configuration for the explanation provider.
type LLMConfig struct {
	// Provider selects which LLM to use. Only "ollama" is supported.
	Provider string `mapstructure:"provider"`

	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	Ollama OllamaConfig `mapstructure:"ollama"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	Host  string `mapstructure:"host"`  // API endpoint
	Model string `mapstructure:"model"` // Default model name
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

var validFormats = map[string]bool{"text": true, "json": true, "table": true}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if !validFormats[strings.ToLower(c.Format)] {
		return fmt.Errorf("invalid format %q (use text, json or table)", c.Format)
	}
	switch strings.ToLower(c.Color) {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("invalid color mode %q (use auto, always or never)", c.Color)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is empty")
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (use json or console)", c.Log.Format)
	}
	if c.Collect.ProjectLimit < 0 {
		return fmt.Errorf("collect.project_limit must not be negative")
	}
	if c.Watch.Settle < 0 {
		return fmt.Errorf("watch.settle must not be negative")
	}
	return nil
}
