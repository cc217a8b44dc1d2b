// Package config provides configuration loading and structs for the cratedig server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/cratedig/internal/cluster"
	"github.com/hyperjump/cratedig/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Scan       ScanConfig       `yaml:"scan"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
	Organize   OrganizeConfig   `yaml:"organize"`
	Search     SearchConfig     `yaml:"search"`
	Watch      WatchConfig      `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the track database and catalog index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	CatalogIndexPath string `yaml:"catalog_index_path"`
}

// ScanConfig controls discovery, fingerprinting and analysis.
type ScanConfig struct {
	Extensions         []string `yaml:"extensions"`
	Workers            int      `yaml:"workers"`
	FFmpegPath         string   `yaml:"ffmpeg_path"`
	FFprobePath        string   `yaml:"ffprobe_path"`
	FingerprintSeconds int      `yaml:"fingerprint_seconds"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	Analyze            bool     `yaml:"analyze"`
}

// Timeout returns the per-file external tool timeout.
func (s ScanConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// DuplicatesConfig holds the clustering thresholds. Thresholds are pointers
// so that an explicit 0 is kept; nil means the clustering default.
type DuplicatesConfig struct {
	PrefixLen      int      `yaml:"prefix_len"`
	ExactThreshold *float64 `yaml:"exact_threshold"`
	NearThreshold  *float64 `yaml:"near_threshold"`
	Workers        int      `yaml:"workers"`
}

// Cluster converts the section to a clustering config.
func (d DuplicatesConfig) Cluster() cluster.Config {
	cfg := cluster.DefaultConfig()
	if d.PrefixLen != 0 {
		cfg.PrefixLen = d.PrefixLen
	}
	if d.ExactThreshold != nil {
		cfg.ExactThreshold = *d.ExactThreshold
	}
	if d.NearThreshold != nil {
		cfg.NearThreshold = *d.NearThreshold
	}
	cfg.Workers = d.Workers
	return cfg
}

// OrganizeConfig holds organizer defaults.
type OrganizeConfig struct {
	OutputDir string `yaml:"output_dir"`
	DryRun    *bool  `yaml:"dry_run"`
}

// DryRunOrDefault returns whether organize only reports; defaults to true when unset.
func (o *OrganizeConfig) DryRunOrDefault() bool {
	if o.DryRun != nil {
		return *o.DryRun
	}
	return true
}

// SearchConfig holds track search settings.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	MaxLimit       int     `yaml:"max_limit"`
	FilenameBoost  float64 `yaml:"filename_boost"`
	Fuzziness      int     `yaml:"fuzziness"`
	SuggestionEdit int     `yaml:"suggestion_max_distance"`
	// Ranking multipliers; unset values keep the ranker defaults.
	Ranking ranking.Config `yaml:"ranking"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.CatalogIndexPath = expandPath(cfg.Storage.CatalogIndexPath, configDir)
	if cfg.Organize.OutputDir != "" {
		cfg.Organize.OutputDir = expandPath(cfg.Organize.OutputDir, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that would make scans or duplicate detection fail.
func (c *Config) Validate() error {
	if err := c.Duplicates.Cluster().Validate(); err != nil {
		return fmt.Errorf("duplicates: %w", err)
	}
	if c.Scan.Workers < 0 {
		return fmt.Errorf("scan: workers must be >= 0, got %d", c.Scan.Workers)
	}
	if c.Scan.FingerprintSeconds < 0 || c.Scan.TimeoutSeconds < 0 {
		return fmt.Errorf("scan: durations must be >= 0")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
