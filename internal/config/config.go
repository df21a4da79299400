package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level bankrecon.yaml configuration.
type Config struct {
	Timezone   string           `yaml:"timezone"`
	Matching   MatchingConfig   `yaml:"matching"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Scorer     ScorerConfig     `yaml:"scorer"`
}

// MatchingConfig controls candidate generation and the local score
// heuristic.
type MatchingConfig struct {
	// DateToleranceDays is the maximum calendar-day distance between a
	// bank line and a ledger entry for them to be considered candidates.
	DateToleranceDays int `yaml:"date_tolerance_days"`
	// SettlementLagDays is the posting lag that still counts as a perfect
	// date match; bank statements routinely settle a day after the books.
	SettlementLagDays int `yaml:"settlement_lag_days"`
	// DateWeight and DescriptionWeight must sum to 1.
	DateWeight        float64 `yaml:"date_weight"`
	DescriptionWeight float64 `yaml:"description_weight"`
}

// ThresholdsConfig controls auto-application of proposed adjustments.
type ThresholdsConfig struct {
	// AutoApply is the strict lower bound: an adjustment is applied only
	// when its confidence is strictly greater than this value.
	AutoApply float64 `yaml:"auto_apply"`
}

// ScorerConfig controls the scoring worker pool and the external oracle.
type ScorerConfig struct {
	Workers              int    `yaml:"workers"`
	OracleTimeoutSeconds int    `yaml:"oracle_timeout_seconds"`
	Model                string `yaml:"model"`
}

// OracleTimeout returns the per-call deadline for the external oracle.
func (s ScorerConfig) OracleTimeout() time.Duration {
	return time.Duration(s.OracleTimeoutSeconds) * time.Second
}

// Load reads a bankrecon.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with the reference parameters.
func Default() *Config {
	return &Config{
		Timezone: "America/Sao_Paulo",
		Matching: MatchingConfig{
			DateToleranceDays: 3,
			SettlementLagDays: 1,
			DateWeight:        0.4,
			DescriptionWeight: 0.6,
		},
		Thresholds: ThresholdsConfig{
			AutoApply: 0.95,
		},
		Scorer: ScorerConfig{
			Workers:              4,
			OracleTimeoutSeconds: 10,
			Model:                "gemini-2.5-flash",
		},
	}
}

// Validate checks invariants the engine relies on.
func (c *Config) Validate() error {
	if c.Matching.DateToleranceDays <= 0 {
		return fmt.Errorf("matching.date_tolerance_days must be positive, got %d", c.Matching.DateToleranceDays)
	}
	if c.Matching.SettlementLagDays < 0 || c.Matching.SettlementLagDays >= c.Matching.DateToleranceDays {
		return fmt.Errorf("matching.settlement_lag_days must be in [0, date_tolerance_days), got %d", c.Matching.SettlementLagDays)
	}
	if sum := c.Matching.DateWeight + c.Matching.DescriptionWeight; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("matching weights must sum to 1, got %g", sum)
	}
	if c.Thresholds.AutoApply < 0 || c.Thresholds.AutoApply > 1 {
		return fmt.Errorf("thresholds.auto_apply must be in [0,1], got %g", c.Thresholds.AutoApply)
	}
	if c.Scorer.Workers <= 0 {
		return fmt.Errorf("scorer.workers must be positive, got %d", c.Scorer.Workers)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured client timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
