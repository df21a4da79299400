package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Matching.DateToleranceDays)
	assert.Equal(t, 0.95, cfg.Thresholds.AutoApply)
	assert.InDelta(t, 1.0, cfg.Matching.DateWeight+cfg.Matching.DescriptionWeight, 1e-9)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bankrecon.yaml")

	cfg := Default()
	cfg.Thresholds.AutoApply = 0.9
	cfg.Scorer.Workers = 8
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "default ok",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero tolerance",
			mutate:  func(c *Config) { c.Matching.DateToleranceDays = 0 },
			wantErr: true,
		},
		{
			name:    "lag not below tolerance",
			mutate:  func(c *Config) { c.Matching.SettlementLagDays = 3 },
			wantErr: true,
		},
		{
			name: "weights do not sum to one",
			mutate: func(c *Config) {
				c.Matching.DateWeight = 0.5
				c.Matching.DescriptionWeight = 0.6
			},
			wantErr: true,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Thresholds.AutoApply = 1.5 },
			wantErr: true,
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.Scorer.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
