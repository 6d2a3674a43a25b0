package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "./data/artifacts", cfg.Storage.Root)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "https://googleads.googleapis.com/v16", cfg.Ads.Endpoint)
	assert.Equal(t, ":8080", cfg.Trigger.Addr)
	assert.Equal(t, "ape", cfg.Worker.Group)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Worker.BlockTime)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Excluder.DryRun)
	assert.Equal(t, "never", cfg.Excluder.RefreshMode)
}

func TestLoad_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("storage.root", "/var/lib/ape")
	viper.Set("excluder.dry_run", true)
	viper.Set("worker.concurrency", 8)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ape", cfg.Storage.Root)
	assert.True(t, cfg.Excluder.DryRun)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty storage root",
			mutate:  func(c *Config) { c.Storage.Root = "" },
			wantErr: "storage.root",
		},
		{
			name:    "non-positive concurrency",
			mutate:  func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr: "worker.concurrency",
		},
		{
			name:    "unsupported refresh mode",
			mutate:  func(c *Config) { c.Excluder.RefreshMode = "weekly" },
			wantErr: "refresh_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Storage:  StorageConfig{Root: "/tmp/artifacts"},
				Worker:   WorkerConfig{Concurrency: 4},
				Excluder: ExcluderConfig{RefreshMode: "never"},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRetryOptions(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     time.Minute,
	}}

	opts := cfg.RetryOptions()
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.Equal(t, 2*time.Second, opts.InitialDelay)
	assert.Equal(t, time.Minute, opts.MaxDelay)
	assert.Equal(t, 2.0, opts.Multiplier)
}
