// Package config loads the application configuration via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

// Config is the full application configuration.
type Config struct {
	Logging  LoggingConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Sheets   SheetsConfig
	Ads      AdsConfig
	YouTube  YouTubeConfig
	Language LanguageConfig
	Trigger  TriggerConfig
	Worker   WorkerConfig
	Retry    RetryConfig
	Excluder ExcluderConfig
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// StorageConfig locates the artifact store.
type StorageConfig struct {
	Root string
}

// RedisConfig locates the messaging backbone.
type RedisConfig struct {
	URL string
}

// SheetsConfig configures the config-sheet reader.
type SheetsConfig struct {
	CredentialsFile string // service account JSON key
	DefaultSheetID  string
}

// AdsConfig configures the Google Ads API client.
type AdsConfig struct {
	Endpoint        string
	DeveloperToken  string
	LoginCustomerID string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	SharedSetID     string // the pre-existing shared exclusion list
	ValidateOnly    bool   // ask the API to validate writes without applying
}

// YouTubeConfig configures the video platform client.
type YouTubeConfig struct {
	APIKey string
}

// LanguageConfig configures the language detection client.
type LanguageConfig struct {
	APIKey string
}

// TriggerConfig configures the HTTP trigger server.
type TriggerConfig struct {
	Addr string
}

// WorkerConfig configures stream consumers.
type WorkerConfig struct {
	Group       string
	Consumer    string
	Concurrency int
	BlockTime   time.Duration
	ReclaimIdle time.Duration
}

// RetryConfig is the default retry policy for external calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ExcluderConfig holds decision-stage knobs.
type ExcluderConfig struct {
	DryRun bool
	// RefreshMode controls enrichment staleness. "never" is the only
	// implemented mode: first enrichment is final until an operator
	// clears the youtube_channel namespace.
	RefreshMode string
}

// SetDefaults registers every config default with viper. Called before
// reading the config file so a minimal file is enough to run.
func SetDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.max_size_mb", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age_days", 28)
	viper.SetDefault("storage.root", "./data/artifacts")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("ads.endpoint", "https://googleads.googleapis.com/v16")
	viper.SetDefault("trigger.addr", ":8080")
	viper.SetDefault("worker.group", "ape")
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.block_time", 5*time.Second)
	viper.SetDefault("worker.reclaim_idle", 5*time.Minute)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.initial_delay", time.Second)
	viper.SetDefault("retry.max_delay", 30*time.Second)
	viper.SetDefault("excluder.dry_run", false)
	viper.SetDefault("excluder.refresh_mode", "never")
}

// Load materializes the typed config from viper's current state.
func Load() (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:      viper.GetString("logging.level"),
			Format:     viper.GetString("logging.format"),
			File:       viper.GetString("logging.file"),
			MaxSizeMB:  viper.GetInt("logging.max_size_mb"),
			MaxBackups: viper.GetInt("logging.max_backups"),
			MaxAgeDays: viper.GetInt("logging.max_age_days"),
		},
		Storage: StorageConfig{
			Root: viper.GetString("storage.root"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Sheets: SheetsConfig{
			CredentialsFile: viper.GetString("sheets.credentials_file"),
			DefaultSheetID:  viper.GetString("sheets.sheet_id"),
		},
		Ads: AdsConfig{
			Endpoint:        viper.GetString("ads.endpoint"),
			DeveloperToken:  viper.GetString("ads.developer_token"),
			LoginCustomerID: viper.GetString("ads.login_customer_id"),
			ClientID:        viper.GetString("ads.client_id"),
			ClientSecret:    viper.GetString("ads.client_secret"),
			RefreshToken:    viper.GetString("ads.refresh_token"),
			SharedSetID:     viper.GetString("ads.shared_set_id"),
			ValidateOnly:    viper.GetBool("ads.validate_only"),
		},
		YouTube: YouTubeConfig{
			APIKey: viper.GetString("youtube.api_key"),
		},
		Language: LanguageConfig{
			APIKey: viper.GetString("language.api_key"),
		},
		Trigger: TriggerConfig{
			Addr: viper.GetString("trigger.addr"),
		},
		Worker: WorkerConfig{
			Group:       viper.GetString("worker.group"),
			Consumer:    viper.GetString("worker.consumer"),
			Concurrency: viper.GetInt("worker.concurrency"),
			BlockTime:   viper.GetDuration("worker.block_time"),
			ReclaimIdle: viper.GetDuration("worker.reclaim_idle"),
		},
		Retry: RetryConfig{
			MaxAttempts:  viper.GetInt("retry.max_attempts"),
			InitialDelay: viper.GetDuration("retry.initial_delay"),
			MaxDelay:     viper.GetDuration("retry.max_delay"),
		},
		Excluder: ExcluderConfig{
			DryRun:      viper.GetBool("excluder.dry_run"),
			RefreshMode: viper.GetString("excluder.refresh_mode"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that would otherwise fail deep inside a stage.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root must be set")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Excluder.RefreshMode != "never" {
		return fmt.Errorf("excluder.refresh_mode %q is not supported (only \"never\")", c.Excluder.RefreshMode)
	}
	return nil
}

// RetryOptions converts the retry policy into the form WithRetry takes.
func (c *Config) RetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   2.0,
	}
}
