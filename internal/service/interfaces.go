// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// ConfigProvider reads per-run configuration from the external sheet. The
// sheet is treated as a read-only snapshot; each invocation fetches fresh.
type ConfigProvider interface {
	// AccountConfigs returns one entry per enabled account row.
	AccountConfigs(ctx context.Context, sheetID string) ([]model.AccountConfig, error)
	// FilterRules returns all exclusion rules, including disabled ones.
	FilterRules(ctx context.Context, sheetID string) ([]model.FilterRule, error)
	// TranslationEnabled reports whether channel titles should be run
	// through language detection.
	TranslationEnabled(ctx context.Context, sheetID string) (bool, error)
}

// ReportRequest scopes one placement report pull.
type ReportRequest struct {
	CustomerID   string
	LookbackDays int
	GadsFilters  string // optional GAQL WHERE fragment
}

// ExclusionRequest is a batch of channels to add to the shared exclusion list.
type ExclusionRequest struct {
	CustomerID   string
	ChannelIDs   []string
	ValidateOnly bool
}

// ExclusionResult reports the per-channel outcome of a batch submission.
// A partial failure yields entries in both Accepted and Rejected.
type ExclusionResult struct {
	Accepted []string
	Rejected map[string]string // channel ID -> error message
}

// AdsAPI is the advertising platform boundary.
type AdsAPI interface {
	PlacementReport(ctx context.Context, req ReportRequest) ([]model.PlacementRecord, error)
	ExcludePlacements(ctx context.Context, req ExclusionRequest) (*ExclusionResult, error)
}

// VideoAPI is the video platform boundary. Implementations chunk requests to
// the platform's page size; channels the platform does not return are simply
// absent from the result.
type VideoAPI interface {
	Channels(ctx context.Context, channelIDs []string) ([]model.ChannelStats, error)
}

// LanguageDetector is the optional language detection boundary.
type LanguageDetector interface {
	Detect(ctx context.Context, text string) (model.LanguageDetection, error)
}

// Publisher puts one message onto a topic of the messaging backbone.
// Delivery downstream is at-least-once.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
