// Package language implements the optional language-detection boundary over
// the Cloud Translation API. It is only consulted when the config sheet
// enables title translation filtering.
package language

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"

	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// Config holds the configuration for the detection client.
type Config struct {
	APIKey string // empty uses application default credentials
}

// Detector detects the language of channel titles.
type Detector struct {
	service *translate.Service
	logger  *slog.Logger
}

// NewDetector creates the detection client.
func NewDetector(ctx context.Context, config Config, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	service, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate service: %w", err)
	}

	return &Detector{service: service, logger: logger}, nil
}

// Detect returns the detected language of the text and its confidence.
func (d *Detector) Detect(ctx context.Context, text string) (model.LanguageDetection, error) {
	resp, err := d.service.Detections.List([]string{text}).Context(ctx).Do()
	if err != nil {
		return model.LanguageDetection{}, fmt.Errorf("%w: %v", common.ErrDetectionFailed, err)
	}
	if len(resp.Detections) == 0 || len(resp.Detections[0]) == 0 {
		return model.LanguageDetection{}, fmt.Errorf("%w: empty response", common.ErrDetectionFailed)
	}

	best := resp.Detections[0][0]
	return model.LanguageDetection{
		Language:   best.Language,
		Confidence: best.Confidence,
	}, nil
}
