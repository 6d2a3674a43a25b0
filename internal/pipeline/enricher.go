package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/ads-placement-excluder/internal/artifact"
	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

// Enricher is the channel enrichment stage: it resolves a batch of placements
// to channel metadata, optionally detects the title language, and persists
// the batch as one artifact.
type Enricher struct {
	video    service.VideoAPI
	detector service.LanguageDetector // nil disables detection regardless of sheet config
	config   service.ConfigProvider
	store    *artifact.Store
	query    Query
	pub      service.Publisher
	retry    service.RetryOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewEnricher creates the enrichment stage. detector may be nil when no
// detection credentials are configured.
func NewEnricher(video service.VideoAPI, detector service.LanguageDetector, config service.ConfigProvider, store *artifact.Store, q Query, pub service.Publisher, retry service.RetryOptions, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		video:    video,
		detector: detector,
		config:   config,
		store:    store,
		query:    q,
		pub:      pub,
		retry:    retry,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle enriches one batch. Redelivered batches re-check the enrichment log
// first, so a placement is sent to the video platform at most once; channels
// the platform omits and titles that fail detection simply stay unenriched
// and are retried by a later run. The account is forwarded to decisioning
// whether or not anything new was written.
func (e *Enricher) Handle(ctx context.Context, msg model.EnrichMessage) error {
	defer observeStage("enrich", time.Now())

	enriched, err := e.query.EnrichedPlacements(ctx)
	if err != nil {
		return fmt.Errorf("failed to read enrichment log: %w", err)
	}

	pending := make([]string, 0, len(msg.Placements))
	for _, placement := range msg.Placements {
		if !enriched[placement] {
			pending = append(pending, placement)
		}
	}

	if len(pending) == 0 {
		e.logger.Info("batch already enriched",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"placements", len(msg.Placements))
		return e.forward(ctx, msg)
	}

	detect, err := e.translationEnabled(ctx, msg.SheetID)
	if err != nil {
		return err
	}

	var stats []model.ChannelStats
	err = common.WithRetry(ctx, func() error {
		var fetchErr error
		stats, fetchErr = e.video.Channels(ctx, pending)
		return fetchErr
	}, e.retry)
	if err != nil {
		return fmt.Errorf("channel fetch failed for %s: %w", msg.CustomerID, err)
	}

	updated := e.now().UTC()
	records := make([]model.ChannelMetadata, 0, len(stats))
	for _, s := range stats {
		record := model.ChannelMetadata{
			Placement:       s.ChannelID,
			ViewCount:       s.ViewCount,
			VideoCount:      s.VideoCount,
			SubscriberCount: s.SubscriberCount,
			Title:           s.Title,
			Country:         s.Country,
			DefaultLanguage: s.DefaultLanguage,
			DatetimeUpdated: updated,
		}
		if detect && s.Title != "" {
			detection, err := e.detector.Detect(ctx, s.Title)
			if err != nil {
				// Leave the channel unenriched so a later run retries it.
				common.LogError(err, "language detection failed, skipping channel", common.Fields{
					"placement": s.ChannelID,
				})
				continue
			}
			record.TitleLanguage = detection.Language
			record.TitleLanguageConfidence = detection.Confidence
		}
		records = append(records, record)
	}

	if len(records) > 0 {
		rows := make([][]string, 0, len(records))
		for _, record := range records {
			rows = append(rows, record.CSVRow())
		}
		name := batchArtifactName(msg.CustomerID, msg.Placements)
		path, err := e.store.Write(artifact.NamespaceChannel, name, model.ChannelHeader, rows)
		if err != nil {
			return fmt.Errorf("failed to persist channel artifact: %w", err)
		}
		e.logger.Info("channel artifact written",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"requested", len(pending),
			"enriched", len(records),
			"path", path)
	} else {
		e.logger.Warn("batch produced no enrichable channels",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"requested", len(pending))
	}

	return e.forward(ctx, msg)
}

func (e *Enricher) forward(ctx context.Context, msg model.EnrichMessage) error {
	err := common.WithRetry(ctx, func() error {
		return e.pub.Publish(ctx, model.TopicExclude, model.ExcludeMessage{
			RunID:      msg.RunID,
			SheetID:    msg.SheetID,
			CustomerID: msg.CustomerID,
			DryRun:     msg.DryRun,
		})
	}, e.retry)
	if err != nil {
		return fmt.Errorf("%w: topic %s: %v", common.ErrPublishFailed, model.TopicExclude, err)
	}
	return nil
}

// translationEnabled resolves the sheet flag against the wired detector. A
// sheet asking for detection without a configured detector is a degraded but
// workable state; enrichment proceeds without languages.
func (e *Enricher) translationEnabled(ctx context.Context, sheetID string) (bool, error) {
	enabled, err := e.config.TranslationEnabled(ctx, sheetID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read translation flag: %w", err)
	}
	if enabled && e.detector == nil {
		e.logger.Warn("translation requested but no detector configured")
		return false, nil
	}
	return enabled, nil
}

// batchArtifactName derives a deterministic name from the batch content, so
// a crash between write and ack makes the redelivery rewrite the same file.
func batchArtifactName(customerID string, placements []string) string {
	sum := sha256.Sum256([]byte(strings.Join(placements, "\n")))
	return fmt.Sprintf("%s-%s", customerID, hex.EncodeToString(sum[:6]))
}
