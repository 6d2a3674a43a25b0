package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/ads-placement-excluder/internal/artifact"
	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/metrics"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/query"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

// enrichBatchSize caps how many placements one enrichment message carries,
// matching the video platform's channels.list page size.
const enrichBatchSize = 50

// Query is the subset of the query engine the pipeline stages consume,
// narrowed to an interface so stage tests can run against a fake.
type Query interface {
	NovelPlacements(ctx context.Context, customerID string) ([]string, query.LoadStats, error)
	EnrichedPlacements(ctx context.Context) (map[string]bool, error)
	JoinedRows(ctx context.Context, customerID string) ([]model.JoinedRow, query.LoadStats, error)
}

// Reporter is the report extraction stage: it pulls the placement report for
// one account, persists it, and forwards never-enriched placements.
type Reporter struct {
	ads    service.AdsAPI
	store  *artifact.Store
	query  Query
	pub    service.Publisher
	retry  service.RetryOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewReporter creates the report extraction stage.
func NewReporter(ads service.AdsAPI, store *artifact.Store, q Query, pub service.Publisher, retry service.RetryOptions, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		ads:    ads,
		store:  store,
		query:  q,
		pub:    pub,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// Handle processes one account message end to end. An empty report is a
// normal terminal outcome and still produces an artifact; accounts with
// report rows always reach the decision stage, through enrichment when novel
// placements exist and directly otherwise.
func (r *Reporter) Handle(ctx context.Context, msg model.AccountMessage) error {
	defer observeStage("report", time.Now())

	var records []model.PlacementRecord
	err := common.WithRetry(ctx, func() error {
		var reportErr error
		records, reportErr = r.ads.PlacementReport(ctx, service.ReportRequest{
			CustomerID:   msg.CustomerID,
			LookbackDays: msg.LookbackDays,
			GadsFilters:  msg.GadsFilters,
		})
		return reportErr
	}, r.retry)
	if err != nil {
		return fmt.Errorf("placement report failed for %s: %w", msg.CustomerID, err)
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.CSVRow())
	}

	name := r.artifactName(msg.CustomerID, msg.RunID)
	path, err := r.store.Write(artifact.NamespaceReport, name, model.ReportHeader, rows)
	if err != nil {
		return fmt.Errorf("failed to persist report artifact: %w", err)
	}

	r.logger.Info("report artifact written",
		"customer_id", msg.CustomerID,
		"run_id", msg.RunID,
		"rows", len(rows),
		"path", path)

	// No activity in the window: nothing to enrich, nothing to decide.
	if len(records) == 0 {
		return nil
	}

	novel, stats, err := r.query.NovelPlacements(ctx, msg.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to compute novel placements: %w", err)
	}
	metrics.DroppedRows.Add(float64(stats.DroppedRows))

	if len(novel) == 0 {
		// Everything already enriched; the account can go straight to
		// decisioning against the existing metadata.
		return r.publish(ctx, model.TopicExclude, model.ExcludeMessage{
			RunID:      msg.RunID,
			SheetID:    msg.SheetID,
			CustomerID: msg.CustomerID,
			DryRun:     msg.DryRun,
		})
	}

	for start := 0; start < len(novel); start += enrichBatchSize {
		end := start + enrichBatchSize
		if end > len(novel) {
			end = len(novel)
		}
		err := r.publish(ctx, model.TopicEnrich, model.EnrichMessage{
			RunID:      msg.RunID,
			SheetID:    msg.SheetID,
			CustomerID: msg.CustomerID,
			Placements: novel[start:end],
			DryRun:     msg.DryRun,
		})
		if err != nil {
			return err
		}
	}

	r.logger.Info("novel placements forwarded",
		"customer_id", msg.CustomerID,
		"run_id", msg.RunID,
		"novel", len(novel))

	return nil
}

func (r *Reporter) publish(ctx context.Context, topic string, payload any) error {
	err := common.WithRetry(ctx, func() error {
		return r.pub.Publish(ctx, topic, payload)
	}, r.retry)
	if err != nil {
		return fmt.Errorf("%w: topic %s: %v", common.ErrPublishFailed, topic, err)
	}
	return nil
}

// artifactName keys an artifact by account and run so a redelivered message
// rewrites the same file with the same content instead of appending a twin.
func (r *Reporter) artifactName(customerID, runID string) string {
	if runID == "" {
		return fmt.Sprintf("%s-%s", customerID, r.now().UTC().Format("20060102T150405Z"))
	}
	return fmt.Sprintf("%s-%s", customerID, runID)
}
