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
	"github.com/Veraticus/ads-placement-excluder/internal/rules"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

// ExcluderOptions are the operator-level safety switches for the decision
// stage.
type ExcluderOptions struct {
	// DryRun skips the platform call entirely and records nothing.
	DryRun bool
	// ValidateOnly submits with the platform's validate-only flag set: the
	// platform checks the batch but applies nothing, so no exclusion
	// records are written either.
	ValidateOnly bool
}

// Excluder is the decision stage: it evaluates the filter rules over the
// joined view of one account and submits the matching delta to the shared
// exclusion list.
type Excluder struct {
	config  service.ConfigProvider
	ads     service.AdsAPI
	store   *artifact.Store
	query   Query
	retry   service.RetryOptions
	options ExcluderOptions
	logger  *slog.Logger
	now     func() time.Time
}

// Outcome summarizes one decision-stage invocation, mostly for the CLI.
type Outcome struct {
	Evaluated int
	Matched   int
	Submitted int
	Rejected  int
	DryRun    bool
}

// NewExcluder creates the decision stage.
func NewExcluder(config service.ConfigProvider, ads service.AdsAPI, store *artifact.Store, q Query, retry service.RetryOptions, options ExcluderOptions, logger *slog.Logger) *Excluder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Excluder{
		config:  config,
		ads:     ads,
		store:   store,
		query:   q,
		retry:   retry,
		options: options,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle runs the decision stage for one account. Only placements that are
// not already in the exclusion log are submitted, so redelivery and
// re-triggered runs converge to zero new submissions. Partial platform
// failures record the accepted subset only; the rejected channels stay
// eligible for the next run.
func (x *Excluder) Handle(ctx context.Context, msg model.ExcludeMessage) (Outcome, error) {
	defer observeStage("exclude", time.Now())

	var outcome Outcome
	outcome.DryRun = x.options.DryRun || msg.DryRun

	ruleSet, err := x.config.FilterRules(ctx, msg.SheetID)
	if err != nil {
		return outcome, fmt.Errorf("failed to read filter rules: %w", err)
	}

	matcher, failures := rules.NewMatcher(ruleSet, x.logger)
	metrics.SkippedRules.Add(float64(len(failures)))
	if matcher.Len() == 0 {
		x.logger.Warn("no usable filter rules, nothing to decide",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"invalid", len(failures))
		return outcome, nil
	}

	joined, stats, err := x.query.JoinedRows(ctx, msg.CustomerID)
	if err != nil {
		return outcome, fmt.Errorf("failed to build joined view: %w", err)
	}
	metrics.DroppedRows.Add(float64(stats.DroppedRows))
	outcome.Evaluated = len(joined)

	matchedRule := make(map[string]string)
	var delta []string
	for _, row := range joined {
		if row.AlreadyExcluded {
			continue
		}
		if name, ok := matcher.Match(row); ok {
			matchedRule[row.Placement] = name
			delta = append(delta, row.Placement)
		}
	}
	outcome.Matched = len(delta)

	if len(delta) == 0 {
		x.logger.Info("no new placements to exclude",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"evaluated", len(joined))
		return outcome, nil
	}

	if outcome.DryRun {
		for _, placement := range delta {
			x.logger.Info("dry run: would exclude placement",
				"customer_id", msg.CustomerID,
				"placement", placement,
				"rule", matchedRule[placement])
		}
		x.logger.Info("dry run complete",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"would_exclude", len(delta))
		return outcome, nil
	}

	var result *service.ExclusionResult
	err = common.WithRetry(ctx, func() error {
		var submitErr error
		result, submitErr = x.ads.ExcludePlacements(ctx, service.ExclusionRequest{
			CustomerID:   msg.CustomerID,
			ChannelIDs:   delta,
			ValidateOnly: x.options.ValidateOnly,
		})
		return submitErr
	}, x.retry)
	if err != nil {
		return outcome, fmt.Errorf("exclusion submission failed for %s: %w", msg.CustomerID, err)
	}

	outcome.Submitted = len(result.Accepted)
	outcome.Rejected = len(result.Rejected)
	metrics.ExclusionsSubmitted.Add(float64(len(result.Accepted)))
	metrics.ExclusionsRejected.Add(float64(len(result.Rejected)))

	for channel, reason := range result.Rejected {
		x.logger.Warn("platform rejected exclusion",
			"customer_id", msg.CustomerID,
			"placement", channel,
			"reason", reason)
	}

	if x.options.ValidateOnly {
		x.logger.Info("validate-only submission complete",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"validated", len(result.Accepted))
		return outcome, nil
	}

	if len(result.Accepted) > 0 {
		updated := x.now().UTC()
		rows := make([][]string, 0, len(result.Accepted))
		for _, placement := range result.Accepted {
			record := model.ExclusionRecord{
				Placement:       placement,
				CustomerID:      msg.CustomerID,
				MatchedRule:     matchedRule[placement],
				DatetimeUpdated: updated,
			}
			rows = append(rows, record.CSVRow())
		}
		name := exclusionArtifactName(msg.CustomerID, msg.RunID, x.now)
		path, err := x.store.Write(artifact.NamespaceExclusion, name, model.ExclusionHeader, rows)
		if err != nil {
			// The platform write already happened; losing this artifact
			// means the next run re-submits, which the platform treats
			// as a no-op.
			return outcome, fmt.Errorf("failed to persist exclusion artifact: %w", err)
		}
		x.logger.Info("exclusion artifact written",
			"customer_id", msg.CustomerID,
			"run_id", msg.RunID,
			"excluded", len(result.Accepted),
			"rejected", len(result.Rejected),
			"path", path)
	}

	return outcome, nil
}

func exclusionArtifactName(customerID, runID string, now func() time.Time) string {
	if runID == "" {
		return fmt.Sprintf("%s-%s", customerID, now().UTC().Format("20060102T150405Z"))
	}
	return fmt.Sprintf("%s-%s", customerID, runID)
}
