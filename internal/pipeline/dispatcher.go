// Package pipeline implements the four stages of the exclusion pipeline.
// Each stage is a stateless handler triggered by one message; stages
// coordinate only through the artifact store and the messaging backbone,
// and every handler is safe to run twice with the same input.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/metrics"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

func observeStage(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Dispatcher is the account fan-out stage: one run request in, one message
// per enabled account out.
type Dispatcher struct {
	config service.ConfigProvider
	pub    service.Publisher
	logger *slog.Logger
	retry  service.RetryOptions
}

// NewDispatcher creates the fan-out stage.
func NewDispatcher(config service.ConfigProvider, pub service.Publisher, retry service.RetryOptions, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{config: config, pub: pub, retry: retry, logger: logger}
}

// Dispatch emits one AccountMessage per enabled account. Failing to read the
// account list fails the whole invocation; failing to publish one account is
// retried, then reported, and the remaining accounts still go out. Returns
// the number of accounts dispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.RunRequest) (int, error) {
	defer observeStage("dispatch", time.Now())

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	accounts, err := d.config.AccountConfigs(ctx, req.SheetID)
	if err != nil {
		return 0, fmt.Errorf("failed to read account list: %w", err)
	}

	if req.CustomerID != "" {
		accounts = selectAccount(accounts, req)
	}

	dispatched := 0
	failed := 0
	for _, account := range accounts {
		msg := model.AccountMessage{
			RunID:        req.RunID,
			SheetID:      req.SheetID,
			CustomerID:   account.CustomerID,
			LookbackDays: account.LookbackDays,
			GadsFilters:  account.GadsFilters,
			DryRun:       req.DryRun,
		}
		if req.LookbackDays > 0 {
			msg.LookbackDays = req.LookbackDays
		}
		if req.GadsFilters != "" {
			msg.GadsFilters = req.GadsFilters
		}

		err := common.WithRetry(ctx, func() error {
			return d.pub.Publish(ctx, model.TopicDispatch, msg)
		}, d.retry)
		if err != nil {
			failed++
			common.LogError(err, "failed to dispatch account", common.Fields{
				"customer_id": account.CustomerID,
				"run_id":      req.RunID,
			})
			continue
		}
		dispatched++
	}

	d.logger.Info("account fan-out complete",
		"run_id", req.RunID,
		"dispatched", dispatched,
		"failed", failed)

	return dispatched, nil
}

// selectAccount narrows the fan-out to one account. An account missing from
// the sheet is still dispatched with the request's parameters so operators
// can trigger ad-hoc runs.
func selectAccount(accounts []model.AccountConfig, req model.RunRequest) []model.AccountConfig {
	for _, account := range accounts {
		if account.CustomerID == req.CustomerID {
			return []model.AccountConfig{account}
		}
	}

	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	return []model.AccountConfig{{
		CustomerID:   req.CustomerID,
		LookbackDays: lookback,
		GadsFilters:  req.GadsFilters,
	}}
}
