package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/ads-placement-excluder/internal/ads"
	"github.com/Veraticus/ads-placement-excluder/internal/artifact"
	"github.com/Veraticus/ads-placement-excluder/internal/bus"
	"github.com/Veraticus/ads-placement-excluder/internal/config"
	"github.com/Veraticus/ads-placement-excluder/internal/language"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/pipeline"
	"github.com/Veraticus/ads-placement-excluder/internal/query"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
	"github.com/Veraticus/ads-placement-excluder/internal/sheets"
	"github.com/Veraticus/ads-placement-excluder/internal/youtube"
)

// app wires the shared infrastructure every command needs.
type app struct {
	cfg    *config.Config
	store  *artifact.Store
	engine *query.Engine
	logger *slog.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default()

	store, err := artifact.NewStore(cfg.Storage.Root, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		store:  store,
		engine: query.NewEngine(store, logger),
		logger: logger,
	}, nil
}

// stages builds the three message-driven pipeline stages over a publisher.
func (a *app) stages(ctx context.Context, provider service.ConfigProvider, pub service.Publisher) (*pipeline.Reporter, *pipeline.Enricher, *pipeline.Excluder, error) {
	retry := a.cfg.RetryOptions()

	adsClient, err := ads.NewClient(ctx, ads.Config{
		Endpoint:        a.cfg.Ads.Endpoint,
		DeveloperToken:  a.cfg.Ads.DeveloperToken,
		LoginCustomerID: a.cfg.Ads.LoginCustomerID,
		ClientID:        a.cfg.Ads.ClientID,
		ClientSecret:    a.cfg.Ads.ClientSecret,
		RefreshToken:    a.cfg.Ads.RefreshToken,
		SharedSetID:     a.cfg.Ads.SharedSetID,
	}, a.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create ads client: %w", err)
	}

	videoClient, err := youtube.NewClient(ctx, youtube.Config{APIKey: a.cfg.YouTube.APIKey}, a.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create youtube client: %w", err)
	}

	// Language detection is optional; without an API key the enricher runs
	// with detection off even if the sheet asks for it.
	var detector service.LanguageDetector
	if a.cfg.Language.APIKey != "" {
		d, err := language.NewDetector(ctx, language.Config{APIKey: a.cfg.Language.APIKey}, a.logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create language detector: %w", err)
		}
		detector = d
	}

	reporter := pipeline.NewReporter(adsClient, a.store, a.engine, pub, retry, a.logger)
	enricher := pipeline.NewEnricher(videoClient, detector, provider, a.store, a.engine, pub, retry, a.logger)
	excluder := pipeline.NewExcluder(provider, adsClient, a.store, a.engine, retry, pipeline.ExcluderOptions{
		DryRun:       a.cfg.Excluder.DryRun,
		ValidateOnly: a.cfg.Ads.ValidateOnly,
	}, a.logger)

	return reporter, enricher, excluder, nil
}

func (a *app) sheetsProvider(ctx context.Context) (service.ConfigProvider, error) {
	provider, err := sheets.NewProvider(ctx, sheets.Config{
		CredentialsFile: a.cfg.Sheets.CredentialsFile,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets provider: %w", err)
	}
	return provider, nil
}

func (a *app) consumerName() string {
	if a.cfg.Worker.Consumer != "" {
		return a.cfg.Worker.Consumer
	}
	host, err := os.Hostname()
	if err != nil {
		return "ape-worker"
	}
	return host
}

// runConsumers blocks until the context is canceled, consuming every topic
// with the configured number of consumers.
func (a *app) runConsumers(ctx context.Context, client *redis.Client, handlers map[string]bus.Handler) {
	var wg sync.WaitGroup
	name := a.consumerName()

	for topic, handler := range handlers {
		for i := 0; i < a.cfg.Worker.Concurrency; i++ {
			consumer := bus.NewConsumer(client, bus.ConsumerOptions{
				Topic:       topic,
				Group:       a.cfg.Worker.Group,
				Consumer:    fmt.Sprintf("%s-%d", name, i),
				BlockTime:   a.cfg.Worker.BlockTime,
				ReclaimIdle: a.cfg.Worker.ReclaimIdle,
			}, a.logger)

			wg.Add(1)
			go func(c *bus.Consumer, h bus.Handler) {
				defer wg.Done()
				if err := c.Run(ctx, h); err != nil && ctx.Err() == nil {
					a.logger.Error("consumer exited", "error", err)
				}
			}(consumer, handler)
		}
	}

	wg.Wait()
}

// handlerMap wires each stage to its topic.
func handlerMap(reporter *pipeline.Reporter, enricher *pipeline.Enricher, excluder *pipeline.Excluder) map[string]bus.Handler {
	return map[string]bus.Handler{
		model.TopicDispatch: reporter.Handler(),
		model.TopicEnrich:   enricher.Handler(),
		model.TopicExclude:  excluder.Handler(),
	}
}
