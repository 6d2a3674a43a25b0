package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ads-placement-excluder/internal/bus"
	"github.com/Veraticus/ads-placement-excluder/internal/pipeline"
	"github.com/Veraticus/ads-placement-excluder/internal/trigger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger and all pipeline workers in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := loadApp()
			if err != nil {
				return err
			}

			client, err := bus.NewClient(ctx, a.cfg.Redis.URL)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			provider, err := a.sheetsProvider(ctx)
			if err != nil {
				return err
			}

			pub := bus.NewRedisBus(client, a.logger)
			reporter, enricher, excluder, err := a.stages(ctx, provider, pub)
			if err != nil {
				return err
			}

			dispatcher := pipeline.NewDispatcher(provider, pub, a.cfg.RetryOptions(), a.logger)
			server := trigger.NewServer(dispatcher, func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}, a.cfg.Sheets.DefaultSheetID, a.logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Listen(a.cfg.Trigger.Addr)
			}()

			go a.runConsumers(ctx, client, handlerMap(reporter, enricher, excluder))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
