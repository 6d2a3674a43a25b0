package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/ads-placement-excluder/internal/bus"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the pipeline workers without the HTTP trigger",
		Long: `Consumes the pipeline topics until interrupted. Multiple worker
processes may run against the same consumer group; the streams hand each
message to exactly one of them, and pending messages from a dead worker are
reclaimed after the configured idle time.`,
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

			a.runConsumers(ctx, client, handlerMap(reporter, enricher, excluder))
			return nil
		},
	}
}
