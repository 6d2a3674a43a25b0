package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ads-placement-excluder/internal/bus"
	"github.com/Veraticus/ads-placement-excluder/internal/cli"
	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/pipeline"
)

func dispatchCmd() *cobra.Command {
	var (
		sheetID      string
		customerID   string
		lookbackDays int
		gadsFilters  string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Fan a run out to the workers and exit",
		Long: `Reads the account list from the config sheet and publishes one message
per enabled account. The workers do the rest; this command does not wait for
the run to finish.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := loadApp()
			if err != nil {
				return err
			}

			sheet := sheetID
			if sheet == "" {
				sheet = a.cfg.Sheets.DefaultSheetID
			}
			if sheet == "" {
				return common.NewUserError("no sheet id: pass --sheet-id or set sheets.sheet_id", nil)
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

			dispatcher := pipeline.NewDispatcher(provider, bus.NewRedisBus(client, a.logger), a.cfg.RetryOptions(), a.logger)

			req := model.RunRequest{
				SheetID:      sheet,
				CustomerID:   customerID,
				LookbackDays: lookbackDays,
				GadsFilters:  gadsFilters,
				DryRun:       dryRun,
			}
			dispatched, err := dispatcher.Dispatch(ctx, req)
			if err != nil {
				fmt.Println(cli.FormatError("dispatch failed"))
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("dispatched %d account(s)", dispatched)))
			if dryRun {
				fmt.Println(cli.FormatWarning("dry run: nothing will be submitted to the platform"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sheetID, "sheet-id", "", "config sheet ID (default: sheets.sheet_id)")
	cmd.Flags().StringVar(&customerID, "customer-id", "", "limit the run to one account")
	cmd.Flags().IntVar(&lookbackDays, "lookback", 0, "override the report lookback window in days")
	cmd.Flags().StringVar(&gadsFilters, "report-filter", "", "override the GAQL metric filter fragment")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate rules without submitting exclusions")

	return cmd
}
