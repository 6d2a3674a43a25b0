package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/ads-placement-excluder/internal/bus"
	"github.com/Veraticus/ads-placement-excluder/internal/cli"
	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/pipeline"
)

func runCmd() *cobra.Command {
	var (
		sheetID      string
		customerID   string
		lookbackDays int
		gadsFilters  string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline synchronously in this process",
		Long: `Runs dispatch, report, enrich, and exclude in order without Redis or
workers. Useful for one-off runs from a laptop and for trying out rule
changes with --dry-run.`,
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

			provider, err := a.sheetsProvider(ctx)
			if err != nil {
				return err
			}

			mem := bus.NewMemory()
			reporter, enricher, excluder, err := a.stages(ctx, provider, mem)
			if err != nil {
				return err
			}

			dispatcher := pipeline.NewDispatcher(provider, mem, a.cfg.RetryOptions(), a.logger)
			dispatched, err := dispatcher.Dispatch(ctx, model.RunRequest{
				SheetID:      sheet,
				CustomerID:   customerID,
				LookbackDays: lookbackDays,
				GadsFilters:  gadsFilters,
				DryRun:       dryRun,
			})
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("Running pipeline for %d account(s)", dispatched)))

			if err := drainAccounts(ctx, mem, reporter); err != nil {
				return err
			}
			if err := drainEnrichments(ctx, mem, enricher); err != nil {
				return err
			}
			if err := drainExclusions(ctx, mem, excluder, dryRun); err != nil {
				return err
			}

			fmt.Println(cli.FormatInfo("artifacts written under " + a.cfg.Storage.Root))
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

func drainAccounts(ctx context.Context, mem *bus.Memory, reporter *pipeline.Reporter) error {
	msgs := mem.Drain(model.TopicDispatch)
	bar := progressbar.Default(int64(len(msgs)), "pulling reports")
	for _, payload := range msgs {
		var msg model.AccountMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("malformed account message: %w", err)
		}
		if err := reporter.Handle(ctx, msg); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return nil
}

func drainEnrichments(ctx context.Context, mem *bus.Memory, enricher *pipeline.Enricher) error {
	msgs := mem.Drain(model.TopicEnrich)
	if len(msgs) == 0 {
		return nil
	}
	bar := progressbar.Default(int64(len(msgs)), "enriching channels")
	for _, payload := range msgs {
		var msg model.EnrichMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("malformed enrich message: %w", err)
		}
		if err := enricher.Handle(ctx, msg); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return nil
}

// drainExclusions deduplicates the decision messages so each account is
// decided once per run, no matter how many enrichment batches fed it.
func drainExclusions(ctx context.Context, mem *bus.Memory, excluder *pipeline.Excluder, dryRun bool) error {
	seen := make(map[string]bool)
	var totals pipeline.Outcome

	for _, payload := range mem.Drain(model.TopicExclude) {
		var msg model.ExcludeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("malformed exclude message: %w", err)
		}
		if seen[msg.CustomerID] {
			continue
		}
		seen[msg.CustomerID] = true

		outcome, err := excluder.Handle(ctx, msg)
		if err != nil {
			return err
		}
		totals.Evaluated += outcome.Evaluated
		totals.Matched += outcome.Matched
		totals.Submitted += outcome.Submitted
		totals.Rejected += outcome.Rejected
	}

	content := fmt.Sprintf("accounts: %d\nplacements evaluated: %d\nmatched: %d",
		len(seen), totals.Evaluated, totals.Matched)
	if dryRun {
		content += fmt.Sprintf("\nwould exclude: %d (dry run)", totals.Matched)
	} else {
		content += fmt.Sprintf("\nexcluded: %d\nrejected: %d", totals.Submitted, totals.Rejected)
	}
	fmt.Println(cli.RenderBox("Run complete", content))
	return nil
}
