package model

// Topic names for the messaging backbone. One stream per pipeline stage.
const (
	TopicDispatch = "ape.dispatch"
	TopicEnrich   = "ape.enrich"
	TopicExclude  = "ape.exclude"
)

// RunRequest is the trigger surface payload that starts a run.
type RunRequest struct {
	RunID        string `json:"run_id"`
	SheetID      string `json:"sheet_id" validate:"required"`
	CustomerID   string `json:"customer_id,omitempty"`
	LookbackDays int    `json:"lookback_days,omitempty" validate:"omitempty,gte=1,lte=365"`
	GadsFilters  string `json:"gads_filters,omitempty"`
	DryRun       bool   `json:"dry_run,omitempty"`
}

// AccountMessage triggers report extraction for one account.
type AccountMessage struct {
	RunID        string `json:"run_id"`
	SheetID      string `json:"sheet_id"`
	CustomerID   string `json:"customer_id"`
	LookbackDays int    `json:"lookback_days"`
	GadsFilters  string `json:"gads_filters"`
	DryRun       bool   `json:"dry_run"`
}

// EnrichMessage carries a batch of never-enriched placements for one account.
// Batches are capped at the video platform's page size (50).
type EnrichMessage struct {
	RunID      string   `json:"run_id"`
	SheetID    string   `json:"sheet_id"`
	CustomerID string   `json:"customer_id"`
	Placements []string `json:"placements"`
	DryRun     bool     `json:"dry_run"`
}

// ExcludeMessage signals that an account's enrichment batch is durably
// written and the account is ready for decisioning.
type ExcludeMessage struct {
	RunID      string `json:"run_id"`
	SheetID    string `json:"sheet_id"`
	CustomerID string `json:"customer_id"`
	DryRun     bool   `json:"dry_run"`
}
