package model

// JoinedRow is the decision-time view of one placement under one account:
// the latest report row joined with the latest channel metadata (if any) and
// the existing exclusion state. Filter rules are evaluated against this.
type JoinedRow struct {
	Placement  string
	CustomerID string

	// Report metrics (always present).
	Impressions                        int64
	CostMicros                         int64
	Conversions                        float64
	VideoViewRate                      float64
	VideoViews                         int64
	Clicks                             int64
	AverageCPM                         float64
	CTR                                float64
	AllConversionsFromInteractionsRate float64

	// Channel metadata; valid only when HasChannel is true.
	HasChannel              bool
	ViewCount               int64
	VideoCount              int64
	SubscriberCount         int64
	Title                   string
	TitleLanguage           string
	TitleLanguageConfidence float64
	Country                 string
	DefaultLanguage         string

	// True when an ExclusionRecord already exists for this pair.
	AlreadyExcluded bool
}
