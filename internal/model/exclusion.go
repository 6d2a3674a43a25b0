package model

import "time"

// ExclusionRecord is an append-only log entry recording that one channel was
// excluded for one account, and which rule matched it.
type ExclusionRecord struct {
	Placement       string
	CustomerID      string
	MatchedRule     string
	DatetimeUpdated time.Time
}

// ExclusionHeader is the column order of the exclusion artifact namespace.
var ExclusionHeader = []string{
	"placement",
	"customer_id",
	"matched_rule",
	"datetime_updated",
}

// CSVRow renders the record in ExclusionHeader column order.
func (e ExclusionRecord) CSVRow() []string {
	return []string{
		e.Placement,
		e.CustomerID,
		e.MatchedRule,
		e.DatetimeUpdated.UTC().Format(time.RFC3339),
	}
}
