// Package model defines the core data structures for the placement excluder.
package model

import (
	"strconv"
	"time"
)

// PlacementRecord is one row of the Google Ads group placement report for a
// single YouTube channel placement under one account.
type PlacementRecord struct {
	DatetimeUpdated                    time.Time
	CustomerID                         string
	Placement                          string // YouTube channel ID
	PlacementTargetURL                 string
	Impressions                        int64
	CostMicros                         int64
	Conversions                        float64
	VideoViewRate                      float64
	VideoViews                         int64
	Clicks                             int64
	AverageCPM                         float64
	CTR                                float64
	AllConversionsFromInteractionsRate float64
}

// ReportHeader is the column order of the ads_report artifact namespace.
var ReportHeader = []string{
	"datetime_updated",
	"customer_id",
	"placement",
	"placement_target_url",
	"impressions",
	"cost_micros",
	"conversions",
	"video_view_rate",
	"video_views",
	"clicks",
	"average_cpm",
	"ctr",
	"all_conversions_from_interactions_rate",
}

// CSVRow renders the record in ReportHeader column order.
func (p PlacementRecord) CSVRow() []string {
	return []string{
		p.DatetimeUpdated.UTC().Format(time.RFC3339),
		p.CustomerID,
		p.Placement,
		p.PlacementTargetURL,
		strconv.FormatInt(p.Impressions, 10),
		strconv.FormatInt(p.CostMicros, 10),
		strconv.FormatFloat(p.Conversions, 'f', -1, 64),
		strconv.FormatFloat(p.VideoViewRate, 'f', -1, 64),
		strconv.FormatInt(p.VideoViews, 10),
		strconv.FormatInt(p.Clicks, 10),
		strconv.FormatFloat(p.AverageCPM, 'f', -1, 64),
		strconv.FormatFloat(p.CTR, 'f', -1, 64),
		strconv.FormatFloat(p.AllConversionsFromInteractionsRate, 'f', -1, 64),
	}
}
