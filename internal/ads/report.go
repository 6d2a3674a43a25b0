package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

// reportQuery selects the group placement view restricted to the inventory
// this system manages: YouTube channel placements on video campaigns.
const reportQuery = `
	SELECT
		customer.id,
		group_placement_view.placement,
		group_placement_view.target_url,
		metrics.impressions,
		metrics.cost_micros,
		metrics.conversions,
		metrics.video_views,
		metrics.video_view_rate,
		metrics.clicks,
		metrics.average_cpm,
		metrics.ctr,
		metrics.all_conversions_from_interactions_rate
	FROM group_placement_view
	WHERE group_placement_view.placement_type = "YOUTUBE_CHANNEL"
		AND campaign.advertising_channel_type = "VIDEO"
		AND segments.date BETWEEN "%s" AND "%s"%s`

// PlacementReport pulls the placement performance report for one account.
func (c *Client) PlacementReport(ctx context.Context, req service.ReportRequest) ([]model.PlacementRecord, error) {
	now := c.now().UTC()
	query := buildReportQuery(req, now)
	c.logger.Debug("running placement report",
		"customer_id", req.CustomerID,
		"lookback_days", req.LookbackDays)

	url := fmt.Sprintf("%s/customers/%s/googleAds:search", c.config.Endpoint, req.CustomerID)

	var records []model.PlacementRecord
	pageToken := ""
	for {
		body := map[string]any{"query": query}
		if pageToken != "" {
			body["pageToken"] = pageToken
		}

		var page searchResponse
		if err := c.post(ctx, url, body, &page); err != nil {
			return nil, err
		}

		for _, result := range page.Results {
			records = append(records, result.toRecord(now))
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	c.logger.Info("placement report complete",
		"customer_id", req.CustomerID,
		"rows", len(records))

	return records, nil
}

func buildReportQuery(req service.ReportRequest, now time.Time) string {
	dateTo := now.Format("2006-01-02")
	dateFrom := now.AddDate(0, 0, -req.LookbackDays).Format("2006-01-02")

	where := ""
	if strings.TrimSpace(req.GadsFilters) != "" {
		where = "\n\t\tAND " + req.GadsFilters
	}
	return fmt.Sprintf(reportQuery, dateFrom, dateTo, where)
}

type searchResponse struct {
	Results       []searchResult `json:"results"`
	NextPageToken string         `json:"nextPageToken"`
}

type searchResult struct {
	Customer struct {
		ID flexNumber `json:"id"`
	} `json:"customer"`
	GroupPlacementView struct {
		Placement string `json:"placement"`
		TargetURL string `json:"targetUrl"`
	} `json:"groupPlacementView"`
	Metrics struct {
		Impressions                        flexNumber `json:"impressions"`
		CostMicros                         flexNumber `json:"costMicros"`
		Conversions                        flexNumber `json:"conversions"`
		VideoViews                         flexNumber `json:"videoViews"`
		VideoViewRate                      flexNumber `json:"videoViewRate"`
		Clicks                             flexNumber `json:"clicks"`
		AverageCPM                         flexNumber `json:"averageCpm"`
		CTR                                flexNumber `json:"ctr"`
		AllConversionsFromInteractionsRate flexNumber `json:"allConversionsFromInteractionsRate"`
	} `json:"metrics"`
}

func (r searchResult) toRecord(now time.Time) model.PlacementRecord {
	return model.PlacementRecord{
		DatetimeUpdated:                    now,
		CustomerID:                         r.Customer.ID.String(),
		Placement:                          r.GroupPlacementView.Placement,
		PlacementTargetURL:                 r.GroupPlacementView.TargetURL,
		Impressions:                        r.Metrics.Impressions.Int64(),
		CostMicros:                         r.Metrics.CostMicros.Int64(),
		Conversions:                        r.Metrics.Conversions.Float64(),
		VideoViewRate:                      r.Metrics.VideoViewRate.Float64(),
		VideoViews:                         r.Metrics.VideoViews.Int64(),
		Clicks:                             r.Metrics.Clicks.Int64(),
		AverageCPM:                         r.Metrics.AverageCPM.Float64(),
		CTR:                                r.Metrics.CTR.Float64(),
		AllConversionsFromInteractionsRate: r.Metrics.AllConversionsFromInteractionsRate.Float64(),
	}
}

// flexNumber accepts the REST API's mix of JSON numbers and int64-as-string
// values.
type flexNumber struct {
	raw string
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	n.raw = s
	return nil
}

func (n flexNumber) String() string {
	return n.raw
}

func (n flexNumber) Int64() int64 {
	if n.raw == "" {
		return 0
	}
	var v int64
	if err := json.Unmarshal([]byte(n.raw), &v); err != nil {
		// Some int64 metrics arrive as floats.
		return int64(n.Float64())
	}
	return v
}

func (n flexNumber) Float64() float64 {
	if n.raw == "" {
		return 0
	}
	var v float64
	if err := json.Unmarshal([]byte(n.raw), &v); err != nil {
		return 0
	}
	return v
}
