package ads

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

func TestBuildReportQuery(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	t.Run("lookback window", func(t *testing.T) {
		query := buildReportQuery(service.ReportRequest{
			CustomerID:   "111",
			LookbackDays: 30,
		}, now)

		assert.Contains(t, query, `segments.date BETWEEN "2026-07-29" AND "2026-08-28"`)
		assert.Contains(t, query, `group_placement_view.placement_type = "YOUTUBE_CHANNEL"`)
		assert.Contains(t, query, `campaign.advertising_channel_type = "VIDEO"`)
	})

	t.Run("metric filter appended", func(t *testing.T) {
		query := buildReportQuery(service.ReportRequest{
			CustomerID:   "111",
			LookbackDays: 7,
			GadsFilters:  "metrics.clicks > 10 AND metrics.impressions > 100",
		}, now)

		assert.Contains(t, query, "AND metrics.clicks > 10 AND metrics.impressions > 100")
	})

	t.Run("blank filter adds nothing", func(t *testing.T) {
		query := buildReportQuery(service.ReportRequest{
			CustomerID:   "111",
			LookbackDays: 7,
			GadsFilters:  "   ",
		}, now)

		assert.NotContains(t, query, "AND  ")
	})
}

func TestSearchResult_ToRecord(t *testing.T) {
	// The REST API returns int64 metrics as strings and doubles as numbers.
	payload := `{
		"customer": {"id": "1234567890"},
		"groupPlacementView": {
			"placement": "yt-abc",
			"targetUrl": "https://www.youtube.com/channel/yt-abc"
		},
		"metrics": {
			"impressions": "600",
			"costMicros": "1250000",
			"conversions": 1.5,
			"videoViews": "80",
			"videoViewRate": 0.13,
			"clicks": "12",
			"averageCpm": 2083.33,
			"ctr": 0.02,
			"allConversionsFromInteractionsRate": 0.0025
		}
	}`

	var result searchResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	record := result.toRecord(now)

	assert.Equal(t, "1234567890", record.CustomerID)
	assert.Equal(t, "yt-abc", record.Placement)
	assert.Equal(t, "https://www.youtube.com/channel/yt-abc", record.PlacementTargetURL)
	assert.Equal(t, int64(600), record.Impressions)
	assert.Equal(t, int64(1250000), record.CostMicros)
	assert.Equal(t, 1.5, record.Conversions)
	assert.Equal(t, int64(80), record.VideoViews)
	assert.Equal(t, 0.13, record.VideoViewRate)
	assert.Equal(t, int64(12), record.Clicks)
	assert.Equal(t, now, record.DatetimeUpdated)
}

func TestFlexNumber(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantInt   int64
		wantFloat float64
	}{
		{name: "quoted int", raw: `"42"`, wantInt: 42, wantFloat: 42},
		{name: "bare int", raw: `7`, wantInt: 7, wantFloat: 7},
		{name: "float", raw: `1.5`, wantInt: 1, wantFloat: 1.5},
		{name: "null", raw: `null`, wantInt: 0, wantFloat: 0},
		{name: "empty string", raw: `""`, wantInt: 0, wantFloat: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n flexNumber
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &n))
			assert.Equal(t, tt.wantInt, n.Int64())
			assert.InDelta(t, tt.wantFloat, n.Float64(), 1e-9)
		})
	}
}
