// Package youtube implements the video platform boundary: per-channel
// statistics used to enrich report placements.
package youtube

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// maxChannelsPerRequest is the channels.list page size limit.
const maxChannelsPerRequest = 50

// Config holds the configuration for the YouTube client.
type Config struct {
	APIKey string // empty uses application default credentials
}

// Client fetches channel statistics from the YouTube Data API.
type Client struct {
	service *youtube.Service
	logger  *slog.Logger
}

// NewClient creates the YouTube client.
func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	return &Client{service: service, logger: logger}, nil
}

// Channels fetches statistics for the given channel IDs, chunked to the API
// page size. Channels the API does not return (deleted, terminated) are
// absent from the result; the caller treats them as not-yet-enriched.
func (c *Client) Channels(ctx context.Context, channelIDs []string) ([]model.ChannelStats, error) {
	var stats []model.ChannelStats

	for start := 0; start < len(channelIDs); start += maxChannelsPerRequest {
		end := start + maxChannelsPerRequest
		if end > len(channelIDs) {
			end = len(channelIDs)
		}
		chunk := channelIDs[start:end]

		resp, err := c.service.Channels.
			List([]string{"id", "statistics", "snippet"}).
			Id(chunk...).
			MaxResults(maxChannelsPerRequest).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrVideoAPI, err)
		}

		if len(resp.Items) == 0 {
			c.logger.Warn("youtube returned no channels for chunk",
				"requested", len(chunk))
			continue
		}

		for _, item := range resp.Items {
			entry := model.ChannelStats{ChannelID: item.Id}
			if item.Statistics != nil {
				entry.ViewCount = int64(item.Statistics.ViewCount)             // #nosec G115
				entry.VideoCount = int64(item.Statistics.VideoCount)           // #nosec G115
				entry.SubscriberCount = int64(item.Statistics.SubscriberCount) // #nosec G115
			}
			if item.Snippet != nil {
				entry.Title = item.Snippet.Title
				entry.Country = item.Snippet.Country
				entry.DefaultLanguage = item.Snippet.DefaultLanguage
			}
			stats = append(stats, entry)
		}
	}

	c.logger.Debug("channel statistics fetched",
		"requested", len(channelIDs),
		"returned", len(stats))

	return stats, nil
}
