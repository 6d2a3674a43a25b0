package youtube

import (
	"context"
	"sync"

	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// MockClient is a mock implementation of service.VideoAPI for testing.
type MockClient struct {
	ChannelsFunc func(ctx context.Context, channelIDs []string) ([]model.ChannelStats, error)
	Stats        map[string]model.ChannelStats
	Calls        [][]string
	mu           sync.Mutex
}

// Channels implements service.VideoAPI. By default it returns the configured
// stats for every requested ID that has one, mimicking the real API's
// behavior of omitting unknown channels.
func (m *MockClient) Channels(ctx context.Context, channelIDs []string) ([]model.ChannelStats, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, append([]string(nil), channelIDs...))
	m.mu.Unlock()

	if m.ChannelsFunc != nil {
		return m.ChannelsFunc(ctx, channelIDs)
	}

	var stats []model.ChannelStats
	for _, id := range channelIDs {
		if s, ok := m.Stats[id]; ok {
			stats = append(stats, s)
		}
	}
	return stats, nil
}

// RequestedIDs returns every channel ID requested across all calls.
func (m *MockClient) RequestedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, call := range m.Calls {
		ids = append(ids, call...)
	}
	return ids
}
