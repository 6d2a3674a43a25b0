package ads

import (
	"context"
	"sync"

	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

// MockClient is a mock implementation of service.AdsAPI for testing.
type MockClient struct {
	PlacementReportFunc   func(ctx context.Context, req service.ReportRequest) ([]model.PlacementRecord, error)
	ExcludePlacementsFunc func(ctx context.Context, req service.ExclusionRequest) (*service.ExclusionResult, error)
	Records               []model.PlacementRecord
	ReportCalls           []service.ReportRequest
	ExclusionCalls        []service.ExclusionRequest
	mu                    sync.Mutex
}

// PlacementReport implements service.AdsAPI.
func (m *MockClient) PlacementReport(ctx context.Context, req service.ReportRequest) ([]model.PlacementRecord, error) {
	m.mu.Lock()
	m.ReportCalls = append(m.ReportCalls, req)
	m.mu.Unlock()

	if m.PlacementReportFunc != nil {
		return m.PlacementReportFunc(ctx, req)
	}
	return m.Records, nil
}

// ExcludePlacements implements service.AdsAPI. The default accepts every
// channel.
func (m *MockClient) ExcludePlacements(ctx context.Context, req service.ExclusionRequest) (*service.ExclusionResult, error) {
	m.mu.Lock()
	m.ExclusionCalls = append(m.ExclusionCalls, req)
	m.mu.Unlock()

	if m.ExcludePlacementsFunc != nil {
		return m.ExcludePlacementsFunc(ctx, req)
	}
	return &service.ExclusionResult{Accepted: req.ChannelIDs}, nil
}

// ExclusionCallCount returns how many exclusion batches were submitted.
func (m *MockClient) ExclusionCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExclusionCalls)
}
