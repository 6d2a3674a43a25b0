package language

import (
	"context"
	"sync"

	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// MockDetector is a mock implementation of service.LanguageDetector for
// testing.
type MockDetector struct {
	DetectFunc func(ctx context.Context, text string) (model.LanguageDetection, error)
	Result     model.LanguageDetection
	Calls      []string
	mu         sync.Mutex
}

// Detect implements service.LanguageDetector.
func (m *MockDetector) Detect(ctx context.Context, text string) (model.LanguageDetection, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, text)
	}
	return m.Result, nil
}

// CallCount returns how many detections were requested.
func (m *MockDetector) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
