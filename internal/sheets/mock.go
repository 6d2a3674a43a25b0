package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// MockProvider is a mock implementation of service.ConfigProvider for testing.
type MockProvider struct {
	AccountConfigsFunc      func(ctx context.Context, sheetID string) ([]model.AccountConfig, error)
	FilterRulesFunc         func(ctx context.Context, sheetID string) ([]model.FilterRule, error)
	TranslationEnabledFunc  func(ctx context.Context, sheetID string) (bool, error)
	Accounts                []model.AccountConfig
	Rules                   []model.FilterRule
	Translation             bool
	AccountConfigsCalls     int
	FilterRulesCalls        int
	TranslationEnabledCalls int
	mu                      sync.Mutex
}

// AccountConfigs implements service.ConfigProvider.
func (m *MockProvider) AccountConfigs(ctx context.Context, sheetID string) ([]model.AccountConfig, error) {
	m.mu.Lock()
	m.AccountConfigsCalls++
	m.mu.Unlock()

	if m.AccountConfigsFunc != nil {
		return m.AccountConfigsFunc(ctx, sheetID)
	}
	return m.Accounts, nil
}

// FilterRules implements service.ConfigProvider.
func (m *MockProvider) FilterRules(ctx context.Context, sheetID string) ([]model.FilterRule, error) {
	m.mu.Lock()
	m.FilterRulesCalls++
	m.mu.Unlock()

	if m.FilterRulesFunc != nil {
		return m.FilterRulesFunc(ctx, sheetID)
	}
	return m.Rules, nil
}

// TranslationEnabled implements service.ConfigProvider.
func (m *MockProvider) TranslationEnabled(ctx context.Context, sheetID string) (bool, error) {
	m.mu.Lock()
	m.TranslationEnabledCalls++
	m.mu.Unlock()

	if m.TranslationEnabledFunc != nil {
		return m.TranslationEnabledFunc(ctx, sheetID)
	}
	return m.Translation, nil
}
