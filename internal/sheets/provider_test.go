package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGadsFiltersToGAQL(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want string
	}{
		{
			name: "empty",
			rows: nil,
			want: "",
		},
		{
			name: "single filter",
			rows: [][]any{{"clicks", ">", "10"}},
			want: "metrics.clicks > 10",
		},
		{
			name: "filters are ANDed",
			rows: [][]any{
				{"clicks", ">", "10"},
				{"impressions", ">=", "100"},
			},
			want: "metrics.clicks > 10 AND metrics.impressions >= 100",
		},
		{
			name: "short rows skipped",
			rows: [][]any{
				{"clicks", ">"},
				{"impressions", ">=", "100"},
			},
			want: "metrics.impressions >= 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gadsFiltersToGAQL(tt.rows))
		})
	}
}

func TestRuleFromRow(t *testing.T) {
	t.Run("full row", func(t *testing.T) {
		rule := ruleFromRow([]any{"kids-content", "title contains kids", "Enabled"}, 0)
		assert.Equal(t, "kids-content", rule.Name)
		assert.Equal(t, "title contains kids", rule.Expression)
		assert.True(t, rule.Enabled)
	})

	t.Run("full row disabled", func(t *testing.T) {
		rule := ruleFromRow([]any{"kids-content", "title contains kids", "Disabled"}, 0)
		assert.False(t, rule.Enabled)
	})

	t.Run("expression and flag get a generated name", func(t *testing.T) {
		rule := ruleFromRow([]any{"impressions > 500", "Enabled"}, 2)
		assert.Equal(t, "rule-3", rule.Name)
		assert.Equal(t, "impressions > 500", rule.Expression)
		assert.True(t, rule.Enabled)
	})

	t.Run("bare expression defaults to enabled", func(t *testing.T) {
		rule := ruleFromRow([]any{"impressions > 500"}, 0)
		assert.Equal(t, "rule-1", rule.Name)
		assert.True(t, rule.Enabled)
	})

	t.Run("empty row yields empty expression", func(t *testing.T) {
		rule := ruleFromRow(nil, 0)
		assert.Empty(t, rule.Expression)
	})
}

func TestCell(t *testing.T) {
	row := []any{" padded ", 42, true}
	assert.Equal(t, "padded", cell(row, 0))
	assert.Equal(t, "42", cell(row, 1))
	assert.Equal(t, "true", cell(row, 2))
	assert.Equal(t, "", cell(row, 9))
}
