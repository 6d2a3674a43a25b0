// Package rules implements the filter-rule engine: user-authored expressions
// are parsed into a typed predicate AST and evaluated against the joined
// report+metadata view. No string is ever interpolated into SQL.
package rules

import "github.com/Veraticus/ads-placement-excluder/internal/model"

type fieldKind int

const (
	kindNumber fieldKind = iota
	kindString
)

// fieldSpec describes one referencable field of the joined row. The second
// return value reports availability: channel-metadata fields are unavailable
// on rows that were never enriched, and an unavailable field never matches.
type fieldSpec struct {
	num  func(model.JoinedRow) (float64, bool)
	str  func(model.JoinedRow) (string, bool)
	kind fieldKind
}

func numField(f func(model.JoinedRow) (float64, bool)) fieldSpec {
	return fieldSpec{kind: kindNumber, num: f}
}

func strField(f func(model.JoinedRow) (string, bool)) fieldSpec {
	return fieldSpec{kind: kindString, str: f}
}

// fields is the joined-row schema visible to rule expressions.
var fields = map[string]fieldSpec{
	// Report metrics.
	"impressions": numField(func(r model.JoinedRow) (float64, bool) {
		return float64(r.Impressions), true
	}),
	"cost_micros": numField(func(r model.JoinedRow) (float64, bool) {
		return float64(r.CostMicros), true
	}),
	"conversions": numField(func(r model.JoinedRow) (float64, bool) {
		return r.Conversions, true
	}),
	"video_view_rate": numField(func(r model.JoinedRow) (float64, bool) {
		return r.VideoViewRate, true
	}),
	"video_views": numField(func(r model.JoinedRow) (float64, bool) {
		return float64(r.VideoViews), true
	}),
	"clicks": numField(func(r model.JoinedRow) (float64, bool) {
		return float64(r.Clicks), true
	}),
	"average_cpm": numField(func(r model.JoinedRow) (float64, bool) {
		return r.AverageCPM, true
	}),
	"ctr": numField(func(r model.JoinedRow) (float64, bool) {
		return r.CTR, true
	}),
	"all_conversions_from_interactions_rate": numField(func(r model.JoinedRow) (float64, bool) {
		return r.AllConversionsFromInteractionsRate, true
	}),

	// Channel metadata.
	"view_count": numField(func(r model.JoinedRow) (float64, bool) {
		return float64(r.ViewCount), r.HasChannel
	}),
	"video_count": numField(func(r model.JoinedRow) (float64, bool) {
		return float64(r.VideoCount), r.HasChannel
	}),
	"subscriber_count": numField(func(r model.JoinedRow) (float64, bool) {
		return float64(r.SubscriberCount), r.HasChannel
	}),
	"title_language_confidence": numField(func(r model.JoinedRow) (float64, bool) {
		return r.TitleLanguageConfidence, r.HasChannel
	}),
	"title": strField(func(r model.JoinedRow) (string, bool) {
		return r.Title, r.HasChannel
	}),
	"title_language": strField(func(r model.JoinedRow) (string, bool) {
		return r.TitleLanguage, r.HasChannel
	}),
	"country": strField(func(r model.JoinedRow) (string, bool) {
		return r.Country, r.HasChannel
	}),
	"default_language": strField(func(r model.JoinedRow) (string, bool) {
		return r.DefaultLanguage, r.HasChannel
	}),
}

// FieldNames lists every field a rule may reference, for error messages.
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	return names
}
