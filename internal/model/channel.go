package model

import (
	"strconv"
	"time"
)

// ChannelMetadata is account-independent enrichment data for one YouTube
// channel. Multiple physical versions may exist across artifacts; readers
// resolve them with latest-wins on DatetimeUpdated.
type ChannelMetadata struct {
	Placement               string // YouTube channel ID
	ViewCount               int64
	VideoCount              int64
	SubscriberCount         int64
	Title                   string
	TitleLanguage           string
	TitleLanguageConfidence float64
	Country                 string
	DefaultLanguage         string
	DatetimeUpdated         time.Time
}

// ChannelHeader is the column order of the youtube_channel artifact namespace.
var ChannelHeader = []string{
	"placement",
	"view_count",
	"video_count",
	"subscriber_count",
	"title",
	"title_language",
	"title_language_confidence",
	"country",
	"default_language",
	"datetime_updated",
}

// CSVRow renders the record in ChannelHeader column order.
func (c ChannelMetadata) CSVRow() []string {
	return []string{
		c.Placement,
		strconv.FormatInt(c.ViewCount, 10),
		strconv.FormatInt(c.VideoCount, 10),
		strconv.FormatInt(c.SubscriberCount, 10),
		c.Title,
		c.TitleLanguage,
		strconv.FormatFloat(c.TitleLanguageConfidence, 'f', -1, 64),
		c.Country,
		c.DefaultLanguage,
		c.DatetimeUpdated.UTC().Format(time.RFC3339),
	}
}

// ChannelStats is the raw statistics returned by the video platform before
// language detection is attached.
type ChannelStats struct {
	ChannelID       string
	ViewCount       int64
	VideoCount      int64
	SubscriberCount int64
	Title           string
	Country         string
	DefaultLanguage string
}

// LanguageDetection is the result of running language detection over a text.
type LanguageDetection struct {
	Language   string
	Confidence float64
}
