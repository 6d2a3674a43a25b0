package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ads-placement-excluder/internal/ads"
	"github.com/Veraticus/ads-placement-excluder/internal/artifact"
	"github.com/Veraticus/ads-placement-excluder/internal/bus"
	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/language"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
	"github.com/Veraticus/ads-placement-excluder/internal/query"
	"github.com/Veraticus/ads-placement-excluder/internal/service"
	"github.com/Veraticus/ads-placement-excluder/internal/sheets"
	"github.com/Veraticus/ads-placement-excluder/internal/youtube"
)

// env wires the whole pipeline over mocks and a real artifact store, the way
// `ape run` does, so tests exercise the same read-time merge the production
// path uses.
type env struct {
	store    *artifact.Store
	engine   *query.Engine
	provider *sheets.MockProvider
	adsAPI   *ads.MockClient
	video    *youtube.MockClient
	detector *language.MockDetector
	mem      *bus.Memory

	dispatcher *Dispatcher
	reporter   *Reporter
	enricher   *Enricher
	excluder   *Excluder
}

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2,
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	e := &env{
		store:    store,
		engine:   query.NewEngine(store, nil),
		provider: &sheets.MockProvider{},
		adsAPI:   &ads.MockClient{},
		video:    &youtube.MockClient{Stats: map[string]model.ChannelStats{}},
		detector: &language.MockDetector{},
		mem:      bus.NewMemory(),
	}

	retry := fastRetry()
	e.dispatcher = NewDispatcher(e.provider, e.mem, retry, nil)
	e.reporter = NewReporter(e.adsAPI, store, e.engine, e.mem, retry, nil)
	e.enricher = NewEnricher(e.video, e.detector, e.provider, store, e.engine, e.mem, retry, nil)
	e.excluder = NewExcluder(e.provider, e.adsAPI, store, e.engine, retry, ExcluderOptions{}, nil)

	return e
}

// runAll drains every topic in stage order, like `ape run` does.
func (e *env) runAll(t *testing.T, req model.RunRequest) []Outcome {
	t.Helper()
	ctx := context.Background()

	_, err := e.dispatcher.Dispatch(ctx, req)
	require.NoError(t, err)

	for _, payload := range e.mem.Drain(model.TopicDispatch) {
		var msg model.AccountMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		require.NoError(t, e.reporter.Handle(ctx, msg))
	}
	for _, payload := range e.mem.Drain(model.TopicEnrich) {
		var msg model.EnrichMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		require.NoError(t, e.enricher.Handle(ctx, msg))
	}

	seen := make(map[string]bool)
	var outcomes []Outcome
	for _, payload := range e.mem.Drain(model.TopicExclude) {
		var msg model.ExcludeMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		if seen[msg.CustomerID] {
			continue
		}
		seen[msg.CustomerID] = true
		outcome, err := e.excluder.Handle(context.Background(), msg)
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func record(placement, customer string, impressions int64, conversions float64) model.PlacementRecord {
	return model.PlacementRecord{
		DatetimeUpdated: time.Now().UTC(),
		CustomerID:      customer,
		Placement:       placement,
		Impressions:     impressions,
		Conversions:     conversions,
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.provider.Accounts = []model.AccountConfig{{CustomerID: "111", LookbackDays: 30}}
	e.provider.Rules = []model.FilterRule{
		{Name: "no-conversions", Expression: "impressions > 500 AND conversions == 0", Enabled: true},
	}
	e.adsAPI.Records = []model.PlacementRecord{
		record("yt-1", "111", 600, 0),
		record("yt-2", "111", 100, 5),
	}
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", SubscriberCount: 10, Title: "Channel One"},
		"yt-2": {ChannelID: "yt-2", SubscriberCount: 20, Title: "Channel Two"},
	}

	outcomes := e.runAll(t, model.RunRequest{RunID: "run-1", SheetID: "sheet"})

	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].Evaluated)
	assert.Equal(t, 1, outcomes[0].Matched)
	assert.Equal(t, 1, outcomes[0].Submitted)

	require.Equal(t, 1, e.adsAPI.ExclusionCallCount())
	assert.Equal(t, []string{"yt-1"}, e.adsAPI.ExclusionCalls[0].ChannelIDs)
	assert.Equal(t, "111", e.adsAPI.ExclusionCalls[0].CustomerID)

	reports, err := e.store.List(artifact.NamespaceReport)
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	channels, err := e.store.List(artifact.NamespaceChannel)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	_, rows, err := e.store.Read(channels[0])
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	exclusions, err := e.store.List(artifact.NamespaceExclusion)
	require.NoError(t, err)
	require.Len(t, exclusions, 1)
	_, rows, err = e.store.Read(exclusions[0])
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "yt-1", rows[0][0])
	assert.Equal(t, "no-conversions", rows[0][2])
}

func TestPipeline_RerunConvergesToNoNewWork(t *testing.T) {
	e := newEnv(t)
	e.provider.Accounts = []model.AccountConfig{{CustomerID: "111", LookbackDays: 30}}
	e.provider.Rules = []model.FilterRule{
		{Name: "no-conversions", Expression: "impressions > 500 AND conversions == 0", Enabled: true},
	}
	e.adsAPI.Records = []model.PlacementRecord{record("yt-1", "111", 600, 0)}
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", SubscriberCount: 10, Title: "Channel One"},
	}

	e.runAll(t, model.RunRequest{RunID: "run-1", SheetID: "sheet"})
	require.Equal(t, 1, e.adsAPI.ExclusionCallCount())
	require.Len(t, e.video.RequestedIDs(), 1)

	outcomes := e.runAll(t, model.RunRequest{RunID: "run-2", SheetID: "sheet"})

	// Same report content: no new enrichment, no new submission.
	assert.Equal(t, 1, e.adsAPI.ExclusionCallCount())
	assert.Len(t, e.video.RequestedIDs(), 1)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 0, outcomes[0].Matched)
}

func TestPipeline_DryRunSubmitsNothing(t *testing.T) {
	e := newEnv(t)
	e.provider.Accounts = []model.AccountConfig{{CustomerID: "111", LookbackDays: 30}}
	e.provider.Rules = []model.FilterRule{
		{Name: "no-conversions", Expression: "impressions > 500 AND conversions == 0", Enabled: true},
	}
	e.adsAPI.Records = []model.PlacementRecord{record("yt-1", "111", 600, 0)}
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", Title: "Channel One"},
	}

	outcomes := e.runAll(t, model.RunRequest{RunID: "run-1", SheetID: "sheet", DryRun: true})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].DryRun)
	assert.Equal(t, 1, outcomes[0].Matched)
	assert.Equal(t, 0, outcomes[0].Submitted)
	assert.Equal(t, 0, e.adsAPI.ExclusionCallCount())

	// Report and enrichment artifacts still accumulate in dry runs.
	reports, err := e.store.List(artifact.NamespaceReport)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	exclusions, err := e.store.List(artifact.NamespaceExclusion)
	require.NoError(t, err)
	assert.Empty(t, exclusions)
}

func TestPipeline_PartialFailureRecordsAcceptedOnly(t *testing.T) {
	e := newEnv(t)
	e.provider.Accounts = []model.AccountConfig{{CustomerID: "111", LookbackDays: 30}}
	e.provider.Rules = []model.FilterRule{
		{Name: "busy", Expression: "impressions > 500", Enabled: true},
	}
	e.adsAPI.Records = []model.PlacementRecord{
		record("yt-1", "111", 600, 0),
		record("yt-3", "111", 700, 0),
	}
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", Title: "One"},
		"yt-3": {ChannelID: "yt-3", Title: "Three"},
	}
	e.adsAPI.ExcludePlacementsFunc = func(_ context.Context, req service.ExclusionRequest) (*service.ExclusionResult, error) {
		result := &service.ExclusionResult{Rejected: map[string]string{}}
		for _, id := range req.ChannelIDs {
			if id == "yt-3" {
				result.Rejected[id] = "INVALID_CHANNEL"
				continue
			}
			result.Accepted = append(result.Accepted, id)
		}
		return result, nil
	}

	outcomes := e.runAll(t, model.RunRequest{RunID: "run-1", SheetID: "sheet"})
	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].Submitted)
	assert.Equal(t, 1, outcomes[0].Rejected)

	exclusions, err := e.store.List(artifact.NamespaceExclusion)
	require.NoError(t, err)
	require.Len(t, exclusions, 1)
	_, rows, err := e.store.Read(exclusions[0])
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "yt-1", rows[0][0])

	// The rejected placement stays eligible: the next run submits it again.
	e.runAll(t, model.RunRequest{RunID: "run-2", SheetID: "sheet"})
	require.Equal(t, 2, e.adsAPI.ExclusionCallCount())
	assert.Equal(t, []string{"yt-3"}, e.adsAPI.ExclusionCalls[1].ChannelIDs)
}

func TestPipeline_FailedAccountDoesNotBlockOthers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.provider.Accounts = []model.AccountConfig{
		{CustomerID: "111", LookbackDays: 30},
		{CustomerID: "222", LookbackDays: 30},
		{CustomerID: "333", LookbackDays: 30},
	}
	e.provider.Rules = []model.FilterRule{
		{Name: "busy", Expression: "impressions > 500", Enabled: true},
	}
	// 222's report pulls fail permanently; 111 and 333 are healthy.
	e.adsAPI.PlacementReportFunc = func(_ context.Context, req service.ReportRequest) ([]model.PlacementRecord, error) {
		if req.CustomerID == "222" {
			return nil, &common.RetryableError{Err: common.ErrAdsAPI, Retryable: false}
		}
		return []model.PlacementRecord{record("yt-"+req.CustomerID, req.CustomerID, 600, 0)}, nil
	}
	e.video.Stats = map[string]model.ChannelStats{
		"yt-111": {ChannelID: "yt-111", Title: "One"},
		"yt-333": {ChannelID: "yt-333", Title: "Three"},
	}

	dispatched, err := e.dispatcher.Dispatch(ctx, model.RunRequest{RunID: "run-1", SheetID: "sheet"})
	require.NoError(t, err)
	require.Equal(t, 3, dispatched)

	var failedAccounts []string
	for _, payload := range e.mem.Drain(model.TopicDispatch) {
		var msg model.AccountMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		if err := e.reporter.Handle(ctx, msg); err != nil {
			failedAccounts = append(failedAccounts, msg.CustomerID)
		}
	}
	assert.Equal(t, []string{"222"}, failedAccounts)

	for _, payload := range e.mem.Drain(model.TopicEnrich) {
		var msg model.EnrichMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		require.NoError(t, e.enricher.Handle(ctx, msg))
	}

	excluded := make(map[string]bool)
	for _, payload := range e.mem.Drain(model.TopicExclude) {
		var msg model.ExcludeMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		outcome, err := e.excluder.Handle(ctx, msg)
		require.NoError(t, err)
		excluded[msg.CustomerID] = true
		assert.Equal(t, 1, outcome.Submitted)
	}

	// The healthy accounts ran to completion in the same invocation.
	assert.Equal(t, map[string]bool{"111": true, "333": true}, excluded)
	require.Equal(t, 2, e.adsAPI.ExclusionCallCount())
	assert.ElementsMatch(t,
		[][]string{{"yt-111"}, {"yt-333"}},
		[][]string{e.adsAPI.ExclusionCalls[0].ChannelIDs, e.adsAPI.ExclusionCalls[1].ChannelIDs})

	reports, err := e.store.List(artifact.NamespaceReport)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	exclusions, err := e.store.List(artifact.NamespaceExclusion)
	require.NoError(t, err)
	assert.Len(t, exclusions, 2)
}

func TestReporter_EmptyReportIsTerminal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.reporter.Handle(ctx, model.AccountMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111", LookbackDays: 30,
	})
	require.NoError(t, err)

	reports, err := e.store.List(artifact.NamespaceReport)
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	assert.Zero(t, e.mem.Len(model.TopicEnrich))
	assert.Zero(t, e.mem.Len(model.TopicExclude))
}

func TestReporter_AllKnownPlacementsSkipEnrichment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.adsAPI.Records = []model.PlacementRecord{record("yt-1", "111", 600, 0)}

	_, err := e.store.Write(artifact.NamespaceChannel, "seed", model.ChannelHeader, [][]string{
		model.ChannelMetadata{Placement: "yt-1", DatetimeUpdated: time.Now().UTC()}.CSVRow(),
	})
	require.NoError(t, err)

	err = e.reporter.Handle(ctx, model.AccountMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111", LookbackDays: 30,
	})
	require.NoError(t, err)

	assert.Zero(t, e.mem.Len(model.TopicEnrich))
	assert.Equal(t, 1, e.mem.Len(model.TopicExclude))
}

func TestReporter_ChunksNovelPlacements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var records []model.PlacementRecord
	for i := 0; i < 120; i++ {
		records = append(records, record(fmt.Sprintf("yt-%03d", i), "111", 600, 0))
	}
	e.adsAPI.Records = records

	err := e.reporter.Handle(ctx, model.AccountMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111", LookbackDays: 30,
	})
	require.NoError(t, err)

	payloads := e.mem.Drain(model.TopicEnrich)
	require.Len(t, payloads, 3)

	var sizes []int
	for _, payload := range payloads {
		var msg model.EnrichMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		sizes = append(sizes, len(msg.Placements))
	}
	assert.Equal(t, []int{50, 50, 20}, sizes)
}

func TestEnricher_RedeliveryDoesNotRefetch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", Title: "One"},
	}

	msg := model.EnrichMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111",
		Placements: []string{"yt-1"},
	}
	require.NoError(t, e.enricher.Handle(ctx, msg))
	require.NoError(t, e.enricher.Handle(ctx, msg))

	// One fetch, one artifact, but the account is forwarded both times.
	assert.Len(t, e.video.Calls, 1)
	channels, err := e.store.List(artifact.NamespaceChannel)
	require.NoError(t, err)
	assert.Len(t, channels, 1)
	assert.Equal(t, 2, e.mem.Len(model.TopicExclude))
}

func TestEnricher_OmittedChannelsStayNovel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	// The platform only knows yt-1; yt-gone is deleted.
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", Title: "One"},
	}

	err := e.enricher.Handle(ctx, model.EnrichMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111",
		Placements: []string{"yt-1", "yt-gone"},
	})
	require.NoError(t, err)

	enriched, err := e.engine.EnrichedPlacements(ctx)
	require.NoError(t, err)
	assert.True(t, enriched["yt-1"])
	assert.False(t, enriched["yt-gone"])
}

func TestEnricher_DetectionFailureOmitsChannel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.provider.Translation = true
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", Title: "Uno"},
		"yt-2": {ChannelID: "yt-2", Title: "Dos"},
	}
	e.detector.DetectFunc = func(_ context.Context, text string) (model.LanguageDetection, error) {
		if text == "Dos" {
			return model.LanguageDetection{}, common.ErrDetectionFailed
		}
		return model.LanguageDetection{Language: "es", Confidence: 0.9}, nil
	}

	err := e.enricher.Handle(ctx, model.EnrichMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111",
		Placements: []string{"yt-1", "yt-2"},
	})
	require.NoError(t, err)

	enriched, err := e.engine.EnrichedPlacements(ctx)
	require.NoError(t, err)
	assert.True(t, enriched["yt-1"])
	// Failed detection leaves the channel unenriched for a later retry.
	assert.False(t, enriched["yt-2"])
}

func TestEnricher_DetectionDisabledSkipsDetector(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.provider.Translation = false
	e.video.Stats = map[string]model.ChannelStats{
		"yt-1": {ChannelID: "yt-1", Title: "One"},
	}

	err := e.enricher.Handle(ctx, model.EnrichMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111",
		Placements: []string{"yt-1"},
	})
	require.NoError(t, err)
	assert.Zero(t, e.detector.CallCount())
}

func TestExcluder_NoUsableRules(t *testing.T) {
	e := newEnv(t)
	e.provider.Rules = []model.FilterRule{
		{Name: "broken", Expression: "bananas > 3", Enabled: true},
	}

	outcome, err := e.excluder.Handle(context.Background(), model.ExcludeMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111",
	})
	require.NoError(t, err)
	assert.Zero(t, outcome.Matched)
	assert.Zero(t, e.adsAPI.ExclusionCallCount())
}

func TestExcluder_SubmissionFailureLeavesLogUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.provider.Rules = []model.FilterRule{
		{Name: "busy", Expression: "impressions > 500", Enabled: true},
	}
	_, err := e.store.Write(artifact.NamespaceReport, "111-r", model.ReportHeader, [][]string{
		record("yt-1", "111", 600, 0).CSVRow(),
	})
	require.NoError(t, err)
	e.adsAPI.ExcludePlacementsFunc = func(context.Context, service.ExclusionRequest) (*service.ExclusionResult, error) {
		return nil, &common.RetryableError{Err: common.ErrAdsAPI, Retryable: true}
	}

	_, err = e.excluder.Handle(ctx, model.ExcludeMessage{
		RunID: "run-1", SheetID: "sheet", CustomerID: "111",
	})
	require.Error(t, err)

	exclusions, listErr := e.store.List(artifact.NamespaceExclusion)
	require.NoError(t, listErr)
	assert.Empty(t, exclusions)
}

func TestDispatcher_FanOut(t *testing.T) {
	e := newEnv(t)
	e.provider.Accounts = []model.AccountConfig{
		{CustomerID: "111", LookbackDays: 30, GadsFilters: "metrics.clicks > 10"},
		{CustomerID: "222", LookbackDays: 7},
	}

	dispatched, err := e.dispatcher.Dispatch(context.Background(), model.RunRequest{SheetID: "sheet"})
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)

	payloads := e.mem.Drain(model.TopicDispatch)
	require.Len(t, payloads, 2)

	var first model.AccountMessage
	require.NoError(t, json.Unmarshal(payloads[0], &first))
	assert.Equal(t, "111", first.CustomerID)
	assert.Equal(t, 30, first.LookbackDays)
	assert.Equal(t, "metrics.clicks > 10", first.GadsFilters)
	assert.NotEmpty(t, first.RunID)
}

func TestDispatcher_SingleAccountOverrides(t *testing.T) {
	e := newEnv(t)
	e.provider.Accounts = []model.AccountConfig{
		{CustomerID: "111", LookbackDays: 30},
		{CustomerID: "222", LookbackDays: 30},
	}

	dispatched, err := e.dispatcher.Dispatch(context.Background(), model.RunRequest{
		SheetID:      "sheet",
		CustomerID:   "222",
		LookbackDays: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)

	payloads := e.mem.Drain(model.TopicDispatch)
	require.Len(t, payloads, 1)
	var msg model.AccountMessage
	require.NoError(t, json.Unmarshal(payloads[0], &msg))
	assert.Equal(t, "222", msg.CustomerID)
	assert.Equal(t, 7, msg.LookbackDays)
}

func TestDispatcher_AdHocAccountNotInSheet(t *testing.T) {
	e := newEnv(t)
	e.provider.Accounts = []model.AccountConfig{{CustomerID: "111", LookbackDays: 30}}

	dispatched, err := e.dispatcher.Dispatch(context.Background(), model.RunRequest{
		SheetID:    "sheet",
		CustomerID: "999",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)

	var msg model.AccountMessage
	require.NoError(t, json.Unmarshal(e.mem.Drain(model.TopicDispatch)[0], &msg))
	assert.Equal(t, "999", msg.CustomerID)
	assert.Equal(t, 30, msg.LookbackDays)
}
