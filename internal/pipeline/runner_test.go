package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/models"
	"github.com/ternarybob/rankwatch/internal/report"
	"github.com/ternarybob/rankwatch/internal/schedule"
	"github.com/ternarybob/rankwatch/internal/scraper"
	"github.com/ternarybob/rankwatch/internal/storage/file"
)

var jst = time.FixedZone("JST", 9*60*60)

const firstPage = `<table class="m-table">
<tr><th>rank</th><th>name</th></tr>
<tr><td>1</td><td>Sample Co1234 東P</td></tr>
<tr><td>2</td><td>Test Corp5678 東P</td></tr>
</table>`

const swappedPage = `<table class="m-table">
<tr><th>rank</th><th>name</th></tr>
<tr><td>1</td><td>Test Corp5678 東P</td></tr>
<tr><td>2</td><td>Sample Co1234 東P</td></tr>
</table>`

type fakeCalendar struct{ trading bool }

func (f fakeCalendar) IsTradingDay(context.Context, time.Time) bool { return f.trading }

type fakeFetcher struct {
	html  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) (string, error) {
	f.calls++
	return f.html, f.err
}

type fakeNotifier struct {
	ok       bool
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, message string) bool {
	f.messages = append(f.messages, message)
	return f.ok
}

type fixture struct {
	root     string
	calendar *fakeCalendar
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	runner   *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := arbor.NewLogger()
	cfg := common.DefaultRankingPipeline()

	root := t.TempDir()
	store, err := file.NewSnapshotStorage(root, jst, logger)
	require.NoError(t, err)

	resolver, err := schedule.NewResolver(cfg, jst, logger)
	require.NoError(t, err)
	extractor, err := scraper.NewExtractor(cfg.Extract.Layout, cfg.Extract.Selectors, 0)
	require.NoError(t, err)
	formatter, err := report.New(cfg.Report.Mode, report.Options{TopN: cfg.Report.TopN, Location: jst, Label: cfg.Label})
	require.NoError(t, err)

	f := &fixture{
		root:     root,
		calendar: &fakeCalendar{trading: true},
		fetcher:  &fakeFetcher{html: firstPage},
		notifier: &fakeNotifier{ok: true},
	}
	f.runner, err = NewRunner(cfg.Name, cfg.Targets, Dependencies{
		Calendar:  f.calendar,
		Resolver:  resolver,
		Guard:     schedule.NewGuard(store, 10*time.Minute, schedule.RecencyAlways, jst, logger),
		Fetcher:   f.fetcher,
		Extractor: extractor,
		Store:     store,
		Formatter: formatter,
		Notifier:  f.notifier,
		Location:  jst,
	}, logger)
	require.NoError(t, err)
	return f
}

func (f *fixture) snapshotFiles(t *testing.T, target string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(f.root, "daytrading", target, "ranking_*.json"))
	require.NoError(t, err)
	return files
}

func TestRun_FirstRunEndToEnd(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, time.October, 20, 9, 16, 0, 0, jst)

	result, err := f.runner.Run(context.Background(), Trigger{Now: now})
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, StateDiffAndPersist, result.State)
	assert.Equal(t, models.Slot{Target: "morning", SlotTime: "09:15"}, result.Slot)
	assert.Equal(t, 2, result.Records)
	assert.Len(t, f.snapshotFiles(t, "morning"), 1)

	require.Len(t, f.notifier.messages, 1)
	msg := f.notifier.messages[0]
	assert.Contains(t, msg, "✅ [SUCCESS] 2025-10-20 09:16")
	assert.Contains(t, msg, "1: [1234] Sample Co")
	assert.Contains(t, msg, "2: [5678] Test Corp")
	assert.NotContains(t, msg, "NEW")
	assert.NotContains(t, msg, "▲")
	assert.NotContains(t, msg, "▼")
}

func TestRun_SecondSlotDiffsAgainstPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, Trigger{Now: time.Date(2025, time.October, 20, 9, 16, 0, 0, jst)})
	require.NoError(t, err)

	f.fetcher.html = swappedPage
	result, err := f.runner.Run(ctx, Trigger{Now: time.Date(2025, time.October, 20, 12, 1, 0, 0, jst)})
	require.NoError(t, err)
	assert.Equal(t, "12:00", result.Slot.SlotTime)
	assert.Len(t, f.snapshotFiles(t, "morning"), 2)

	require.Len(t, f.notifier.messages, 2)
	msg := f.notifier.messages[1]
	assert.Contains(t, msg, "1: [5678] Test Corp ▲1")
	assert.Contains(t, msg, "2: [1234] Sample Co ▼1")
}

func TestRun_Skips(t *testing.T) {
	tests := []struct {
		name    string
		trading bool
		now     time.Time
		trigger string
		state   State
		reason  string
	}{
		{
			name:   "non trading day",
			now:    time.Date(2025, time.October, 20, 9, 16, 0, 0, jst),
			state:  StateCheckTradingDay,
			reason: "not a trading day",
		},
		{
			name:    "before first slot",
			trading: true,
			now:     time.Date(2025, time.October, 20, 8, 0, 0, 0, jst),
			state:   StateResolveSlot,
			reason:  "before first slot",
		},
		{
			name:    "excluded trigger",
			trading: true,
			now:     time.Date(2025, time.October, 20, 12, 0, 0, 0, jst),
			trigger: "0 3 * * 1-5",
			state:   StateResolveSlot,
			reason:  "trigger excluded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.calendar.trading = tt.trading

			result, err := f.runner.Run(context.Background(), Trigger{ID: tt.trigger, Now: tt.now})
			require.NoError(t, err)
			assert.True(t, result.Skipped)
			assert.Equal(t, tt.state, result.State)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Zero(t, f.fetcher.calls)
			assert.Empty(t, f.notifier.messages)
		})
	}
}

func TestRun_DuplicateSlotSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, Trigger{Now: time.Date(2025, time.October, 20, 9, 16, 0, 0, jst)})
	require.NoError(t, err)

	result, err := f.runner.Run(ctx, Trigger{Now: time.Date(2025, time.October, 20, 9, 29, 0, 0, jst)})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, StateCheckDuplicate, result.State)
	assert.Equal(t, 1, f.fetcher.calls)
	assert.Len(t, f.notifier.messages, 1)
	assert.Len(t, f.snapshotFiles(t, "morning"), 1)
}

func TestRun_TriggerOverride(t *testing.T) {
	f := newFixture(t)

	// Fired late by the scheduler; the override pins the slot.
	result, err := f.runner.Run(context.Background(), Trigger{
		ID:  "47 3 * * 1-5",
		Now: time.Date(2025, time.October, 20, 12, 58, 0, 0, jst),
	})
	require.NoError(t, err)
	assert.Equal(t, models.Slot{Target: "afternoon", SlotTime: "12:47"}, result.Slot)
	assert.Len(t, f.snapshotFiles(t, "afternoon"), 1)
}

func TestRun_ScrapeFailureNotifiesAndFails(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("connection refused")

	result, err := f.runner.Run(context.Background(), Trigger{Now: time.Date(2025, time.October, 20, 9, 16, 0, 0, jst)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScrape)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, StateNotifyError, result.State)
	assert.True(t, result.ErrorNotified)
	assert.Empty(t, f.snapshotFiles(t, "morning"))

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "❌ [ERROR]")
	assert.Contains(t, f.notifier.messages[0], "connection refused")
}

func TestRun_ExtractionFailureWhenErrorReportAlsoFails(t *testing.T) {
	f := newFixture(t)
	f.fetcher.html = "<html><body>maintenance</body></html>"
	f.notifier.ok = false

	result, err := f.runner.Run(context.Background(), Trigger{Now: time.Date(2025, time.October, 20, 9, 16, 0, 0, jst)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScrape)
	assert.ErrorIs(t, err, scraper.ErrExtraction)
	assert.False(t, result.ErrorNotified)
}

func TestRun_SuccessNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.ok = false

	result, err := f.runner.Run(context.Background(), Trigger{Now: time.Date(2025, time.October, 20, 9, 16, 0, 0, jst)})
	assert.ErrorIs(t, err, ErrNotificationFailed)
	assert.NotEmpty(t, result.Location)
	assert.Len(t, f.snapshotFiles(t, "morning"), 1)
}

func TestRun_ManualTargetWithoutURL(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(context.Background(), Trigger{
		Manual: models.Slot{Target: "evening", SlotTime: "15:00"},
		Now:    time.Date(2025, time.October, 20, 15, 0, 0, 0, jst),
	})
	assert.ErrorIs(t, err, ErrTargetNotConfigured)
	assert.Zero(t, f.fetcher.calls)
	assert.Empty(t, f.notifier.messages)
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	_, err := NewRunner("p", nil, Dependencies{}, arbor.NewLogger())
	assert.Error(t, err)
}
