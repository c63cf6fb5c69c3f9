// Package pipeline drives one ranking run from trigger to notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/interfaces"
	"github.com/ternarybob/rankwatch/internal/models"
	"github.com/ternarybob/rankwatch/internal/report"
	"github.com/ternarybob/rankwatch/internal/schedule"
)

var (
	// ErrScrape wraps any fetch or extraction failure.
	ErrScrape = errors.New("scrape failed")
	// ErrPersist wraps a snapshot write failure.
	ErrPersist = errors.New("snapshot persistence failed")
	// ErrNotificationFailed is returned when the success report could not be delivered.
	ErrNotificationFailed = errors.New("notification delivery failed")
	// ErrTargetNotConfigured is returned when a resolved target has no URL.
	ErrTargetNotConfigured = errors.New("target not configured")
)

// State is a step of a run.
type State string

const (
	StateStart           State = "START"
	StateCheckTradingDay State = "CHECK_TRADING_DAY"
	StateResolveSlot     State = "RESOLVE_SLOT"
	StateCheckDuplicate  State = "CHECK_DUPLICATE"
	StateScrape          State = "SCRAPE"
	StateDiffAndPersist  State = "DIFF_AND_PERSIST"
	StateNotifyError     State = "NOTIFY_ERROR"
	StateDone            State = "DONE"
)

// Trigger is what started a run. ID is the scheduler's trigger id (a cron
// expression); Manual bypasses slot resolution when fully set; a zero Now
// means the runner's clock.
type Trigger struct {
	ID     string
	Manual models.Slot
	Now    time.Time
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Pipeline string
	// State is the last step the run reached.
	State    State
	Skipped  bool
	Reason   string
	Slot     models.Slot
	Location string
	Records  int
	// ErrorNotified is set when a failure report was delivered.
	ErrorNotified bool
}

// SlotResolver maps a trigger to a slot.
type SlotResolver interface {
	Resolve(now time.Time, triggerID string, manual models.Slot) schedule.Resolution
}

// DuplicateGuard decides whether a slot was already serviced.
type DuplicateGuard interface {
	Check(ctx context.Context, pipeline, target, slotTime string, now time.Time) schedule.Decision
}

// Extractor turns page HTML into ranking records.
type Extractor interface {
	Extract(html string) ([]models.RankingRecord, error)
}

// Dependencies are the collaborators of a Runner.
type Dependencies struct {
	Calendar  interfaces.TradingCalendar
	Resolver  SlotResolver
	Guard     DuplicateGuard
	Fetcher   interfaces.PageFetcher
	Extractor Extractor
	Store     interfaces.SnapshotStorage
	Formatter report.Formatter
	Notifier  interfaces.Notifier
	Location  *time.Location
	Clock     func() time.Time
}

// Runner executes runs for one pipeline.
type Runner struct {
	name    string
	targets map[string]common.TargetConfig
	deps    Dependencies
	logger  arbor.ILogger
}

// NewRunner creates a Runner for the named pipeline.
func NewRunner(name string, targets map[string]common.TargetConfig, deps Dependencies, logger arbor.ILogger) (*Runner, error) {
	switch {
	case deps.Calendar == nil:
		return nil, errors.New("pipeline: calendar is required")
	case deps.Resolver == nil:
		return nil, errors.New("pipeline: resolver is required")
	case deps.Guard == nil:
		return nil, errors.New("pipeline: guard is required")
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Formatter == nil:
		return nil, errors.New("pipeline: formatter is required")
	case deps.Notifier == nil:
		return nil, errors.New("pipeline: notifier is required")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Runner{name: name, targets: targets, deps: deps, logger: logger}, nil
}

// Name returns the pipeline name.
func (r *Runner) Name() string {
	return r.name
}

// Run executes one run. Skips return a Result with Skipped set and a nil error.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*Result, error) {
	result := &Result{
		RunID:    uuid.New().String(),
		Pipeline: r.name,
		State:    StateStart,
	}
	logger := r.logger.WithCorrelationId(result.RunID)

	now := trigger.Now
	if now.IsZero() {
		now = r.deps.Clock()
	}
	now = now.In(r.deps.Location)

	logger.Info().
		Str("pipeline", r.name).
		Str("trigger", trigger.ID).
		Str("now", now.Format(time.RFC3339)).
		Msg("Run started")

	result.State = StateCheckTradingDay
	if !r.deps.Calendar.IsTradingDay(ctx, now) {
		return r.skip(logger, result, "not a trading day"), nil
	}

	result.State = StateResolveSlot
	resolution := r.deps.Resolver.Resolve(now, trigger.ID, trigger.Manual)
	if resolution.Skipped {
		return r.skip(logger, result, resolution.Reason), nil
	}
	result.Slot = resolution.Slot
	logger.Info().
		Str("target", resolution.Slot.Target).
		Str("slot", resolution.Slot.SlotTime).
		Str("source", resolution.Source).
		Msg("Slot resolved")

	target, ok := r.targets[resolution.Slot.Target]
	if !ok || target.URL == "" {
		err := fmt.Errorf("%w: %s", ErrTargetNotConfigured, resolution.Slot.Target)
		logger.Error().Err(err).Msg("Resolved target has no URL")
		return result, err
	}

	result.State = StateCheckDuplicate
	decision := r.deps.Guard.Check(ctx, r.name, resolution.Slot.Target, resolution.Slot.SlotTime, now)
	if decision.Skip {
		return r.skip(logger, result, decision.Reason), nil
	}

	result.State = StateScrape
	records, err := r.scrape(ctx, target.URL)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrScrape, err)
		return r.fail(ctx, logger, result, now, err)
	}
	result.Records = len(records)
	logger.Info().Int("records", len(records)).Str("url", target.URL).Msg("Ranking scraped")

	result.State = StateDiffAndPersist
	previous, err := r.deps.Store.Latest(ctx, r.name, resolution.Slot.Target)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load previous snapshot, reporting without comparison")
		previous = nil
	}

	snapshot := &models.Snapshot{
		Pipeline:   r.name,
		Target:     resolution.Slot.Target,
		SlotTime:   resolution.Slot.SlotTime,
		DateTime:   now.Format(models.DateTimeLayout),
		URL:        target.URL,
		CapturedAt: now,
		Rankings:   records,
	}
	location, err := r.deps.Store.Save(ctx, snapshot)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPersist, err)
		return r.fail(ctx, logger, result, now, err)
	}
	result.Location = location

	message := r.deps.Formatter.Success(snapshot, previous)
	if !r.deps.Notifier.Notify(ctx, message) {
		logger.Error().Str("location", location).Msg("Snapshot saved but report delivery failed")
		return result, ErrNotificationFailed
	}

	logger.Info().
		Str("target", snapshot.Target).
		Str("slot", snapshot.SlotTime).
		Str("location", location).
		Msg("Run completed")
	return result, nil
}

func (r *Runner) scrape(ctx context.Context, url string) ([]models.RankingRecord, error) {
	html, err := r.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return r.deps.Extractor.Extract(html)
}

func (r *Runner) skip(logger arbor.ILogger, result *Result, reason string) *Result {
	logger.Info().
		Str("state", string(result.State)).
		Str("reason", reason).
		Msg("Run skipped")
	result.Skipped = true
	result.Reason = reason
	return result
}

// fail sends the failure report and returns the original error whatever the
// delivery outcome.
func (r *Runner) fail(ctx context.Context, logger arbor.ILogger, result *Result, now time.Time, err error) (*Result, error) {
	logger.Error().Err(err).Str("state", string(result.State)).Msg("Run failed")
	result.State = StateNotifyError

	message := r.deps.Formatter.Failure(report.Failure{
		At:       now,
		Target:   result.Slot.Target,
		SlotTime: result.Slot.SlotTime,
		Err:      err,
	})
	result.ErrorNotified = r.deps.Notifier.Notify(ctx, message)
	if !result.ErrorNotified {
		logger.Error().Err(err).Msg("Failure report could not be delivered")
	}
	return result, err
}
