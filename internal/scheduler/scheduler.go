// Package scheduler fires pipeline runs in-process on cron expressions.
// The expression that fired is passed to the run as its trigger id, so
// schedule overrides keyed by expression work the same as with an external
// scheduler.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/pipeline"
)

// Runner is a pipeline that can be run on a trigger.
type Runner interface {
	Name() string
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error)
}

// Scheduler owns the cron instance and its entries.
type Scheduler struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New creates a Scheduler evaluating expressions in loc.
func New(loc *time.Location, logger arbor.ILogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	adapter := &cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Triggers returns the cron expressions a pipeline is fired on: its explicit
// triggers plus every override key, deduplicated and sorted.
func Triggers(p common.PipelineConfig) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(expr string) {
		if expr != "" && !seen[expr] {
			seen[expr] = true
			out = append(out, expr)
		}
	}
	for _, expr := range p.Triggers {
		add(expr)
	}
	for expr := range p.Overrides {
		add(expr)
	}
	sort.Strings(out)
	return out
}

// Register adds one cron entry per trigger. Runs of the same runner never
// overlap; a firing that finds the previous run still going is dropped.
func (s *Scheduler) Register(runner Runner, triggers []string) error {
	busy := &sync.Mutex{}
	for _, expr := range triggers {
		_, err := s.cron.AddFunc(expr, func() {
			if !busy.TryLock() {
				s.logger.Warn().
					Str("pipeline", runner.Name()).
					Str("trigger", expr).
					Msg("Previous run still in progress, skipping trigger")
				return
			}
			defer busy.Unlock()
			s.execute(runner, expr)
		})
		if err != nil {
			return fmt.Errorf("invalid trigger %q for pipeline %s: %w", expr, runner.Name(), err)
		}
		s.logger.Debug().Str("pipeline", runner.Name()).Str("trigger", expr).Msg("Trigger registered")
	}
	return nil
}

func (s *Scheduler) execute(runner Runner, expr string) {
	result, err := runner.Run(s.ctx, pipeline.Trigger{ID: expr})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("pipeline", runner.Name()).
			Str("trigger", expr).
			Msg("Scheduled run failed")
		return
	}
	if result != nil && result.Skipped {
		s.logger.Debug().
			Str("pipeline", runner.Name()).
			Str("reason", result.Reason).
			Msg("Scheduled run skipped")
	}
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start begins firing entries.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("entries", s.Len()).Msg("Scheduler started")
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// cronLogger adapts arbor to cron.Logger.
type cronLogger struct {
	logger arbor.ILogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}
