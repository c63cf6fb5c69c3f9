package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/calendar"
	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/interfaces"
	"github.com/ternarybob/rankwatch/internal/notify"
	"github.com/ternarybob/rankwatch/internal/pipeline"
	"github.com/ternarybob/rankwatch/internal/report"
	"github.com/ternarybob/rankwatch/internal/schedule"
	"github.com/ternarybob/rankwatch/internal/scheduler"
	"github.com/ternarybob/rankwatch/internal/scraper"
	"github.com/ternarybob/rankwatch/internal/storage"
	"github.com/ternarybob/rankwatch/internal/webhook"
)

// App holds all application components and dependencies
type App struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Store    interfaces.SnapshotStorage
	Calendar *calendar.Oracle
	Notifier *notify.Notifier
	Fetcher  interfaces.PageFetcher

	runners []*pipeline.Runner
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	fetcher  interfaces.PageFetcher
	notifyOp []notify.Option
}

// WithFetcher replaces the configured page fetcher.
func WithFetcher(f interfaces.PageFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithNotifyOptions passes options to the notifier.
func WithNotifyOptions(opts ...notify.Option) Option {
	return func(o *options) { o.notifyOp = append(o.notifyOp, opts...) }
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(o); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initPipelines(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize pipelines: %w", err)
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Str("notify", cfg.Notify.Provider).
		Str("calendar", cfg.Calendar.Provider).
		Int("pipelines", len(app.runners)).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the snapshot store
func (a *App) initStorage() error {
	store, err := storage.NewSnapshotStorage(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.Store = store
	return nil
}

func (a *App) initServices(o *options) error {
	oracle, err := calendar.New(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	a.Calendar = oracle

	notifier, err := notify.New(a.Config.Notify, a.Logger, o.notifyOp...)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	a.Notifier = notifier

	if o.fetcher != nil {
		a.Fetcher = o.fetcher
		return nil
	}
	fetcher, err := scraper.NewFetcher(a.Config.Fetch, a.Logger)
	if err != nil {
		return fmt.Errorf("fetcher: %w", err)
	}
	a.Fetcher = fetcher
	return nil
}

func (a *App) initPipelines() error {
	for _, p := range a.Config.Pipelines {
		if p.Disabled {
			a.Logger.Debug().Str("pipeline", p.Name).Msg("Pipeline disabled")
			continue
		}
		runner, err := a.buildRunner(p)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", p.Name, err)
		}
		a.runners = append(a.runners, runner)
	}
	if len(a.runners) == 0 {
		return errors.New("no enabled pipelines")
	}
	return nil
}

func (a *App) buildRunner(p common.PipelineConfig) (*pipeline.Runner, error) {
	loc := a.Config.Location()

	resolver, err := schedule.NewResolver(p, loc, a.Logger)
	if err != nil {
		return nil, err
	}
	extractor, err := scraper.NewExtractor(p.Extract.Layout, p.Extract.Selectors, p.Extract.Limit)
	if err != nil {
		return nil, err
	}
	formatter, err := report.New(p.Report.Mode, report.Options{
		TopN:     p.Report.TopN,
		BottomN:  p.Report.BottomN,
		Location: loc,
		Label:    p.Label,
	})
	if err != nil {
		return nil, err
	}
	guard := schedule.NewGuard(a.Store, a.Config.Guard.Threshold(), a.Config.Guard.RecencyPolicy, loc, a.Logger)

	return pipeline.NewRunner(p.Name, p.Targets, pipeline.Dependencies{
		Calendar:  a.Calendar,
		Resolver:  resolver,
		Guard:     guard,
		Fetcher:   a.Fetcher,
		Extractor: extractor,
		Store:     a.Store,
		Formatter: formatter,
		Notifier:  a.Notifier,
		Location:  loc,
	}, a.Logger)
}

// Runners returns the enabled pipelines in configuration order.
func (a *App) Runners() []*pipeline.Runner {
	return a.runners
}

// Runner returns the named enabled pipeline.
func (a *App) Runner(name string) (*pipeline.Runner, bool) {
	for _, r := range a.runners {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// Run runs the named pipelines, or every enabled one when names is empty,
// one after another. A manual target only runs on pipelines that define it.
// Failures do not stop later pipelines; they are joined into the result.
func (a *App) Run(ctx context.Context, names []string, trigger pipeline.Trigger) ([]*pipeline.Result, error) {
	runners := a.runners
	if len(names) > 0 {
		runners = nil
		for _, name := range names {
			r, ok := a.Runner(name)
			if !ok {
				return nil, fmt.Errorf("unknown or disabled pipeline: %s", name)
			}
			runners = append(runners, r)
		}
	}

	if trigger.Manual.Target != "" {
		var matching []*pipeline.Runner
		for _, r := range runners {
			if p, ok := a.Config.Pipeline(r.Name()); ok {
				if _, has := p.Targets[trigger.Manual.Target]; has {
					matching = append(matching, r)
				}
			}
		}
		if len(matching) == 0 {
			return nil, fmt.Errorf("%w: %s", pipeline.ErrTargetNotConfigured, trigger.Manual.Target)
		}
		runners = matching
	}

	var results []*pipeline.Result
	var errs []error
	for _, r := range runners {
		result, err := r.Run(ctx, trigger)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline %s: %w", r.Name(), err))
		}
	}
	return results, errors.Join(errs...)
}

// NewScheduler registers every enabled pipeline on its cron triggers.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.Config.SchedulerLocation(), a.Logger)
	for _, r := range a.runners {
		p, _ := a.Config.Pipeline(r.Name())
		triggers := scheduler.Triggers(*p)
		if len(triggers) == 0 {
			a.Logger.Warn().Str("pipeline", r.Name()).Msg("Pipeline has no triggers, not scheduled")
			continue
		}
		if err := s.Register(r, triggers); err != nil {
			return nil, err
		}
	}
	if s.Len() == 0 {
		return nil, errors.New("no pipeline has cron triggers")
	}
	return s, nil
}

// NewWebhookServer creates the alert webhook over the app notifier.
func (a *App) NewWebhookServer() *webhook.Server {
	return webhook.NewServer(a.Config.Webhook, a.Notifier, a.Config.Location(), a.Logger)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}
	return nil
}
