package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/rankwatch/internal/app"
	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/models"
	"github.com/ternarybob/rankwatch/internal/pipeline"
)

type runOptions struct {
	trigger   string
	target    string
	slot      string
	pipelines []string
}

func newRunCommand(state *cliState) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the enabled pipelines once",
		Long: `Runs each enabled pipeline once: trading-day check, slot resolution,
duplicate check, scrape, persist and notify. The trigger id defaults to
EVENT_SCHEDULE or GITHUB_EVENT_SCHEDULE; --target and --slot (or
RANKING_TARGET and RANKING_SLOT) bypass slot resolution.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.applyEnv()
			return runOnce(cmd.Context(), state, opts)
		},
	}

	cmd.Flags().StringVar(&opts.trigger, "trigger", "", "Scheduler trigger id (cron expression)")
	cmd.Flags().StringVar(&opts.target, "target", "", "Manual target (requires --slot)")
	cmd.Flags().StringVar(&opts.slot, "slot", "", "Manual slot time HH:MM (requires --target)")
	cmd.Flags().StringSliceVarP(&opts.pipelines, "pipeline", "p", nil, "Pipelines to run (default: all enabled)")
	return cmd
}

func (o *runOptions) applyEnv() {
	if o.trigger == "" {
		o.trigger = os.Getenv("EVENT_SCHEDULE")
	}
	if o.trigger == "" {
		o.trigger = os.Getenv("GITHUB_EVENT_SCHEDULE")
	}
	if o.target == "" {
		o.target = os.Getenv("RANKING_TARGET")
	}
	if o.slot == "" {
		o.slot = os.Getenv("RANKING_SLOT")
	}
}

func runOnce(ctx context.Context, state *cliState, opts *runOptions) error {
	if opts.slot != "" {
		if _, err := time.Parse(common.SlotTimeLayout, opts.slot); err != nil {
			return fmt.Errorf("invalid --slot %q: expected HH:MM", opts.slot)
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := state.logger
	application, err := app.New(state.config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	results, err := application.Run(ctx, opts.pipelines, pipeline.Trigger{
		ID:     opts.trigger,
		Manual: models.Slot{Target: opts.target, SlotTime: opts.slot},
	})
	for _, r := range results {
		event := logger.Info().
			Str("pipeline", r.Pipeline).
			Str("run_id", r.RunID).
			Str("state", string(r.State))
		if r.Skipped {
			event.Str("reason", r.Reason).Msg("Pipeline skipped")
			continue
		}
		event.
			Str("target", r.Slot.Target).
			Str("slot", r.Slot.SlotTime).
			Int("records", r.Records).
			Msg("Pipeline finished")
	}
	return err
}
