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
	"github.com/ternarybob/rankwatch/internal/webhook"
)

func newServeCommand(state *cliState) *cobra.Command {
	var withWebhook bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run pipelines on their cron triggers",
		Long:  `Keeps running and fires each enabled pipeline on its cron triggers, passing the expression that fired as the trigger id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(state, withWebhook)
		},
	}
	cmd.Flags().BoolVar(&withWebhook, "webhook", false, "Also serve the TradingView webhook")
	return cmd
}

func runServe(state *cliState, withWebhook bool) error {
	logger := state.logger
	common.PrintBanner("serve")

	application, err := app.New(state.config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	sched, err := application.NewScheduler()
	if err != nil {
		return err
	}

	var srv *webhook.Server
	serverErr := make(chan error, 1)
	if withWebhook {
		srv = application.NewWebhookServer()
		common.SafeGo(logger, "webhook-server", func() { serverErr <- srv.Start() })
	}

	sched.Start()
	logger.Info().Msg("Scheduler ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err = <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Webhook server failed")
		}
	}

	sched.Stop()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("Webhook shutdown failed")
		}
	}
	return err
}
