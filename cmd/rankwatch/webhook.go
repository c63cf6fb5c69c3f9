package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/notify"
	"github.com/ternarybob/rankwatch/internal/webhook"
)

func newWebhookCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "webhook",
		Short: "Serve the TradingView alert webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebhook(state)
		},
	}
}

func runWebhook(state *cliState) error {
	config, logger := state.config, state.logger
	common.PrintBanner("webhook")

	if config.Webhook.Secret == "" {
		logger.Warn().Msg("Webhook secret is not set, every alert will be refused")
	}

	notifier, err := notify.New(config.Notify, logger)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	srv := webhook.NewServer(config.Webhook, notifier, config.Location(), logger)
	serverErr := make(chan error, 1)
	common.SafeGo(logger, "webhook-server", func() { serverErr <- srv.Start() })

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
