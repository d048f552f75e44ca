package main

import (
	"context"
	"errors"
	"os"
	"time"

	"rupee/internal/amqp"
	"rupee/internal/cli"
	"rupee/internal/log"
	"rupee/internal/notify"
	"rupee/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting rupee-notifier")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the notifier")
		os.Exit(1)
	}

	var sink notify.Sink = notify.NewLogSink(logger)
	if cfg.NotifyWebhookURL != "" {
		sink = notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyTimeout)
		logger.Info("Forwarding alerts to webhook")
	} else {
		logger.Warn("NOTIFY_WEBHOOK_URL not set, alerts will only be logged")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, string(amqp.EventBudgetAlert))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(context.Context) {
		_ = client.Close()
	})

	alerts := worker.NewAlertWorker(sink, logger)
	logger.Info("Consuming budget alerts", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := client.Consume(ctx, alerts.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Notifier stopped")
}
