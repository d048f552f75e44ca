package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"rupee/internal/amqp"
	"rupee/internal/backend"
	"rupee/internal/budget"
	"rupee/internal/cache"
	"rupee/internal/cli"
	"rupee/internal/extractor"
	apphttp "rupee/internal/http"
	"rupee/internal/locator"
	"rupee/internal/log"
	"rupee/internal/notify"
	"rupee/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = 10 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStateStore(logger, cfg.StateDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg, repo)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Alerts go to AMQP when a broker is configured and rupee-notifier
	// delivers them; otherwise the webhook is called from here.
	var (
		events services.EventPublisher
		broker *amqp.Client
		sinks  = []notify.Sink{notify.NewLogSink(logger)}
	)
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "")
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			events = broker
			sinks = append(sinks, notify.NewAMQPSink(broker))
			logger.Info("Initialized AMQP publisher", "exchange", cfg.AMQPExchange)
		}
	}
	if broker == nil && cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyTimeout))
	}
	alerts := notify.NewDispatcher(logger, cfg.NotifyTimeout, sinks...)

	ceiling, err := cfg.DefaultCeiling()
	if err != nil {
		ceiling = budget.DefaultCeiling
	}
	monitor := budget.NewMonitor(repo, alerts, cfg.ResetPolicy(), ceiling, logger)

	deps := services.Deps{
		Sessions: be.Sessions,
		Locator:  locator.New(be.Gateway, repo, cfg.LedgerAppName, logger),
		Gateway:  be.Gateway,
		Budget:   monitor,
		Events:   events,
		Logger:   logger,
	}
	var janitor *cache.Janitor
	if cfg.ExtractorURL != "" {
		ext := extractor.New(extractor.Config{
			BaseURL:       cfg.ExtractorURL,
			Timeout:       cfg.ExtractorTimeout,
			RatePerMinute: cfg.ExtractorRatePerMinute,
		}, logger)
		defer ext.Close()
		deps.Extractor = ext
		janitor = cache.NewJanitor(logger, ext.Results())
		logger.Info("Extractor enabled", "url", cfg.ExtractorURL)
	}
	svc := services.NewLedgerService(deps)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{Logger: logger})
	srv.ReadTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		svc.Close()
		alerts.Wait()
		if broker != nil {
			_ = broker.Close()
		}
		if be.Cleanup != nil {
			_ = be.Cleanup()
		}
	})

	if err := svc.Start(ctx); err != nil {
		logger.Warn("Previous session could not be restored", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting rupee server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if janitor != nil {
		g.Go(func() error { return janitor.Run(gctx, sweepInterval) })
	}
	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
