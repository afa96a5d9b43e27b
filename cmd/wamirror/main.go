package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"wamirror/internal/config"
	"wamirror/internal/constants"
	"wamirror/internal/ingest"
	"wamirror/internal/models"
	"wamirror/internal/notify"
	"wamirror/internal/retry"
	"wamirror/internal/service"
	"wamirror/internal/store"
	"wamirror/internal/tracing"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes phone numbers and message ids)")
	configPath = flag.String("config", "", "Path to an optional JSON or YAML configuration file")
	envFile    = flag.String("env-file", ".env", "Path to an optional .env file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wamirror %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wamirror")

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogLevel(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := notify.NewHub(cfg.Notifier.ClientBufferSize, originHosts(cfg.Server.AllowedOrigins), logger)
	defer hub.Close()

	sinks := notify.Multi{hub}
	if cfg.Notifier.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(notify.AMQPConfig{
			URL:            cfg.Notifier.AMQPURL,
			Exchange:       cfg.Notifier.AMQPExchange,
			PublishTimeout: time.Duration(cfg.Notifier.PublishTimeoutMs) * time.Millisecond,
			QueueSize:      cfg.Notifier.QueueSize,
		}, logger)
		if err != nil {
			// The broker is an optional sink; websocket subscribers still get events.
			logger.WithError(err).Warn("AMQP notifier disabled")
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
		}
	}

	ingestor := ingest.New(st, sinks, logger, ingest.Config{BusinessNumber: cfg.Business.PhoneNumber})
	msgService, err := service.NewMessageService(st, sinks, logger)
	if err != nil {
		return fmt.Errorf("failed to create message service: %w", err)
	}

	server := NewServer(cfg, ingestor, msgService, st, hub, logger, *verbose)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	// Websocket handlers only return once their client channel is closed.
	_ = hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// configureLogLevel applies the configured level. Verbose forces debug.
func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

// openStore connects to the configured backend, retrying while it comes up.
func openStore(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (store.Store, error) {
	backoffConfig := retry.FromConfig(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	backoff := retry.NewBackoff(backoffConfig).OnRetry(func(attempt int, delay time.Duration, err error) {
		logger.WithFields(logrus.Fields{
			service.LogFieldAttempt: attempt,
			"delay_ms":              delay.Milliseconds(),
		}).WithError(err).Warn("Failed to open store, retrying")
	})

	var st store.Store
	err := backoff.Retry(ctx, func() error {
		var openErr error
		st, openErr = store.Open(ctx, cfg.Store, logger)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store after retries: %w", err)
	}

	logger.WithField("driver", cfg.Store.Driver).Info("Store ready")
	return st, nil
}
