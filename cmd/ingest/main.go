// Command ingest replays a directory of captured webhook payloads into the
// message store, optionally watching it for new files.
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
	"wamirror/internal/notify"
	"wamirror/internal/retry"
	"wamirror/internal/service"
	"wamirror/internal/store"
)

var (
	dir        = flag.String("dir", "", "Directory of *.json webhook payload files")
	watch      = flag.Bool("watch", false, "Keep running and ingest files as they are written")
	settle     = flag.Duration("settle", time.Duration(constants.DefaultWatchSettleMs)*time.Millisecond, "Quiet period before a changed file is ingested")
	configPath = flag.String("config", "", "Path to an optional JSON or YAML configuration file")
	envFile    = flag.String("env-file", ".env", "Path to an optional .env file")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes phone numbers and message ids)")
)

func main() {
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -dir <payloads> [-watch] [-config file]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dir, *watch); err != nil {
		logrus.Fatalf("Ingest error: %v", err)
	}
}

func run(ctx context.Context, payloadDir string, watchMode bool) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		ctx = service.WithVerbose(ctx, true)
	} else if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	backoffConfig := retry.FromConfig(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	var st store.Store
	err = retry.NewBackoff(backoffConfig).Retry(ctx, func() error {
		var openErr error
		st, openErr = store.Open(ctx, cfg.Store, logger)
		return openErr
	})
	if err != nil {
		return fmt.Errorf("failed to open store after retries: %w", err)
	}
	defer st.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifier.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(notify.AMQPConfig{
			URL:            cfg.Notifier.AMQPURL,
			Exchange:       cfg.Notifier.AMQPExchange,
			PublishTimeout: time.Duration(cfg.Notifier.PublishTimeoutMs) * time.Millisecond,
			QueueSize:      cfg.Notifier.QueueSize,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("AMQP notifier disabled")
		} else {
			defer publisher.Close()
			notifier = publisher
		}
	}

	ingestor := ingest.New(st, notifier, logger, ingest.Config{BusinessNumber: cfg.Business.PhoneNumber})
	batch := ingest.NewBatch(ingestor, payloadDir, logger)

	report, err := batch.RunOnce(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"files":        report.Files,
		"malformed":    report.Malformed,
		"messages":     report.Units.Messages,
		"statuses":     report.Units.Statuses,
		"placeholders": report.Units.Placeholders,
		"skipped":      report.Units.Skipped,
		"failed":       report.Units.Failed,
	}).Info("Batch ingest completed")

	if !watchMode {
		return nil
	}
	return batch.Watch(ctx, *settle)
}
