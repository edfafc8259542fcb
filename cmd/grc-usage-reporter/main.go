package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/grc-gateway/pkg/analytics"
	"github.com/platinummonkey/grc-gateway/pkg/config"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
	"github.com/platinummonkey/grc-gateway/pkg/storage/postgres"
)

var (
	envFile     = flag.String("env-file", ".env", "Comma-separated env files to load before reading the environment")
	schedule    = flag.String("schedule", getEnv("GRC_USAGE_SCHEDULE", "*/15 * * * *"), "Cron schedule for usage reports (default: every 15 minutes)")
	pushURL     = flag.String("pushgateway-url", getEnv("GRC_PUSHGATEWAY_URL", ""), "Prometheus Pushgateway URL; empty disables pushing")
	pushJob     = flag.String("push-job", getEnv("GRC_PUSHGATEWAY_JOB", "grc_usage_reporter"), "Pushgateway job name")
	warnRatio   = flag.Float64("warn-ratio", analytics.DefaultWarnRatio, "Quota utilization at which an organization is reported")
	concurrency = flag.Int("concurrency", 4, "Organizations counted concurrently")
	runOnce     = flag.Bool("run-once", false, "Run one report and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadReporterConfig(strings.Split(*envFile, ",")...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewTextLogger(cfg.Observability.Level(), os.Stdout)
	ctx := observability.WithLogger(context.Background(), logger)

	db, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	reporter := analytics.NewReporter(
		analytics.NewAggregator(orgs.NewPostgresService(db, orgs.WithLogger(logger)), *concurrency),
		analytics.NewAlerter(*warnRatio),
		logger,
		analytics.ReporterConfig{PushURL: *pushURL, PushJob: *pushJob},
	)

	// Run once mode (for testing or ad hoc reports)
	if *runOnce {
		if _, err := reporter.Run(ctx); err != nil {
			logger.WithError(err).Error("Usage report failed")
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(*schedule, func() {
		defer observability.RecoverPanic(logger, "usage report")
		if _, err := reporter.Run(ctx); err != nil {
			logger.WithError(err).Error("Usage report failed")
		}
	})
	if err != nil {
		logger.WithError(err).Errorf("Invalid schedule %q", *schedule)
		db.Close()
		os.Exit(1)
	}

	c.Start()
	logger.WithField("schedule", *schedule).Info("GRC usage reporter started")

	shutdown := observability.NewShutdownManager(logger, cfg.ShutdownTimeout)
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-c.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
