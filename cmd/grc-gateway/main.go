package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/grc-gateway/pkg/api"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/billing"
	"github.com/platinummonkey/grc-gateway/pkg/config"
	"github.com/platinummonkey/grc-gateway/pkg/files"
	"github.com/platinummonkey/grc-gateway/pkg/identity"
	"github.com/platinummonkey/grc-gateway/pkg/middleware"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
	"github.com/platinummonkey/grc-gateway/pkg/storage/cache"
	"github.com/platinummonkey/grc-gateway/pkg/storage/objects"
	"github.com/platinummonkey/grc-gateway/pkg/storage/postgres"
)

func main() {
	envFile := flag.String("env-file", ".env", "Comma-separated env files to load before reading the environment")
	flag.Parse()

	cfg, err := config.LoadConfig(strings.Split(*envFile, ",")...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Observability)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("gateway exited")
		os.Exit(1)
	}
}

func newLogger(cfg config.ObservabilityConfig) *observability.Logger {
	if strings.EqualFold(cfg.LogFormat, "text") {
		return observability.NewTextLogger(cfg.Level(), os.Stdout)
	}
	return observability.NewLogger(cfg.Level(), os.Stdout)
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = observability.WithLogger(ctx, logger)

	telemetry, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	var (
		registry = prometheus.NewRegistry()
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	db, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	logger.Info("Connected to PostgreSQL")

	redisClient, err := postgres.NewRedisClient(ctx, cfg.Storage)
	if err != nil {
		// Redis only backs the rate limiter and the shared cache tier.
		logger.WithError(err).Warn("Redis unavailable, continuing with in-process limiter and cache")
		redisClient = nil
	}

	objectStore, err := objects.NewS3Client(ctx, cfg.Storage, metrics)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	// Audit rows go to audit_logs and to the structured log.
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	auditLogger := audit.NewMultiLogger(dbAudit, audit.NewLogSink(logger))
	auditLogger.SetLogger(logger)
	auditLogger.SetAsync(true)

	limitsCache := cache.New[orgs.PlanLimits]("plan_limits", cache.Options{
		Size:    cfg.Storage.CacheSize,
		TTL:     cfg.Storage.CacheTTL,
		Redis:   redisClient,
		Metrics: metrics,
		Logger:  logger,
	})
	orgService := orgs.NewPostgresService(db,
		orgs.WithPlanLimitsCache(limitsCache),
		orgs.WithLogger(logger),
	)

	fileService := files.NewService(files.NewPostgresStore(db), objectStore, orgService, files.WithLogger(logger))

	prices, err := loadPrices(ctx, cfg.Billing, logger)
	if err != nil {
		return err
	}
	billingService := billing.NewService(
		billing.NewPostgresStore(db),
		billing.NewStripeClient(cfg.Billing.APIBaseURL, cfg.Billing.SecretKey),
		prices,
		billing.Config{
			WebhookSecret: cfg.Billing.WebhookSecret,
			Tolerance:     cfg.Billing.WebhookTolerance,
			AppURL:        cfg.Billing.AppURL,
		},
		billing.WithAudit(auditLogger),
		billing.WithMetrics(metrics),
		billing.WithLogger(logger),
	)
	if cfg.Billing.WebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set, webhook deliveries will be rejected")
	}

	server := api.NewServer(api.Dependencies{
		Orgs:     orgService,
		Files:    fileService,
		Identity: identity.NewAdminClient(cfg.Auth.URL, cfg.Auth.ServiceRoleKey, cfg.Auth.InviteRedirectURL),
		Invites:  audit.NewDBInviteLog(db),
		Billing:  billingService,
		Verifier: verifier,
		Audit:    auditLogger,
		Limiter:  newLimiter(redisClient, cfg.Limits.RateLimitPerMinute),
		Metrics:  metrics,
		Logger:   logger,
	}, api.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		ServiceName:    cfg.Observability.OTelServiceName,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	probes := []observability.Probe{observability.DatabaseProbe(db)}
	if redisClient != nil {
		probes = append(probes, observability.RedisProbe(redisClient))
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(cfg.Server.Version, probes...))
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.Register("otel", telemetry.Shutdown)

	errCh := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		defer observability.RecoverPanic(logger, name)
		logger.WithField("addr", srv.Addr).Infof("Starting %s server", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("health", healthServer)
	go serve("gateway", httpServer)

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		select {
		case err := <-errCh:
			logger.WithError(err).Error("server failed")
			stopWaiting()
		case <-waitCtx.Done():
		}
	}()

	return shutdown.WaitForShutdown(waitCtx)
}

// newVerifier builds the bearer credential verifier for the configured mode
func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case config.AuthModeOIDC:
		return auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
			IssuerURL:     cfg.OIDCIssuer,
			ClientID:      cfg.OIDCClientID,
			FetchUserInfo: cfg.OIDCFetchUserInfo,
		})
	case config.AuthModeRemote:
		return auth.NewRemoteVerifier(cfg.URL, cfg.AnonKey)
	default:
		return auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience)
	}
}

// newLimiter prefers the shared Redis window and falls back to a per-process
// one; a non-positive rate disables limiting
func newLimiter(client *redis.Client, perMinute int) middleware.Limiter {
	if perMinute <= 0 {
		return nil
	}
	limits := &middleware.RateLimitConfig{RequestsPerWindow: perMinute, WindowDuration: time.Minute}
	if client != nil {
		return middleware.NewRedisLimiter(client, limits, "grc:ratelimit")
	}
	return middleware.NewLocalLimiter(limits)
}

// loadPrices builds the price table from the environment and, when set, the
// price table file, which is then watched for changes
func loadPrices(ctx context.Context, cfg config.BillingConfig, logger *observability.Logger) (*billing.PriceTable, error) {
	prices := billing.NewPriceTable(cfg.PricePro, cfg.PriceEnterprise)
	if cfg.PriceTableFile == "" {
		return prices, nil
	}
	if err := prices.LoadFile(cfg.PriceTableFile); err != nil {
		return nil, err
	}
	if err := prices.Watch(ctx, cfg.PriceTableFile, logger); err != nil {
		logger.WithError(err).Warn("Price table hot reload disabled")
	}
	logger.WithField("prices", prices.Len()).Info("Loaded price table")
	return prices, nil
}
