// Package observability provides logging, metrics, tracing, health checks
// and graceful shutdown for the gateway binaries.
//
// Logging is structured JSON through logrus:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("invite recorded")
//
// Handlers pull a request-scoped logger with FromContext, which attaches the
// request and user ids set by the HTTP middleware.
//
// Metrics are Prometheus collectors prefixed grc_. Health endpoints are
// /healthz (liveness) and /readyz (critical dependency probes).
package observability
