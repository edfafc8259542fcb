package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/httputil"
	"github.com/platinummonkey/grc-gateway/pkg/identity"
	"github.com/platinummonkey/grc-gateway/pkg/middleware"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// FunctionsPrefix is the path prefix of every gateway route
const FunctionsPrefix = "/functions"

// JSON envelope overhead allowed on top of an encoded upload
const bodyOverheadBytes = 64 << 10

// Dependencies are the collaborators the gateway handlers call
type Dependencies struct {
	Orgs     orgs.Service
	Files    FileService
	Identity identity.Admin
	Invites  audit.InviteLog
	Billing  BillingService
	Verifier auth.Verifier

	// Optional
	Audit   audit.Logger
	Limiter middleware.Limiter
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// Config holds HTTP-level settings
type Config struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	// ServiceName names the server span
	ServiceName string
}

// Server is the gateway HTTP handler
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer wires every gateway route
func NewServer(deps Dependencies, cfg Config) *Server {
	if deps.Audit == nil {
		deps.Audit = audit.NoOp()
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "grc-gateway"
	}

	base := handlerBase{orgs: deps.Orgs, audit: deps.Audit, metrics: deps.Metrics}

	router := mux.NewRouter()
	if deps.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	functions := router.PathPrefix(FunctionsPrefix).Subrouter()

	billingHandlers := NewBillingHandlers(base, deps.Billing)
	billingHandlers.RegisterWebhookRoute(functions)

	authed := functions.NewRoute().Subrouter()
	authed.Use(httputil.MaxBytesMiddleware(requestBodyLimit(cfg.MaxUploadBytes)))
	authed.Use(middleware.NewAuthMiddleware(deps.Verifier).Handler)
	if deps.Limiter != nil {
		authed.Use(middleware.NewRateLimitMiddleware(deps.Limiter, deps.Metrics).Handler)
	}

	NewOrgHandlers(base).RegisterRoutes(authed)
	NewMemberHandlers(base, deps.Identity, deps.Invites).RegisterRoutes(authed)
	NewFileHandlers(base, deps.Files, cfg.MaxUploadBytes).RegisterRoutes(authed)
	billingHandlers.RegisterRoutes(authed)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(cfg.AllowedOrigins),
	)
	return &Server{
		router:  router,
		handler: otelhttp.NewHandler(chain(router), cfg.ServiceName),
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the route table, for inspection
func (s *Server) Router() *mux.Router {
	return s.router
}

// requestBodyLimit allows a base64 encoded file of maxUploadBytes plus the
// surrounding JSON
func requestBodyLimit(maxUploadBytes int64) int64 {
	if maxUploadBytes <= 0 {
		return 1 << 20
	}
	return int64(base64.StdEncoding.EncodedLen(int(maxUploadBytes))) + bodyOverheadBytes
}
