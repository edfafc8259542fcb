package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/middleware"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

func TestServer_CORSPreflight(t *testing.T) {
	server := NewServer(Dependencies{Orgs: &mockOrgService{}, Verifier: stubVerifier{}}, Config{
		AllowedOrigins: []string{"https://app.acme.test"},
	})

	req := httptest.NewRequest(http.MethodOptions, FunctionsPrefix+"/create-risk", nil)
	req.Header.Set("Origin", "https://app.acme.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "https://app.acme.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, FunctionsPrefix+"/create-risk", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Authentication(t *testing.T) {
	env := newTestEnv(t, newMember(auth.RoleAdmin))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"invalid token", "Bearer forged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, FunctionsPrefix+"/usage", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.server.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestServer_UnknownRouteAndMethod(t *testing.T) {
	env := newTestEnv(t, newMember(auth.RoleAdmin))

	rec, body := env.call(t, "/drop-tables", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", body["error"])

	req := httptest.NewRequest(http.MethodGet, FunctionsPrefix+"/usage", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	svc := newMember(auth.RoleViewer)
	svc.getUsageFunc = func(string) (*orgs.Usage, error) { return &orgs.Usage{}, nil }
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	server := NewServer(Dependencies{
		Orgs:     svc,
		Verifier: stubVerifier{},
		Limiter:  middleware.NewLocalLimiter(&middleware.RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}),
		Metrics:  metrics,
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	}, Config{})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, FunctionsPrefix+"/usage", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+testToken)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.GatewayOperationsTotal.WithLabelValues(opUsage, "ok")))
}

func TestServer_OperationMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	svc := newMember(auth.RoleManager)
	svc.createRiskFunc = func(string, string, *orgs.Risk) error {
		return &orgs.QuotaExceededError{Plan: orgs.PlanFree, Resource: orgs.ResourceRisks, Current: 50, Limit: 50}
	}

	server := NewServer(Dependencies{
		Orgs:     svc,
		Verifier: stubVerifier{},
		Metrics:  metrics,
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	}, Config{})

	req := httptest.NewRequest(http.MethodPost, FunctionsPrefix+"/create-risk", bytes.NewBufferString(`{"title":"Vendor outage"}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GatewayOperationsTotal.WithLabelValues(opCreateRisk, "quota_exceeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.QuotaDenialsTotal.WithLabelValues("risks", "free")))
}

var (
	organizationColumnNames = []string{
		"id", "name", "slug", "custom_domain", "plan", "plan_status", "owner_id", "brand_color", "logo_url",
		"sso_enabled", "sso_enforced", "risk_appetite_threshold", "disabled_framework_ids",
		"stripe_customer_id", "stripe_subscription_id", "stripe_price_id",
		"current_period_end", "canceled_at", "created_at", "updated_at",
	}
	profileColumnNames = []string{"id", "org_id", "role", "full_name", "email", "pending_org_name"}
)

// postgresEnv runs the gateway against the Postgres-backed services with a
// mocked database
func postgresEnv(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditLogger, err := audit.NewDBLogger(db)
	require.NoError(t, err)

	server := NewServer(Dependencies{
		Orgs:     orgs.NewPostgresService(db),
		Verifier: stubVerifier{},
		Audit:    auditLogger,
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	}, Config{})
	return server, mock
}

func expectMembership(mock sqlmock.Sqlmock, role, plan string) {
	now := time.Now()
	mock.ExpectQuery("FROM profiles WHERE id").WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(profileColumnNames).AddRow(testUserID, testOrgID, role, "Ada Admin", testEmail, nil))
	mock.ExpectQuery("FROM organizations WHERE id").WithArgs(testOrgID).
		WillReturnRows(sqlmock.NewRows(organizationColumnNames).AddRow(
			testOrgID, "Acme", "acme", nil, plan, "none", targetID, nil, nil,
			false, false, 12, []byte("{}"),
			nil, nil, nil,
			nil, nil, now, now,
		))
	mock.ExpectQuery("SELECT role FROM profiles").WithArgs(testUserID, testOrgID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(role))
}

func postRisk(t *testing.T, server *Server) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, FunctionsPrefix+"/create-risk", bytes.NewBufferString(`{"title":"Vendor outage"}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestPostgresGateway_ViewerCannotWrite(t *testing.T) {
	server, mock := postgresEnv(t)
	expectMembership(mock, "viewer", "free")

	rec := postRisk(t, server)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "manager role required", decode(t, rec)["error"])

	// No quota reads, no insert and no audit row.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGateway_RiskQuotaFollowsPlan(t *testing.T) {
	server, mock := postgresEnv(t)

	expectMembership(mock, "manager", "free")
	mock.ExpectQuery("SELECT plan FROM organizations").WithArgs(testOrgID).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("free"))
	mock.ExpectQuery("FROM plan_limits").WithArgs("free").
		WillReturnRows(sqlmock.NewRows([]string{"max_users", "max_risks", "max_frameworks", "max_storage_items"}).AddRow(3, 50, 2, 20))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM risks").WithArgs(testOrgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(50))

	rec := postRisk(t, server)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "quota exceeded: free plan allows 50 risks", decode(t, rec)["error"])

	expectMembership(mock, "manager", "pro")
	mock.ExpectQuery("SELECT plan FROM organizations").WithArgs(testOrgID).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("pro"))
	mock.ExpectQuery("FROM plan_limits").WithArgs("pro").
		WillReturnRows(sqlmock.NewRows([]string{"max_users", "max_risks", "max_frameworks", "max_storage_items"}).AddRow(25, 1000, 10, 500))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM risks").WithArgs(testOrgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(50))
	mock.ExpectQuery("INSERT INTO risks").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("risk-51", time.Now()))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	rec = postRisk(t, server)
	require.Equal(t, http.StatusOK, rec.Code)
	risk := decode(t, rec)["risk"].(map[string]interface{})
	assert.Equal(t, "risk-51", risk["id"])
	assert.Equal(t, testOrgID, risk["org_id"])

	require.NoError(t, mock.ExpectationsWereMet())
}
