package orgs

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

var orgColumnNames = []string{
	"id", "name", "slug", "custom_domain", "plan", "plan_status", "owner_id", "brand_color", "logo_url",
	"sso_enabled", "sso_enforced", "risk_appetite_threshold", "disabled_framework_ids",
	"stripe_customer_id", "stripe_subscription_id", "stripe_price_id",
	"current_period_end", "canceled_at", "created_at", "updated_at",
}

var profileColumnNames = []string{"id", "org_id", "role", "full_name", "email", "pending_org_name"}

func orgRows(id, name, ownerID, plan string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orgColumnNames).AddRow(
		id, name, Slugify(name), nil, plan, "none", ownerID, nil, nil,
		false, false, 12, []byte("{}"),
		nil, nil, nil,
		nil, nil, now, now,
	)
}

func profileRows(id string, orgID interface{}, role string) *sqlmock.Rows {
	return sqlmock.NewRows(profileColumnNames).AddRow(id, orgID, role, "Ada Lovelace", "ada@example.com", nil)
}

func countRows(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func newMockService(t *testing.T, opts ...Option) (*PostgresService, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresService(db, opts...), mock, db
}

func uniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint}
}
