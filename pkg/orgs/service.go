package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/storage/cache"
)

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db          *sql.DB
	limitsCache *cache.Tiered[PlanLimits]
	resolving   singleflight.Group
	logger      *observability.Logger
}

// Option configures a PostgresService
type Option func(*PostgresService)

// WithPlanLimitsCache serves plan limit lookups from c
func WithPlanLimitsCache(c *cache.Tiered[PlanLimits]) Option {
	return func(s *PostgresService) { s.limitsCache = c }
}

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *PostgresService) { s.logger = logger }
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, opts ...Option) *PostgresService {
	s := &PostgresService{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Service = (*PostgresService)(nil)

const organizationColumns = `
	id, name, slug, custom_domain, plan, plan_status, owner_id, brand_color, logo_url,
	sso_enabled, sso_enforced, risk_appetite_threshold, disabled_framework_ids,
	stripe_customer_id, stripe_subscription_id, stripe_price_id,
	current_period_end, canceled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*Organization, error) {
	org := &Organization{}
	var disabled pq.StringArray
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.CustomDomain, &org.Plan, &org.PlanStatus,
		&org.OwnerID, &org.BrandColor, &org.LogoURL,
		&org.SSOEnabled, &org.SSOEnforced, &org.RiskAppetiteThreshold, &disabled,
		&org.StripeCustomerID, &org.StripeSubscriptionID, &org.StripePriceID,
		&org.CurrentPeriodEnd, &org.CanceledAt, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	org.DisabledFrameworkIDs = []string(disabled)
	if org.DisabledFrameworkIDs == nil {
		org.DisabledFrameworkIDs = []string{}
	}
	return org, nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NoOrganization()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// organizationOwnedBy returns the organization owned by userID, or nil
func (s *PostgresService) organizationOwnedBy(ctx context.Context, userID string) (*Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE owner_id = $1 ORDER BY created_at ASC LIMIT 1`
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up owned organization: %w", err)
	}
	return org, nil
}

const profileColumns = `id, org_id, role, full_name, email, pending_org_name`

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	if err := row.Scan(&p.ID, &p.OrgID, &p.Role, &p.FullName, &p.Email, &p.PendingOrgName); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProfile returns the profile for userID, or nil when none exists
func (s *PostgresService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListOrganizations returns every organization, oldest first
func (s *PostgresService) ListOrganizations(ctx context.Context) ([]OrgSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, plan FROM organizations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []OrgSummary
	for rows.Next() {
		var o OrgSummary
		if err := rows.Scan(&o.ID, &o.Name, &o.Plan); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return out, nil
}
