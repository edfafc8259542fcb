package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

var tracer = otel.Tracer("github.com/platinummonkey/grc-gateway/pkg/orgs")

// DefaultPlanLimits applies when a plan has no plan_limits row
func DefaultPlanLimits(plan PlanTier) PlanLimits {
	return PlanLimits{
		Plan:            plan,
		MaxUsers:        3,
		MaxRisks:        50,
		MaxFrameworks:   2,
		MaxStorageItems: 20,
	}
}

// PlanLimits returns the limits for plan, through the plan-limits cache when
// one is configured
func (s *PostgresService) PlanLimits(ctx context.Context, plan PlanTier) (PlanLimits, error) {
	if s.limitsCache != nil {
		return s.limitsCache.Get(ctx, string(plan), func(ctx context.Context, _ string) (PlanLimits, error) {
			return s.loadPlanLimits(ctx, plan)
		})
	}
	return s.loadPlanLimits(ctx, plan)
}

func (s *PostgresService) loadPlanLimits(ctx context.Context, plan PlanTier) (PlanLimits, error) {
	limits := PlanLimits{Plan: plan}
	err := s.db.QueryRowContext(ctx, `
		SELECT max_users, max_risks, max_frameworks, max_storage_items
		FROM plan_limits WHERE plan = $1`, plan,
	).Scan(&limits.MaxUsers, &limits.MaxRisks, &limits.MaxFrameworks, &limits.MaxStorageItems)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPlanLimits(plan), nil
	}
	if err != nil {
		return PlanLimits{}, fmt.Errorf("failed to get plan limits: %w", err)
	}
	return limits, nil
}

func (s *PostgresService) orgPlan(ctx context.Context, orgID string) (PlanTier, error) {
	var plan PlanTier
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM organizations WHERE id = $1`, orgID).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NoOrganization()
	}
	if err != nil {
		return "", fmt.Errorf("failed to get organization plan: %w", err)
	}
	return plan, nil
}

// QuotaStatus evaluates one resource class without enforcing it
func (s *PostgresService) QuotaStatus(ctx context.Context, orgID string, class ResourceClass) (*QuotaStatus, error) {
	plan, err := s.orgPlan(ctx, orgID)
	if err != nil {
		return nil, err
	}
	limits, err := s.PlanLimits(ctx, plan)
	if err != nil {
		return nil, err
	}
	current, err := s.countUsage(ctx, orgID, class)
	if err != nil {
		return nil, err
	}

	limit := limits.Limit(class)
	return &QuotaStatus{
		Resource: class,
		Plan:     plan,
		Current:  current,
		Limit:    limit,
		Allowed:  current < limit,
	}, nil
}

// CheckQuota returns a *QuotaExceededError when creating one more item of
// class would exceed the organization's plan
func (s *PostgresService) CheckQuota(ctx context.Context, orgID string, class ResourceClass) error {
	ctx, span := tracer.Start(ctx, "orgs.CheckQuota")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("quota.resource", string(class)))

	status, err := s.QuotaStatus(ctx, orgID, class)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quota lookup failed")
		return err
	}
	span.SetAttributes(
		attribute.String("quota.plan", string(status.Plan)),
		attribute.Int64("quota.current", status.Current),
		attribute.Int64("quota.limit", status.Limit),
		attribute.Bool("quota.allowed", status.Allowed),
	)
	if !status.Allowed {
		return &QuotaExceededError{
			Plan:     status.Plan,
			Resource: class,
			Current:  status.Current,
			Limit:    status.Limit,
		}
	}
	return nil
}

// GetUsage computes every counter for orgID concurrently
func (s *PostgresService) GetUsage(ctx context.Context, orgID string) (*Usage, error) {
	usage := &Usage{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		usage.Users, err = s.countUsage(gctx, orgID, ResourceUsers)
		return err
	})
	g.Go(func() (err error) {
		usage.Risks, err = s.countUsage(gctx, orgID, ResourceRisks)
		return err
	})
	g.Go(func() (err error) {
		usage.Frameworks, err = s.countUsage(gctx, orgID, ResourceFrameworks)
		return err
	})
	g.Go(func() (err error) {
		usage.StorageItems, err = s.countStorageItems(gctx, orgID)
		return err
	})
	g.Go(func() (err error) {
		usage.StorageBytes, err = s.sumStorageBytes(gctx, orgID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return usage, nil
}

func (s *PostgresService) countUsage(ctx context.Context, orgID string, class ResourceClass) (int64, error) {
	var query string
	switch class {
	case ResourceUsers:
		query = `SELECT COUNT(*) FROM profiles WHERE org_id = $1`
	case ResourceRisks:
		query = `SELECT COUNT(*) FROM risks WHERE org_id = $1`
	case ResourceFrameworks:
		query = `SELECT COUNT(*) FROM frameworks WHERE org_id = $1`
	case ResourceStorageItems:
		return s.countStorageItems(ctx, orgID)
	default:
		return 0, apperr.BadRequest(fmt.Sprintf("unknown resource %q", class))
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", class, err)
	}
	return n, nil
}

// countStorageItems is the single storage counting rule: policy files under
// the organization's path prefix plus evidence rows stamped with the org id.
func (s *PostgresService) countStorageItems(ctx context.Context, orgID string) (int64, error) {
	var policies, evidence int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM policy_files WHERE storage_path LIKE $1 ESCAPE '\'`,
		orgPathPattern(orgID),
	).Scan(&policies); err != nil {
		return 0, fmt.Errorf("failed to count policy files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM control_evidences WHERE org_id = $1`, orgID,
	).Scan(&evidence); err != nil {
		return 0, fmt.Errorf("failed to count evidence: %w", err)
	}
	return policies + evidence, nil
}

func (s *PostgresService) sumStorageBytes(ctx context.Context, orgID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(file_size) FROM policy_files WHERE storage_path LIKE $1 ESCAPE '\'), 0) +
			COALESCE((SELECT SUM(file_size) FROM control_evidences WHERE org_id = $2), 0)`,
		orgPathPattern(orgID), orgID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum storage bytes: %w", err)
	}
	return total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// orgPathPattern is the LIKE pattern matching every object under the
// organization's storage prefix
func orgPathPattern(orgID string) string {
	return "org/" + likeEscaper.Replace(orgID) + "/%"
}
