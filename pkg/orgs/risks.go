package orgs

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

// CreateRisk inserts a risk register entry after enforcing the risks quota
func (s *PostgresService) CreateRisk(ctx context.Context, orgID, actorID string, risk *Risk) error {
	if strings.TrimSpace(risk.Title) == "" {
		return apperr.BadRequest("title is required")
	}
	if err := s.CheckQuota(ctx, orgID, ResourceRisks); err != nil {
		return err
	}

	if risk.Status == "" {
		risk.Status = "open"
	}
	risk.OrgID = orgID
	risk.CreatedBy = actorID

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO risks (org_id, title, description, category, likelihood, impact, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		risk.OrgID, risk.Title, risk.Description, risk.Category,
		risk.Likelihood, risk.Impact, risk.Status, risk.CreatedBy,
	).Scan(&risk.ID, &risk.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create risk: %w", err)
	}
	return nil
}
