package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
)

// RoleOf reads the caller's role in orgID. Roles are never cached; a user
// without a profile in the organization is a viewer.
func (s *PostgresService) RoleOf(ctx context.Context, userID, orgID string) (auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM profiles WHERE id = $1 AND org_id = $2`, userID, orgID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RoleViewer, nil
	}
	if err != nil {
		return auth.RoleViewer, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// RequireRole returns the caller's role, or Forbidden when it ranks below min
func (s *PostgresService) RequireRole(ctx context.Context, userID, orgID string, min auth.Role) (auth.Role, error) {
	role, err := s.RoleOf(ctx, userID, orgID)
	if err != nil {
		return role, err
	}
	if !role.AtLeast(min) {
		return role, apperr.Forbidden(fmt.Sprintf("%s role required", min))
	}
	return role, nil
}
