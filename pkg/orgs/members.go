package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
)

// AddMember binds an identity to orgID with role. A profile bound to another
// organization is never touched, even if it becomes bound between the read
// and the write.
func (s *PostgresService) AddMember(ctx context.Context, orgID string, member MemberIdentity, role auth.Role) (*Profile, error) {
	existing, err := s.GetProfile(ctx, member.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.OrgID != nil && *existing.OrgID != orgID {
		return nil, apperr.ConflictOtherOrg(member.Email)
	}
	if existing != nil && existing.InOrg(orgID) && role != auth.RoleAdmin {
		org, err := s.GetOrganization(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if org.IsOwner(member.UserID) {
			return nil, apperr.Forbidden("cannot demote the organization owner")
		}
	}

	query := `
		INSERT INTO profiles (id, org_id, role, email, full_name)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE
		SET org_id = EXCLUDED.org_id,
		    role = EXCLUDED.role,
		    email = COALESCE(EXCLUDED.email, profiles.email),
		    full_name = COALESCE(profiles.full_name, EXCLUDED.full_name),
		    updated_at = now()
		WHERE profiles.org_id IS NULL OR profiles.org_id = EXCLUDED.org_id
		RETURNING ` + profileColumns
	p, err := scanProfile(s.db.QueryRowContext(ctx, query,
		member.UserID, orgID, role, member.Email, member.FullName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ConflictOtherOrg(member.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert member profile: %w", err)
	}
	return p, nil
}

// AddAdmin promotes an existing member of orgID to admin
func (s *PostgresService) AddAdmin(ctx context.Context, orgID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET role = $3, updated_at = now()
		WHERE id = $1 AND org_id = $2`, userID, orgID, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to promote admin: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("user is not a member of this organization")
	}
	return nil
}

// RemoveAdmin demotes an admin of orgID to fallback. The owner is excluded in
// the UPDATE itself so a concurrent ownership transfer cannot be undone.
func (s *PostgresService) RemoveAdmin(ctx context.Context, orgID, userID string, fallback auth.Role) error {
	if fallback != auth.RoleViewer && fallback != auth.RoleManager {
		return apperr.BadRequest("fallback_role must be viewer or manager")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET role = $3, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND role = 'admin'
		  AND NOT EXISTS (
		    SELECT 1 FROM organizations o WHERE o.id = $2 AND o.owner_id = profiles.id
		  )`, userID, orgID, fallback)
	if err != nil {
		return fmt.Errorf("failed to demote admin: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if org.IsOwner(userID) {
		return apperr.Forbidden("cannot demote the organization owner")
	}
	return apperr.NotFound("user is not an admin of this organization")
}

// TransferOwnership moves ownership of orgID to newOwnerID, who must already
// be an admin of the organization.
func (s *PostgresService) TransferOwnership(ctx context.Context, orgID, currentOwnerID, newOwnerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET owner_id = $2, updated_at = now()
		WHERE id = $1 AND (owner_id = $3 OR owner_id IS NULL)
		  AND EXISTS (
		    SELECT 1 FROM profiles p WHERE p.id = $2 AND p.org_id = $1 AND p.role = 'admin'
		  )`, orgID, newOwnerID, currentOwnerID)
	if err != nil {
		return fmt.Errorf("failed to transfer ownership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.Forbidden("only the owner can transfer ownership to an admin of this organization")
	}
	return nil
}

// RemoveMember deletes userID's profile from orgID. A missing profile is
// reported as MemberAlreadyGone so callers can treat retries as success.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID string) (RemoveResult, error) {
	var removed string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM profiles
		WHERE id = $1 AND org_id = $2
		  AND NOT EXISTS (
		    SELECT 1 FROM organizations o WHERE o.id = $2 AND o.owner_id = profiles.id
		  )
		RETURNING id`, userID, orgID).Scan(&removed)
	if err == nil {
		return MemberRemoved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to remove member: %w", err)
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		return MemberAlreadyGone, nil
	}
	if profile.InOrg(orgID) {
		return 0, apperr.Forbidden("cannot remove the organization owner")
	}
	return 0, apperr.Forbidden("user is not a member of this organization")
}
