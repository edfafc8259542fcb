package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InviteLog records invitations in user_invite_logs
type InviteLog interface {
	RecordInvite(ctx context.Context, invite *Invite) error
	MarkAccepted(ctx context.Context, orgID, userID string) (*Invite, error)
}

// DBInviteLog implements InviteLog using PostgreSQL
type DBInviteLog struct {
	db *sql.DB
}

// NewDBInviteLog creates a new DBInviteLog
func NewDBInviteLog(db *sql.DB) *DBInviteLog {
	return &DBInviteLog{db: db}
}

var _ InviteLog = (*DBInviteLog)(nil)

// RecordInvite appends an invite row
func (l *DBInviteLog) RecordInvite(ctx context.Context, invite *Invite) error {
	query := `
		INSERT INTO user_invite_logs (org_id, invited_by, invited_user_id, email, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := l.db.QueryRowContext(ctx, query,
		invite.OrgID, invite.InvitedBy, invite.InvitedUserID, invite.Email, invite.Role,
	).Scan(&invite.ID, &invite.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record invite: %w", err)
	}
	return nil
}

// MarkAccepted stamps accepted_at on the newest open invite of userID into
// orgID. It returns nil when there is no open invite.
func (l *DBInviteLog) MarkAccepted(ctx context.Context, orgID, userID string) (*Invite, error) {
	query := `
		UPDATE user_invite_logs SET accepted_at = now()
		WHERE id = (
			SELECT id FROM user_invite_logs
			WHERE org_id = $1 AND invited_user_id = $2 AND accepted_at IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, org_id, invited_by, invited_user_id, email, role, created_at, accepted_at`
	inv := &Invite{}
	err := l.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&inv.ID, &inv.OrgID, &inv.InvitedBy, &inv.InvitedUserID, &inv.Email, &inv.Role,
		&inv.CreatedAt, &inv.AcceptedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark invite accepted: %w", err)
	}
	return inv, nil
}
