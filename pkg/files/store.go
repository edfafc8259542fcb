package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// ControlInOrg reports whether the control belongs to orgID
func (s *PostgresStore) ControlInOrg(ctx context.Context, controlID, orgID string) (bool, error) {
	ok, err := s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM controls WHERE id = $1 AND org_id = $2)`, controlID, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to check control: %w", err)
	}
	return ok, nil
}

// PolicyInOrg reports whether the policy belongs to orgID
func (s *PostgresStore) PolicyInOrg(ctx context.Context, policyID, orgID string) (bool, error) {
	ok, err := s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM policies WHERE id = $1 AND org_id = $2)`, policyID, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to check policy: %w", err)
	}
	return ok, nil
}

// InsertEvidence records an uploaded evidence file
func (s *PostgresStore) InsertEvidence(ctx context.Context, e *Evidence) error {
	query := `
		INSERT INTO control_evidences
			(org_id, control_id, file_name, storage_path, file_size, content_type, uploaded_by, review_status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		e.OrgID, e.ControlID, e.FileName, e.StoragePath, e.FileSize, e.ContentType,
		e.UploadedBy, e.ReviewStatus, e.ExpiresAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert evidence: %w", err)
	}
	return nil
}

// GetEvidence returns the evidence row and the organization of its control
func (s *PostgresStore) GetEvidence(ctx context.Context, id string) (*Evidence, string, error) {
	query := `
		SELECT e.id, e.org_id, e.control_id, e.file_name, e.storage_path, e.file_size,
		       e.content_type, e.uploaded_by, e.review_status, e.expires_at, e.created_at, c.org_id
		FROM control_evidences e
		JOIN controls c ON c.id = e.control_id
		WHERE e.id = $1`
	e := &Evidence{}
	var controlOrg string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.OrgID, &e.ControlID, &e.FileName, &e.StoragePath, &e.FileSize,
		&e.ContentType, &e.UploadedBy, &e.ReviewStatus, &e.ExpiresAt, &e.CreatedAt, &controlOrg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", apperr.NotFound("evidence not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get evidence: %w", err)
	}
	return e, controlOrg, nil
}

// DeleteEvidence deletes an evidence row whose row and control both belong to orgID
func (s *PostgresStore) DeleteEvidence(ctx context.Context, orgID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM control_evidences e
		USING controls c
		WHERE e.id = $1 AND e.org_id = $2 AND c.id = e.control_id AND c.org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("evidence not found")
	}
	return nil
}

// InsertPolicyFile records an uploaded policy document
func (s *PostgresStore) InsertPolicyFile(ctx context.Context, f *PolicyFile) error {
	query := `
		INSERT INTO policy_files
			(policy_id, file_name, storage_path, file_size, content_type, version, uploaded_by, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		f.PolicyID, f.FileName, f.StoragePath, f.FileSize, f.ContentType, f.Version,
		f.UploadedBy, f.Status, f.ExpiresAt,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert policy file: %w", err)
	}
	return nil
}

// GetPolicyFile returns the policy file row and the organization of its policy
func (s *PostgresStore) GetPolicyFile(ctx context.Context, id string) (*PolicyFile, string, error) {
	query := `
		SELECT f.id, f.policy_id, f.file_name, f.storage_path, f.file_size, f.content_type,
		       COALESCE(f.version, ''), f.uploaded_by, f.status, f.expires_at, f.created_at, p.org_id
		FROM policy_files f
		JOIN policies p ON p.id = f.policy_id
		WHERE f.id = $1`
	f := &PolicyFile{}
	var policyOrg string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.PolicyID, &f.FileName, &f.StoragePath, &f.FileSize, &f.ContentType,
		&f.Version, &f.UploadedBy, &f.Status, &f.ExpiresAt, &f.CreatedAt, &policyOrg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", apperr.NotFound("policy file not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get policy file: %w", err)
	}
	return f, policyOrg, nil
}

// DeletePolicyFile deletes a policy file whose policy belongs to orgID and
// whose path lies under the organization's prefix
func (s *PostgresStore) DeletePolicyFile(ctx context.Context, orgID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM policy_files f
		USING policies p
		WHERE f.id = $1 AND p.id = f.policy_id AND p.org_id = $2
		  AND left(f.storage_path, length($3::text)) = $3::text`, id, orgID, OrgPrefix(orgID))
	if err != nil {
		return fmt.Errorf("failed to delete policy file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("policy file not found")
	}
	return nil
}
