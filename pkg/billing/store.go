package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

// ErrUnknownOrganization is returned when an event names an organization
// that does not exist
var ErrUnknownOrganization = errors.New("organization not found")

// Store persists organization billing fields
type Store interface {
	ApplySubscription(ctx context.Context, orgID string, update SubscriptionUpdate) error
	AttachCheckout(ctx context.Context, orgID, customerID, subscriptionID string) error
	SetCustomerID(ctx context.Context, orgID, customerID string) (string, error)
	CustomerID(ctx context.Context, orgID string) (string, error)
}

// PostgresStore implements Store on the organizations table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func affectedOrUnknown(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUnknownOrganization
	}
	return nil
}

// ApplySubscription overwrites the subscription fields with the latest known
// state. canceled_at is kept once set while canceled and cleared otherwise.
func (s *PostgresStore) ApplySubscription(ctx context.Context, orgID string, u SubscriptionUpdate) error {
	var plan *string
	if u.Plan != nil {
		p := string(*u.Plan)
		plan = &p
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET
			stripe_subscription_id = $2,
			stripe_customer_id = COALESCE(NULLIF($3, ''), stripe_customer_id),
			stripe_price_id = COALESCE(NULLIF($4, ''), stripe_price_id),
			plan = COALESCE($5, plan),
			plan_status = $6::text,
			current_period_end = $7,
			canceled_at = CASE WHEN $6::text = 'canceled' THEN COALESCE(canceled_at, $8) ELSE NULL END,
			updated_at = now()
		WHERE id = $1`,
		orgID, u.SubscriptionID, u.CustomerID, u.PriceID, plan, string(u.Status), u.CurrentPeriodEnd, u.CanceledAt)
	if err != nil {
		return fmt.Errorf("failed to apply subscription: %w", err)
	}
	return affectedOrUnknown(result)
}

// AttachCheckout records the customer and subscription created by checkout
func (s *PostgresStore) AttachCheckout(ctx context.Context, orgID, customerID, subscriptionID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET
			stripe_customer_id = COALESCE(NULLIF($2, ''), stripe_customer_id),
			stripe_subscription_id = COALESCE(NULLIF($3, ''), stripe_subscription_id),
			updated_at = now()
		WHERE id = $1`, orgID, customerID, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to attach checkout: %w", err)
	}
	return affectedOrUnknown(result)
}

// SetCustomerID stores customerID unless the organization already has one,
// and returns the id that is now stored
func (s *PostgresStore) SetCustomerID(ctx context.Context, orgID, customerID string) (string, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, `
		UPDATE organizations SET stripe_customer_id = COALESCE(stripe_customer_id, $2), updated_at = now()
		WHERE id = $1
		RETURNING stripe_customer_id`, orgID, customerID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NoOrganization()
	}
	if err != nil {
		return "", fmt.Errorf("failed to set customer id: %w", err)
	}
	return stored, nil
}

// CustomerID returns the organization's customer id, or "" when none is set
func (s *PostgresStore) CustomerID(ctx context.Context, orgID string) (string, error) {
	var id sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT stripe_customer_id FROM organizations WHERE id = $1`, orgID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NoOrganization()
	}
	if err != nil {
		return "", fmt.Errorf("failed to get customer id: %w", err)
	}
	return id.String, nil
}
