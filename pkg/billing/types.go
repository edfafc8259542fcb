package billing

import (
	"encoding/json"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// Webhook event types handled by the synchronizer
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventCheckoutCompleted   = "checkout.session.completed"
)

// Event is the webhook envelope
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Subscription is the subset of the processor's subscription object we read
type Subscription struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	CanceledAt       *int64            `json:"canceled_at"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID returns the first item's price id
func (s *Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// PeriodEnd returns the current period end, falling back to the first item
func (s *Subscription) PeriodEnd() int64 {
	if s.CurrentPeriodEnd != 0 {
		return s.CurrentPeriodEnd
	}
	if len(s.Items.Data) > 0 {
		return s.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

// CheckoutSession is the subset of the processor's checkout session we read
type CheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// SubscriptionUpdate is the latest known subscription state for an organization
type SubscriptionUpdate struct {
	SubscriptionID   string
	CustomerID       string
	PriceID          string
	// Plan is nil when the price is unknown and the plan must not change
	Plan             *orgs.PlanTier
	Status           orgs.PlanStatus
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
}

// Outcome describes what a webhook delivery did
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnattributed Outcome = "unattributed"
	OutcomeUnknownOrg   Outcome = "unknown_org"
)

// WebhookResult is returned for an accepted delivery
type WebhookResult struct {
	EventID string  `json:"event_id"`
	Type    string  `json:"type"`
	OrgID   string  `json:"org_id,omitempty"`
	Outcome Outcome `json:"outcome"`
}
