package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// Config holds the synchronizer's settings
type Config struct {
	WebhookSecret string
	// Tolerance bounds signature age; 0 disables the check
	Tolerance time.Duration
	// AppURL is where checkout and portal sessions return to
	AppURL string
}

// Service synchronizes organization billing state with the payment processor
type Service struct {
	store     Store
	processor Processor
	prices    *PriceTable
	cfg       Config
	audit     audit.Logger
	metrics   *observability.Metrics
	logger    *observability.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithAudit records applied billing changes
func WithAudit(logger audit.Logger) Option {
	return func(s *Service) { s.audit = logger }
}

// WithMetrics counts webhook deliveries by type and outcome
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the clock used for signature tolerance
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a billing service
func NewService(store Store, processor Processor, prices *PriceTable, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:     store,
		processor: processor,
		prices:    prices,
		cfg:       cfg,
		audit:     audit.NoOp(),
		logger:    observability.GetLogger(context.Background()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleWebhook verifies and applies one webhook delivery. The signature is
// checked against the raw payload before it is parsed and before any store
// access. Unknown event types and events that cannot be attributed to an
// organization are accepted and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	if err := VerifySignature(payload, signatureHeader, s.cfg.WebhookSecret, s.cfg.Tolerance, s.now()); err != nil {
		s.metrics.ObserveWebhook("unverified", "rejected")
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		s.metrics.ObserveWebhook("unparsed", "rejected")
		return nil, apperr.BadRequest("invalid event payload")
	}

	var (
		result *WebhookResult
		err    error
	)
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		result, err = s.handleSubscription(ctx, &event)
	case EventCheckoutCompleted:
		result, err = s.handleCheckout(ctx, &event)
	default:
		result = &WebhookResult{Outcome: OutcomeIgnored}
	}
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, "error")
		return nil, err
	}

	result.EventID = event.ID
	result.Type = event.Type
	s.metrics.ObserveWebhook(event.Type, string(result.Outcome))

	log := s.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"org_id":     result.OrgID,
		"outcome":    string(result.Outcome),
	})
	if result.Outcome == OutcomeApplied {
		log.Info("billing event applied")
		s.recordAudit(ctx, &event, result)
	} else {
		log.Debug("billing event not applied")
	}
	return result, nil
}

func (s *Service) handleSubscription(ctx context.Context, event *Event) (*WebhookResult, error) {
	var sub Subscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, apperr.BadRequest("invalid subscription object")
	}

	orgID := sub.Metadata["org_id"]
	if !validOrgID(orgID) {
		return &WebhookResult{Outcome: OutcomeUnattributed}, nil
	}

	status := mapStatus(sub.Status)
	if event.Type == EventSubscriptionDeleted {
		status = orgs.PlanStatusCanceled
	}

	update := SubscriptionUpdate{
		SubscriptionID: sub.ID,
		CustomerID:     sub.Customer,
		PriceID:        sub.PriceID(),
		Status:         status,
	}
	if plan, ok := s.prices.PlanFor(update.PriceID); ok {
		update.Plan = &plan
	}
	if end := sub.PeriodEnd(); end > 0 {
		t := time.Unix(end, 0).UTC()
		update.CurrentPeriodEnd = &t
	}
	if status == orgs.PlanStatusCanceled {
		free := orgs.PlanFree
		update.Plan = &free
		canceled := event.Created
		if sub.CanceledAt != nil && *sub.CanceledAt > 0 {
			canceled = *sub.CanceledAt
		}
		t := time.Unix(canceled, 0).UTC()
		update.CanceledAt = &t
	}

	if err := s.store.ApplySubscription(ctx, orgID, update); err != nil {
		if errors.Is(err, ErrUnknownOrganization) {
			return &WebhookResult{OrgID: orgID, Outcome: OutcomeUnknownOrg}, nil
		}
		return nil, err
	}
	return &WebhookResult{OrgID: orgID, Outcome: OutcomeApplied}, nil
}

func (s *Service) handleCheckout(ctx context.Context, event *Event) (*WebhookResult, error) {
	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, apperr.BadRequest("invalid checkout session object")
	}

	orgID := session.ClientReferenceID
	if orgID == "" {
		orgID = session.Metadata["org_id"]
	}
	if !validOrgID(orgID) {
		return &WebhookResult{Outcome: OutcomeUnattributed}, nil
	}

	if err := s.store.AttachCheckout(ctx, orgID, session.Customer, session.Subscription); err != nil {
		if errors.Is(err, ErrUnknownOrganization) {
			return &WebhookResult{OrgID: orgID, Outcome: OutcomeUnknownOrg}, nil
		}
		return nil, err
	}
	return &WebhookResult{OrgID: orgID, Outcome: OutcomeApplied}, nil
}

func (s *Service) recordAudit(ctx context.Context, event *Event, result *WebhookResult) {
	ev := audit.NewEvent(ctx, result.OrgID, "", audit.ActionSubscriptionChange, audit.EntitySubscription, event.ID).
		WithDetail("event_type", event.Type)
	if err := s.audit.Log(ctx, ev); err != nil {
		s.logger.WithError(err).Warn("failed to record billing audit event")
	}
}

// validOrgID rejects identifiers that cannot name an organization row
func validOrgID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// mapStatus folds processor subscription states onto PlanStatus
func mapStatus(status string) orgs.PlanStatus {
	switch status {
	case "trialing":
		return orgs.PlanStatusTrialing
	case "active":
		return orgs.PlanStatusActive
	case "past_due", "paused":
		return orgs.PlanStatusPastDue
	case "canceled", "incomplete_expired":
		return orgs.PlanStatusCanceled
	case "incomplete":
		return orgs.PlanStatusIncomplete
	case "unpaid":
		return orgs.PlanStatusUnpaid
	}
	return orgs.PlanStatusNone
}
