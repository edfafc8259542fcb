package billing

import (
	"context"
	"strings"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// StartCheckout creates a subscription checkout for org on plan, creating
// the processor customer on first use
func (s *Service) StartCheckout(ctx context.Context, org *orgs.Organization, email string, plan orgs.PlanTier) (*Session, error) {
	if plan != orgs.PlanPro && plan != orgs.PlanEnterprise {
		return nil, apperr.BadRequest("plan must be pro or enterprise")
	}
	priceID, ok := s.prices.PriceFor(plan)
	if !ok {
		return nil, apperr.Newf(apperr.KindMisconfigured, "no price configured for plan %s", plan)
	}

	customerID, err := s.ensureCustomer(ctx, org, email)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(s.cfg.AppURL, "/")
	return s.processor.CreateCheckoutSession(ctx, CheckoutParams{
		OrgID:      org.ID,
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: base + "/settings/billing?checkout=success",
		CancelURL:  base + "/settings/billing?checkout=canceled",
	})
}

// OpenPortal creates a billing portal session for org's customer
func (s *Service) OpenPortal(ctx context.Context, org *orgs.Organization) (*Session, error) {
	customerID, err := s.store.CustomerID(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, apperr.BadRequest("organization has no billing account yet")
	}
	return s.processor.CreatePortalSession(ctx, customerID, strings.TrimRight(s.cfg.AppURL, "/")+"/settings/billing")
}

func (s *Service) ensureCustomer(ctx context.Context, org *orgs.Organization, email string) (string, error) {
	if org.StripeCustomerID != nil && *org.StripeCustomerID != "" {
		return *org.StripeCustomerID, nil
	}
	created, err := s.processor.CreateCustomer(ctx, org.ID, email, org.Name)
	if err != nil {
		return "", err
	}
	// A concurrent checkout may have stored a customer first; use whichever won.
	return s.store.SetCustomerID(ctx, org.ID, created)
}
