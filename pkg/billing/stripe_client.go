package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

// Processor is the outbound payment processor API
type Processor interface {
	CreateCustomer(ctx context.Context, orgID, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)
}

// CheckoutParams describes a subscription checkout for one organization
type CheckoutParams struct {
	OrgID      string
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Session is a hosted checkout or portal session
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// StripeClient calls the Stripe REST API with form-encoded bodies
type StripeClient struct {
	client    *resty.Client
	secretKey string
}

var _ Processor = (*StripeClient)(nil)

// NewStripeClient creates a client for baseURL. An empty secretKey is
// accepted; every call then fails as misconfigured.
func NewStripeClient(baseURL, secretKey string) *StripeClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(20 * time.Second).
		SetHeader("Accept", "application/json")
	return &StripeClient{client: client, secretKey: secretKey}
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) post(ctx context.Context, path string, form map[string]string, result interface{}) error {
	if c.secretKey == "" {
		return apperr.Misconfigured("STRIPE_SECRET_KEY")
	}

	var apiErr stripeError
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.secretKey).
		SetFormData(form).
		SetResult(result).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return apperr.Upstream("payment processor", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode())
		}
		return apperr.Upstream("payment processor", errors.New(msg))
	}
	return nil
}

// CreateCustomer creates a customer tagged with the organization id
func (c *StripeClient) CreateCustomer(ctx context.Context, orgID, email, name string) (string, error) {
	form := map[string]string{"metadata[org_id]": orgID}
	if email != "" {
		form["email"] = email
	}
	if name != "" {
		form["name"] = name
	}

	var customer struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/customers", form, &customer); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a subscription checkout. The organization id
// is attached both as the client reference and as subscription metadata so
// later subscription events can be attributed.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	form := map[string]string{
		"mode":                                "subscription",
		"customer":                            p.CustomerID,
		"client_reference_id":                 p.OrgID,
		"line_items[0][price]":                p.PriceID,
		"line_items[0][quantity]":             "1",
		"success_url":                         p.SuccessURL,
		"cancel_url":                          p.CancelURL,
		"metadata[org_id]":                    p.OrgID,
		"subscription_data[metadata][org_id]": p.OrgID,
	}
	var session Session
	if err := c.post(ctx, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreatePortalSession opens the billing portal for customerID
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	form := map[string]string{
		"customer":   customerID,
		"return_url": returnURL,
	}
	var session Session
	if err := c.post(ctx, "/v1/billing_portal/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
