package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/billing"
	"github.com/platinummonkey/grc-gateway/pkg/httputil"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

const (
	opBillingCheckout = "billing_checkout"
	opBillingPortal   = "billing_portal"
	opStripeWebhook   = "stripe_webhook"
)

// maxWebhookBytes bounds a webhook delivery body
const maxWebhookBytes = 1 << 20

// BillingHandlers handles checkout, portal and webhook requests
type BillingHandlers struct {
	handlerBase
	billing BillingService
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(base handlerBase, billingService BillingService) *BillingHandlers {
	return &BillingHandlers{handlerBase: base, billing: billingService}
}

// RegisterRoutes registers the caller-facing billing routes on an
// authenticated router
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/billing-checkout", h.Checkout).Methods(http.MethodPost)
	router.HandleFunc("/billing-portal", h.Portal).Methods(http.MethodPost)
}

// RegisterWebhookRoute registers the webhook on a router without
// authentication; deliveries are verified by signature
func (h *BillingHandlers) RegisterWebhookRoute(router *mux.Router) {
	router.HandleFunc("/stripe-webhook", h.Webhook).Methods(http.MethodPost)
}

// Checkout starts a subscription checkout for the caller's organization
func (h *BillingHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleAdmin)
	if err != nil {
		h.fail(w, r, opBillingCheckout, err)
		return
	}

	var req CheckoutRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opBillingCheckout, err)
		return
	}

	ctx := r.Context()
	plan := orgs.PlanTier(req.Plan)
	session, err := h.billing.StartCheckout(ctx, caller.Organization, caller.Auth.Email, plan)
	if err != nil {
		h.fail(w, r, opBillingCheckout, err)
		return
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionBillingCheckout, audit.EntitySubscription, session.ID).
		WithDetail("plan", req.Plan))

	h.succeed(w, opBillingCheckout, map[string]interface{}{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

// Portal opens the billing portal for the caller's organization
func (h *BillingHandlers) Portal(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleAdmin)
	if err != nil {
		h.fail(w, r, opBillingPortal, err)
		return
	}

	ctx := r.Context()
	session, err := h.billing.OpenPortal(ctx, caller.Organization)
	if err != nil {
		h.fail(w, r, opBillingPortal, err)
		return
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionBillingPortal, audit.EntitySubscription, session.ID))

	h.succeed(w, opBillingPortal, map[string]interface{}{"url": session.URL})
}

// Webhook applies a payment processor event. The raw body is handed to the
// billing service unparsed so the signature covers exactly what was sent.
func (h *BillingHandlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.fail(w, r, opStripeWebhook, apperr.BadRequest("failed to read request body"))
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get(billing.SignatureHeader))
	if err != nil {
		h.fail(w, r, opStripeWebhook, err)
		return
	}

	h.succeed(w, opStripeWebhook, map[string]interface{}{
		"received": true,
		"event_id": result.EventID,
		"outcome":  result.Outcome,
	})
}
