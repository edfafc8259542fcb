package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/contextkeys"
	"github.com/platinummonkey/grc-gateway/pkg/httputil"
	"github.com/platinummonkey/grc-gateway/pkg/middleware"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// Caller is the authenticated actor together with the organization and
// role derived for this request
type Caller struct {
	Auth         *auth.AuthContext
	OrgID        string
	Organization *orgs.Organization
	Role         auth.Role
}

// UserID returns the caller's identity id
func (c *Caller) UserID() string { return c.Auth.UserID }

// handlerBase carries what every gateway handler needs to admit a caller,
// report the outcome and record an audit event
type handlerBase struct {
	orgs    orgs.Service
	audit   audit.Logger
	metrics *observability.Metrics
}

func actorOf(a *auth.AuthContext) orgs.Actor {
	return orgs.Actor{UserID: a.UserID, Email: a.Email, DisplayName: a.DisplayName()}
}

// admit resolves the caller's organization without creating one and
// requires at least min. The role is read from the database on every call.
func (h *handlerBase) admit(r *http.Request, min auth.Role) (*Caller, error) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		return nil, apperr.Unauthorized("authentication required")
	}

	ctx := r.Context()
	res, err := h.orgs.ResolveOrganization(ctx, actorOf(authCtx), orgs.ResolveOptions{})
	if err != nil {
		return nil, err
	}
	contextkeys.SetOrgID(ctx, res.OrgID)
	role, err := h.orgs.RequireRole(ctx, authCtx.UserID, res.OrgID, min)
	if err != nil {
		return nil, err
	}
	return &Caller{Auth: authCtx, OrgID: res.OrgID, Organization: res.Organization, Role: role}, nil
}

// succeed counts the operation and writes the success payload
func (h *handlerBase) succeed(w http.ResponseWriter, op string, payload map[string]interface{}) {
	h.metrics.ObserveOperation(op, "ok")
	_ = httputil.WriteSuccess(w, payload)
}

// fail counts the operation by error kind and writes the error response
func (h *handlerBase) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.metrics.ObserveOperation(op, outcomeOf(err))
	var qe *orgs.QuotaExceededError
	if errors.As(err, &qe) {
		h.metrics.ObserveQuotaDenial(string(qe.Resource), string(qe.Plan))
	}
	httputil.WriteAppError(w, r, err)
}

// record writes an audit event. The mutation has already happened, so a
// failure is logged rather than returned to the caller.
func (h *handlerBase) record(ctx context.Context, event *audit.Event) {
	if err := h.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("action", string(event.Action)).
			Error("failed to record audit event")
	}
}

func outcomeOf(err error) string {
	return apperr.KindOf(err).String()
}
