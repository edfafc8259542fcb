package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/httputil"
	"github.com/platinummonkey/grc-gateway/pkg/middleware"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// Operation names used for metrics and logs
const (
	opBootstrap         = "bootstrap_org"
	opAdminAssociations = "org_admin_associations"
	opCheckQuota        = "check_quota"
	opUsage             = "usage"
	opCreateRisk        = "create_risk"
)

// default likelihood and impact for a risk scored on a 1-5 scale
const defaultRiskScore = 3

// OrgHandlers handles organization bootstrap, admin management, quota and
// risk requests
type OrgHandlers struct {
	handlerBase
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(base handlerBase) *OrgHandlers {
	return &OrgHandlers{handlerBase: base}
}

// RegisterRoutes registers organization routes on an authenticated router
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bootstrap-org", h.BootstrapOrg).Methods(http.MethodPost)
	router.HandleFunc("/org-admin-associations", h.AdminAssociations).Methods(http.MethodPost)
	router.HandleFunc("/check-quota", h.CheckQuota).Methods(http.MethodPost)
	router.HandleFunc("/usage", h.Usage).Methods(http.MethodPost)
	router.HandleFunc("/create-risk", h.CreateRisk).Methods(http.MethodPost)
}

// BootstrapOrg returns the caller's organization, creating it when the
// caller has none. Repeated calls return the same organization.
func (h *OrgHandlers) BootstrapOrg(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		h.fail(w, r, opBootstrap, apperr.Unauthorized("authentication required"))
		return
	}

	var req BootstrapRequest
	if err := decodeOptional(r, &req); err != nil {
		h.fail(w, r, opBootstrap, err)
		return
	}

	res, err := h.orgs.ResolveOrganization(r.Context(), actorOf(authCtx), orgs.ResolveOptions{
		Create:  true,
		OrgName: req.OrgName,
	})
	if err != nil {
		h.fail(w, r, opBootstrap, err)
		return
	}

	if res.Created {
		h.record(r.Context(), audit.NewEvent(r.Context(), res.OrgID, authCtx.UserID,
			audit.ActionOrgBootstrap, audit.EntityOrganization, res.OrgID).
			WithDetail("name", res.Organization.Name))
	}

	h.succeed(w, opBootstrap, map[string]interface{}{
		"organization": res.Organization,
		"profile":      res.Profile,
		"created":      res.Created,
	})
}

// AdminAssociations adds or removes admins and transfers ownership
func (h *OrgHandlers) AdminAssociations(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleAdmin)
	if err != nil {
		h.fail(w, r, opAdminAssociations, err)
		return
	}

	var req AdminAssociationRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opAdminAssociations, err)
		return
	}

	ctx := r.Context()
	var action audit.Action
	details := map[string]interface{}{}
	switch req.Action {
	case ActionAddAdmin:
		action = audit.ActionAdminAdd
		err = h.orgs.AddAdmin(ctx, caller.OrgID, req.UserID)
	case ActionRemoveAdmin:
		action = audit.ActionAdminRemove
		fallback := auth.ParseRole(req.FallbackRole)
		details["fallback_role"] = fallback.String()
		err = h.orgs.RemoveAdmin(ctx, caller.OrgID, req.UserID, fallback)
	case ActionTransferOwnership:
		// The predicate on the current owner makes this owner-only.
		action = audit.ActionOwnershipTransfer
		details["previous_owner_id"] = caller.UserID()
		err = h.orgs.TransferOwnership(ctx, caller.OrgID, caller.UserID(), req.UserID)
	default:
		err = apperr.BadRequest("unknown action")
	}
	if err != nil {
		h.fail(w, r, opAdminAssociations, err)
		return
	}

	event := audit.NewEvent(ctx, caller.OrgID, caller.UserID(), action, audit.EntityProfile, req.UserID)
	for k, v := range details {
		event.WithDetail(k, v)
	}
	h.record(ctx, event)

	h.succeed(w, opAdminAssociations, map[string]interface{}{
		"action":  req.Action,
		"user_id": req.UserID,
	})
}

// CheckQuota reports whether one more item of a resource class fits the
// caller's plan. It uses the same enforcer as the creating handlers.
func (h *OrgHandlers) CheckQuota(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleViewer)
	if err != nil {
		h.fail(w, r, opCheckQuota, err)
		return
	}

	var req CheckQuotaRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opCheckQuota, err)
		return
	}
	class, err := orgs.ParseResourceClass(req.Resource)
	if err != nil {
		h.fail(w, r, opCheckQuota, err)
		return
	}

	status, err := h.orgs.QuotaStatus(r.Context(), caller.OrgID, class)
	if err != nil {
		h.fail(w, r, opCheckQuota, err)
		return
	}

	payload := map[string]interface{}{
		"resource": status.Resource,
		"plan":     status.Plan,
		"current":  status.Current,
		"limit":    status.Limit,
		"allowed":  status.Allowed,
	}
	if !status.Allowed {
		payload["message"] = (&orgs.QuotaExceededError{
			Plan: status.Plan, Resource: status.Resource, Current: status.Current, Limit: status.Limit,
		}).Error()
	}
	h.succeed(w, opCheckQuota, payload)
}

// Usage reports every counter next to the plan's limits
func (h *OrgHandlers) Usage(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleViewer)
	if err != nil {
		h.fail(w, r, opUsage, err)
		return
	}

	ctx := r.Context()
	usage, err := h.orgs.GetUsage(ctx, caller.OrgID)
	if err != nil {
		h.fail(w, r, opUsage, err)
		return
	}
	limits, err := h.orgs.PlanLimits(ctx, caller.Organization.Plan)
	if err != nil {
		h.fail(w, r, opUsage, err)
		return
	}

	h.succeed(w, opUsage, map[string]interface{}{
		"plan":   caller.Organization.Plan,
		"usage":  usage,
		"limits": limits,
	})
}

// CreateRisk adds a risk to the caller's register, subject to the risks quota
func (h *OrgHandlers) CreateRisk(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleManager)
	if err != nil {
		h.fail(w, r, opCreateRisk, err)
		return
	}

	var req CreateRiskRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opCreateRisk, err)
		return
	}

	risk := &orgs.Risk{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Likelihood:  req.Likelihood,
		Impact:      req.Impact,
		Status:      req.Status,
	}
	if risk.Likelihood == 0 {
		risk.Likelihood = defaultRiskScore
	}
	if risk.Impact == 0 {
		risk.Impact = defaultRiskScore
	}

	ctx := r.Context()
	if err := h.orgs.CreateRisk(ctx, caller.OrgID, caller.UserID(), risk); err != nil {
		h.fail(w, r, opCreateRisk, err)
		return
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionRiskCreate, audit.EntityRisk, risk.ID).
		WithDetail("title", risk.Title))

	h.succeed(w, opCreateRisk, map[string]interface{}{"risk": risk})
}

// decodeOptional decodes a body that may be empty
func decodeOptional(r *http.Request, dest interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.BadRequest("failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return apperr.BadRequest("invalid JSON: " + err.Error())
	}
	return httputil.Validate(dest)
}
