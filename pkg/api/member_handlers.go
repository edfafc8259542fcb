package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/httputil"
	"github.com/platinummonkey/grc-gateway/pkg/identity"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

const (
	opInviteUser   = "invite_user"
	opAcceptInvite = "accept_invite"
	opDeleteUser   = "delete_user"
)

// MemberHandlers handles invitations and member removal
type MemberHandlers struct {
	handlerBase
	identity identity.Admin
	invites  audit.InviteLog
}

// NewMemberHandlers creates a new MemberHandlers
func NewMemberHandlers(base handlerBase, admin identity.Admin, invites audit.InviteLog) *MemberHandlers {
	return &MemberHandlers{handlerBase: base, identity: admin, invites: invites}
}

// RegisterRoutes registers member routes on an authenticated router
func (h *MemberHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/invite-user", h.InviteUser).Methods(http.MethodPost)
	router.HandleFunc("/accept-invite", h.AcceptInvite).Methods(http.MethodPost)
	router.HandleFunc("/delete-user", h.DeleteUser).Methods(http.MethodPost)
}

// InviteUser binds an identity to the caller's organization, creating and
// inviting the identity when none exists for the email. Identities already
// bound to another organization are refused without being modified.
func (h *MemberHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleAdmin)
	if err != nil {
		h.fail(w, r, opInviteUser, err)
		return
	}

	var req InviteRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opInviteUser, err)
		return
	}
	role := auth.ParseRole(req.Role)

	ctx := r.Context()
	user, err := h.identity.FindUserByEmail(ctx, req.Email)
	if err != nil {
		h.fail(w, r, opInviteUser, err)
		return
	}

	alreadyMember := false
	if user != nil {
		profile, err := h.orgs.GetProfile(ctx, user.ID)
		if err != nil {
			h.fail(w, r, opInviteUser, err)
			return
		}
		if profile != nil && profile.OrgID != nil && *profile.OrgID != caller.OrgID {
			h.fail(w, r, opInviteUser, apperr.ConflictOtherOrg(req.Email))
			return
		}
		alreadyMember = profile != nil && profile.InOrg(caller.OrgID)
	}

	if !alreadyMember {
		if err := h.orgs.CheckQuota(ctx, caller.OrgID, orgs.ResourceUsers); err != nil {
			h.fail(w, r, opInviteUser, err)
			return
		}
	}

	invited := false
	if user == nil {
		user, err = h.identity.InviteUserByEmail(ctx, req.Email, map[string]any{
			"full_name":  req.FullName,
			"org_id":     caller.OrgID,
			"invited_by": caller.UserID(),
		})
		if err != nil {
			h.fail(w, r, opInviteUser, err)
			return
		}
		invited = true
	}

	fullName := req.FullName
	if fullName == "" {
		fullName = user.FullName()
	}
	profile, err := h.orgs.AddMember(ctx, caller.OrgID, orgs.MemberIdentity{
		UserID:   user.ID,
		Email:    req.Email,
		FullName: fullName,
	}, role)
	if err != nil {
		h.fail(w, r, opInviteUser, err)
		return
	}

	if err := h.invites.RecordInvite(ctx, &audit.Invite{
		OrgID:         caller.OrgID,
		InvitedBy:     caller.UserID(),
		InvitedUserID: user.ID,
		Email:         req.Email,
		Role:          role.String(),
	}); err != nil {
		observability.FromContext(ctx).WithError(err).Error("failed to record invite")
	}
	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionUserInvite, audit.EntityProfile, user.ID).
		WithDetail("email", req.Email).
		WithDetail("role", role.String()).
		WithDetail("new_identity", invited))

	h.succeed(w, opInviteUser, map[string]interface{}{
		"user_id": user.ID,
		"email":   req.Email,
		"role":    profile.Role,
		"invited": invited,
	})
}

// AcceptInvite stamps the caller's newest open invitation as accepted
func (h *MemberHandlers) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleViewer)
	if err != nil {
		h.fail(w, r, opAcceptInvite, err)
		return
	}

	ctx := r.Context()
	invite, err := h.invites.MarkAccepted(ctx, caller.OrgID, caller.UserID())
	if err != nil {
		h.fail(w, r, opAcceptInvite, err)
		return
	}
	if invite != nil {
		h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionUserInviteAccept, audit.EntityProfile, caller.UserID()).
			WithDetail("invite_id", invite.ID))
	}

	h.succeed(w, opAcceptInvite, map[string]interface{}{
		"accepted": invite != nil,
		"invite":   invite,
	})
}

// DeleteUser removes a member from the caller's organization and deletes
// their identity. A member that is already gone counts as success.
func (h *MemberHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleAdmin)
	if err != nil {
		h.fail(w, r, opDeleteUser, err)
		return
	}

	var req DeleteUserRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opDeleteUser, err)
		return
	}
	if req.UserID == caller.UserID() {
		h.fail(w, r, opDeleteUser, apperr.BadRequest("cannot delete your own account"))
		return
	}

	ctx := r.Context()
	profile, err := h.orgs.GetProfile(ctx, req.UserID)
	if err != nil {
		h.fail(w, r, opDeleteUser, err)
		return
	}

	// Without a profile the identity cannot be attributed to this
	// organization, so it is left alone.
	alreadyGone := profile == nil
	if !alreadyGone {
		if !profile.InOrg(caller.OrgID) {
			h.fail(w, r, opDeleteUser, apperr.Forbidden("user is not a member of this organization"))
			return
		}
		if caller.Organization != nil && caller.Organization.IsOwner(req.UserID) {
			h.fail(w, r, opDeleteUser, apperr.Forbidden("cannot remove the organization owner"))
			return
		}

		// The identity goes first: while the profile remains, a retry after
		// a failed identity call still reaches it. A missing identity is
		// success, so a retry after a failed profile delete converges too.
		if err := h.identity.DeleteUser(ctx, req.UserID); err != nil {
			h.fail(w, r, opDeleteUser, err)
			return
		}
		result, err := h.orgs.RemoveMember(ctx, caller.OrgID, req.UserID)
		if err != nil {
			h.fail(w, r, opDeleteUser, err)
			return
		}
		alreadyGone = result == orgs.MemberAlreadyGone
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionUserDelete, audit.EntityProfile, req.UserID).
		WithDetail("already_gone", alreadyGone))

	h.succeed(w, opDeleteUser, map[string]interface{}{
		"user_id":      req.UserID,
		"already_gone": alreadyGone,
	})
}
