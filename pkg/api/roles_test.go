package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/billing"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// failOnWrite makes every org mutation and billing call fail the test
func failOnWrite(t *testing.T, svc *mockOrgService, env *testEnv) {
	svc.getProfileFunc = func(string) (*orgs.Profile, error) {
		t.Fatal("profile read after role check failed")
		return nil, nil
	}
	svc.addMemberFunc = func(string, orgs.MemberIdentity, auth.Role) (*orgs.Profile, error) {
		t.Fatal("AddMember called")
		return nil, nil
	}
	svc.addAdminFunc = func(string, string) error {
		t.Fatal("AddAdmin called")
		return nil
	}
	svc.removeAdminFunc = func(string, string, auth.Role) error {
		t.Fatal("RemoveAdmin called")
		return nil
	}
	svc.transferOwnershipFunc = func(string, string, string) error {
		t.Fatal("TransferOwnership called")
		return nil
	}
	svc.removeMemberFunc = func(string, string) (orgs.RemoveResult, error) {
		t.Fatal("RemoveMember called")
		return 0, nil
	}
	svc.createRiskFunc = func(string, string, *orgs.Risk) error {
		t.Fatal("CreateRisk called")
		return nil
	}
	env.billing.checkoutFunc = func(*orgs.Organization, string, orgs.PlanTier) (*billing.Session, error) {
		t.Fatal("StartCheckout called")
		return nil, nil
	}
	env.billing.portalFunc = func(*orgs.Organization) (*billing.Session, error) {
		t.Fatal("OpenPortal called")
		return nil, nil
	}
}

func TestRoutes_BelowMinimumRoleIsForbidden(t *testing.T) {
	upload := map[string]string{"control_id": controlID, "file_name": "soc2.pdf", "file_data": "aGVsbG8="}
	policy := map[string]string{"policy_id": policyID, "file_name": "policy.pdf", "file_data": "aGVsbG8="}
	deletion := map[string]string{"id": evidenceID, "storage_path": testOrgID + "/evidence/soc2.pdf"}

	tests := []struct {
		route string
		role  auth.Role
		min   auth.Role
		body  interface{}
	}{
		{"/create-risk", auth.RoleViewer, auth.RoleManager, map[string]interface{}{"title": "Vendor breach"}},
		{"/upload-evidence", auth.RoleViewer, auth.RoleManager, upload},
		{"/delete-evidence", auth.RoleViewer, auth.RoleManager, deletion},
		{"/upload-policy", auth.RoleViewer, auth.RoleManager, policy},
		{"/delete-policy", auth.RoleViewer, auth.RoleManager, map[string]string{"id": policyID, "storage_path": testOrgID + "/policies/policy.pdf"}},
		{"/invite-user", auth.RoleManager, auth.RoleAdmin, map[string]string{"email": targetEmail, "role": "viewer"}},
		{"/delete-user", auth.RoleManager, auth.RoleAdmin, map[string]string{"user_id": targetID}},
		{"/org-admin-associations", auth.RoleManager, auth.RoleAdmin, map[string]string{"action": "add_admin", "user_id": targetID}},
		{"/billing-checkout", auth.RoleManager, auth.RoleAdmin, map[string]string{"plan": "pro"}},
		{"/billing-portal", auth.RoleManager, auth.RoleAdmin, nil},
	}

	for _, tt := range tests {
		t.Run(tt.route+"/"+tt.role.String(), func(t *testing.T) {
			svc := newMember(tt.role)
			env := newTestEnv(t, svc)
			failOnWrite(t, svc, env)

			rec, body := env.call(t, tt.route, tt.body)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, tt.min.String()+" role required", body["error"])
			assert.Empty(t, env.audit.events)
			assert.Zero(t, env.files.calls)
			assert.Empty(t, svc.quotaChecks)
			assert.Empty(t, env.identity.invited)
			assert.Empty(t, env.identity.deleted)
			assert.Empty(t, env.invites.recorded)
		})
	}
}

// Any member may accept an invitation, so the only caller below the floor is
// one with no organization at all.
func TestAcceptInvite_NoOrganizationIsRefused(t *testing.T) {
	svc := &mockOrgService{}
	svc.resolveFunc = func(orgs.Actor, orgs.ResolveOptions) (*orgs.Resolution, error) {
		return nil, apperr.NoOrganization()
	}
	env := newTestEnv(t, svc)
	env.invites.open[testOrgID+"/"+testUserID] = &audit.Invite{ID: 7, OrgID: testOrgID}

	rec, _ := env.call(t, "/accept-invite", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.audit.events)
	assert.Len(t, env.invites.open, 1)
}
