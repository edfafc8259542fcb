package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/billing"
	"github.com/platinummonkey/grc-gateway/pkg/files"
	"github.com/platinummonkey/grc-gateway/pkg/identity"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

const (
	testOrgID   = "0b5e8a1c-2d3f-4a5b-9c6d-7e8f9a0b1c2d"
	otherOrgID  = "9f8e7d6c-5b4a-4392-8170-6f5e4d3c2b1a"
	testUserID  = "11111111-1111-4111-8111-111111111111"
	targetID    = "22222222-2222-4222-8222-222222222222"
	testToken   = "valid-token"
	controlID   = "33333333-3333-4333-8333-333333333333"
	policyID    = "44444444-4444-4444-8444-444444444444"
	evidenceID  = "55555555-5555-4555-8555-555555555555"
	testEmail   = "admin@acme.test"
	targetEmail = "new.member@acme.test"
)

// mockOrgService implements orgs.Service for testing
type mockOrgService struct {
	resolveFunc           func(actor orgs.Actor, opts orgs.ResolveOptions) (*orgs.Resolution, error)
	roleFunc              func(userID, orgID string) (auth.Role, error)
	getProfileFunc        func(userID string) (*orgs.Profile, error)
	planLimitsFunc        func(plan orgs.PlanTier) (orgs.PlanLimits, error)
	quotaStatusFunc       func(orgID string, class orgs.ResourceClass) (*orgs.QuotaStatus, error)
	checkQuotaFunc        func(orgID string, class orgs.ResourceClass) error
	getUsageFunc          func(orgID string) (*orgs.Usage, error)
	addMemberFunc         func(orgID string, member orgs.MemberIdentity, role auth.Role) (*orgs.Profile, error)
	addAdminFunc          func(orgID, userID string) error
	removeAdminFunc       func(orgID, userID string, fallback auth.Role) error
	transferOwnershipFunc func(orgID, currentOwnerID, newOwnerID string) error
	removeMemberFunc      func(orgID, userID string) (orgs.RemoveResult, error)
	createRiskFunc        func(orgID, actorID string, risk *orgs.Risk) error

	quotaChecks []orgs.ResourceClass
}

var _ orgs.Service = (*mockOrgService)(nil)

var errNotImplemented = errors.New("not implemented")

// newMember returns a mock where the caller belongs to testOrgID with role
func newMember(role auth.Role) *mockOrgService {
	m := &mockOrgService{}
	m.resolveFunc = func(actor orgs.Actor, opts orgs.ResolveOptions) (*orgs.Resolution, error) {
		owner := testUserID
		orgID := testOrgID
		return &orgs.Resolution{
			OrgID:        testOrgID,
			Organization: &orgs.Organization{ID: testOrgID, Name: "Acme", Plan: orgs.PlanFree, OwnerID: &owner},
			Profile:      &orgs.Profile{ID: actor.UserID, OrgID: &orgID, Role: role},
		}, nil
	}
	m.roleFunc = func(userID, orgID string) (auth.Role, error) { return role, nil }
	return m
}

func (m *mockOrgService) ResolveOrganization(_ context.Context, actor orgs.Actor, opts orgs.ResolveOptions) (*orgs.Resolution, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(actor, opts)
	}
	return nil, apperr.NoOrganization()
}

func (m *mockOrgService) GetOrganization(context.Context, string) (*orgs.Organization, error) {
	return nil, errNotImplemented
}

func (m *mockOrgService) GetProfile(_ context.Context, userID string) (*orgs.Profile, error) {
	if m.getProfileFunc != nil {
		return m.getProfileFunc(userID)
	}
	return nil, nil
}

func (m *mockOrgService) RoleOf(_ context.Context, userID, orgID string) (auth.Role, error) {
	if m.roleFunc != nil {
		return m.roleFunc(userID, orgID)
	}
	return auth.RoleViewer, nil
}

func (m *mockOrgService) RequireRole(ctx context.Context, userID, orgID string, min auth.Role) (auth.Role, error) {
	role, err := m.RoleOf(ctx, userID, orgID)
	if err != nil {
		return role, err
	}
	if !role.AtLeast(min) {
		return role, apperr.Forbidden(min.String() + " role required")
	}
	return role, nil
}

func (m *mockOrgService) PlanLimits(_ context.Context, plan orgs.PlanTier) (orgs.PlanLimits, error) {
	if m.planLimitsFunc != nil {
		return m.planLimitsFunc(plan)
	}
	return orgs.DefaultPlanLimits(plan), nil
}

func (m *mockOrgService) QuotaStatus(_ context.Context, orgID string, class orgs.ResourceClass) (*orgs.QuotaStatus, error) {
	if m.quotaStatusFunc != nil {
		return m.quotaStatusFunc(orgID, class)
	}
	return nil, errNotImplemented
}

func (m *mockOrgService) CheckQuota(_ context.Context, orgID string, class orgs.ResourceClass) error {
	m.quotaChecks = append(m.quotaChecks, class)
	if m.checkQuotaFunc != nil {
		return m.checkQuotaFunc(orgID, class)
	}
	return nil
}

func (m *mockOrgService) GetUsage(_ context.Context, orgID string) (*orgs.Usage, error) {
	if m.getUsageFunc != nil {
		return m.getUsageFunc(orgID)
	}
	return nil, errNotImplemented
}

func (m *mockOrgService) ListOrganizations(context.Context) ([]orgs.OrgSummary, error) {
	return nil, errNotImplemented
}

func (m *mockOrgService) AddMember(_ context.Context, orgID string, member orgs.MemberIdentity, role auth.Role) (*orgs.Profile, error) {
	if m.addMemberFunc != nil {
		return m.addMemberFunc(orgID, member, role)
	}
	return nil, errNotImplemented
}

func (m *mockOrgService) AddAdmin(_ context.Context, orgID, userID string) error {
	if m.addAdminFunc != nil {
		return m.addAdminFunc(orgID, userID)
	}
	return errNotImplemented
}

func (m *mockOrgService) RemoveAdmin(_ context.Context, orgID, userID string, fallback auth.Role) error {
	if m.removeAdminFunc != nil {
		return m.removeAdminFunc(orgID, userID, fallback)
	}
	return errNotImplemented
}

func (m *mockOrgService) TransferOwnership(_ context.Context, orgID, currentOwnerID, newOwnerID string) error {
	if m.transferOwnershipFunc != nil {
		return m.transferOwnershipFunc(orgID, currentOwnerID, newOwnerID)
	}
	return errNotImplemented
}

func (m *mockOrgService) RemoveMember(_ context.Context, orgID, userID string) (orgs.RemoveResult, error) {
	if m.removeMemberFunc != nil {
		return m.removeMemberFunc(orgID, userID)
	}
	return 0, errNotImplemented
}

func (m *mockOrgService) CreateRisk(_ context.Context, orgID, actorID string, risk *orgs.Risk) error {
	if m.createRiskFunc != nil {
		return m.createRiskFunc(orgID, actorID, risk)
	}
	return errNotImplemented
}

// mockFileService implements FileService for testing
type mockFileService struct {
	uploadEvidenceFunc func(up files.Upload) (*files.EvidenceUpload, error)
	uploadPolicyFunc   func(up files.Upload) (*files.PolicyFileUpload, error)
	deleteEvidenceFunc func(del files.Deletion) (*files.Evidence, error)
	deletePolicyFunc   func(del files.Deletion) (*files.PolicyFile, error)
	calls              int
}

func (m *mockFileService) UploadEvidence(_ context.Context, up files.Upload) (*files.EvidenceUpload, error) {
	m.calls++
	if m.uploadEvidenceFunc != nil {
		return m.uploadEvidenceFunc(up)
	}
	return nil, errNotImplemented
}

func (m *mockFileService) UploadPolicyFile(_ context.Context, up files.Upload) (*files.PolicyFileUpload, error) {
	m.calls++
	if m.uploadPolicyFunc != nil {
		return m.uploadPolicyFunc(up)
	}
	return nil, errNotImplemented
}

func (m *mockFileService) DeleteEvidence(_ context.Context, del files.Deletion) (*files.Evidence, error) {
	m.calls++
	if m.deleteEvidenceFunc != nil {
		return m.deleteEvidenceFunc(del)
	}
	return nil, errNotImplemented
}

func (m *mockFileService) DeletePolicyFile(_ context.Context, del files.Deletion) (*files.PolicyFile, error) {
	m.calls++
	if m.deletePolicyFunc != nil {
		return m.deletePolicyFunc(del)
	}
	return nil, errNotImplemented
}

// mockIdentity implements identity.Admin for testing
type mockIdentity struct {
	users   map[string]*identity.User
	invited []string
	deleted []string
	// deleteErrs are returned by successive DeleteUser calls before any
	// call succeeds
	deleteErrs []error
}

func newMockIdentity(users ...*identity.User) *mockIdentity {
	m := &mockIdentity{users: map[string]*identity.User{}}
	for _, u := range users {
		m.users[u.Email] = u
	}
	return m
}

func (m *mockIdentity) FindUserByEmail(_ context.Context, email string) (*identity.User, error) {
	return m.users[email], nil
}

func (m *mockIdentity) InviteUserByEmail(_ context.Context, email string, metadata map[string]any) (*identity.User, error) {
	m.invited = append(m.invited, email)
	u := &identity.User{ID: targetID, Email: email, UserMetadata: metadata}
	m.users[email] = u
	return u, nil
}

func (m *mockIdentity) DeleteUser(_ context.Context, userID string) error {
	if len(m.deleteErrs) > 0 {
		err := m.deleteErrs[0]
		m.deleteErrs = m.deleteErrs[1:]
		return err
	}
	m.deleted = append(m.deleted, userID)
	return nil
}

// mockInvites implements audit.InviteLog for testing
type mockInvites struct {
	recorded []*audit.Invite
	open     map[string]*audit.Invite
}

func (m *mockInvites) RecordInvite(_ context.Context, invite *audit.Invite) error {
	invite.ID = int64(len(m.recorded) + 1)
	m.recorded = append(m.recorded, invite)
	return nil
}

func (m *mockInvites) MarkAccepted(_ context.Context, orgID, userID string) (*audit.Invite, error) {
	inv, ok := m.open[orgID+"/"+userID]
	if !ok {
		return nil, nil
	}
	delete(m.open, orgID+"/"+userID)
	return inv, nil
}

// mockBilling implements BillingService for testing
type mockBilling struct {
	webhookFunc  func(payload []byte, header string) (*billing.WebhookResult, error)
	checkoutFunc func(org *orgs.Organization, email string, plan orgs.PlanTier) (*billing.Session, error)
	portalFunc   func(org *orgs.Organization) (*billing.Session, error)
}

func (m *mockBilling) HandleWebhook(_ context.Context, payload []byte, header string) (*billing.WebhookResult, error) {
	if m.webhookFunc != nil {
		return m.webhookFunc(payload, header)
	}
	return nil, errNotImplemented
}

func (m *mockBilling) StartCheckout(_ context.Context, org *orgs.Organization, email string, plan orgs.PlanTier) (*billing.Session, error) {
	if m.checkoutFunc != nil {
		return m.checkoutFunc(org, email, plan)
	}
	return nil, errNotImplemented
}

func (m *mockBilling) OpenPortal(_ context.Context, org *orgs.Organization) (*billing.Session, error) {
	if m.portalFunc != nil {
		return m.portalFunc(org)
	}
	return nil, errNotImplemented
}

type recordingAudit struct {
	events []*audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e *audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) actions() []audit.Action {
	out := make([]audit.Action, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (*auth.AuthContext, error) {
	if token != testToken {
		return nil, auth.ErrInvalidToken
	}
	return &auth.AuthContext{UserID: testUserID, Email: testEmail, FullName: "Ada Admin", RawToken: token}, nil
}

// testEnv bundles a server with the fakes behind it
type testEnv struct {
	orgs     *mockOrgService
	files    *mockFileService
	identity *mockIdentity
	invites  *mockInvites
	billing  *mockBilling
	audit    *recordingAudit
	server   *Server
}

func newTestEnv(t *testing.T, orgService *mockOrgService) *testEnv {
	t.Helper()
	env := &testEnv{
		orgs:     orgService,
		files:    &mockFileService{},
		identity: newMockIdentity(),
		invites:  &mockInvites{open: map[string]*audit.Invite{}},
		billing:  &mockBilling{},
		audit:    &recordingAudit{},
	}
	env.server = NewServer(Dependencies{
		Orgs:     env.orgs,
		Files:    env.files,
		Identity: env.identity,
		Invites:  env.invites,
		Billing:  env.billing,
		Verifier: stubVerifier{},
		Audit:    env.audit,
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	}, Config{MaxUploadBytes: 1 << 20})
	return env
}

// call posts body as JSON to a function route with the test credential
func (e *testEnv) call(t *testing.T, route string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(http.MethodPost, FunctionsPrefix+route, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec, decode(t, rec)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if rec.Body.Len() == 0 {
		return out
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
