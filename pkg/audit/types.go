package audit

import (
	"time"
)

// Action names a privileged operation recorded in audit_logs
type Action string

const (
	ActionOrgBootstrap       Action = "org.bootstrap"
	ActionUserInvite         Action = "user.invite"
	ActionUserInviteAccept   Action = "user.invite_accept"
	ActionUserDelete         Action = "user.delete"
	ActionAdminAdd           Action = "org.admin_add"
	ActionAdminRemove        Action = "org.admin_remove"
	ActionOwnershipTransfer  Action = "org.ownership_transfer"
	ActionEvidenceUpload     Action = "evidence.upload"
	ActionEvidenceDelete     Action = "evidence.delete"
	ActionPolicyFileUpload   Action = "policy_file.upload"
	ActionPolicyFileDelete   Action = "policy_file.delete"
	ActionRiskCreate         Action = "risk.create"
	ActionBillingCheckout    Action = "billing.checkout"
	ActionBillingPortal      Action = "billing.portal"
	ActionSubscriptionChange Action = "billing.subscription_change"
)

// EntityType is the kind of row an event refers to
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityProfile      EntityType = "profile"
	EntityEvidence     EntityType = "control_evidence"
	EntityPolicyFile   EntityType = "policy_file"
	EntityRisk         EntityType = "risk"
	EntitySubscription EntityType = "subscription"
)

// Event is one append-only audit_logs row
type Event struct {
	ID         int64                  `json:"id,omitempty"`
	OrgID      string                 `json:"org_id"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Action     Action                 `json:"action"`
	EntityType EntityType             `json:"entity_type"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Invite is a user_invite_logs row. Rows only ever gain an AcceptedAt.
type Invite struct {
	ID            int64      `json:"id"`
	OrgID         string     `json:"org_id"`
	InvitedBy     string     `json:"invited_by"`
	InvitedUserID string     `json:"invited_user_id"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
}
