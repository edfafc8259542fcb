package api

import (
	"context"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/billing"
	"github.com/platinummonkey/grc-gateway/pkg/files"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// FileService uploads and deletes evidence and policy files
type FileService interface {
	UploadEvidence(ctx context.Context, up files.Upload) (*files.EvidenceUpload, error)
	UploadPolicyFile(ctx context.Context, up files.Upload) (*files.PolicyFileUpload, error)
	DeleteEvidence(ctx context.Context, del files.Deletion) (*files.Evidence, error)
	DeletePolicyFile(ctx context.Context, del files.Deletion) (*files.PolicyFile, error)
}

// BillingService handles checkout, portal and webhook requests
type BillingService interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*billing.WebhookResult, error)
	StartCheckout(ctx context.Context, org *orgs.Organization, email string, plan orgs.PlanTier) (*billing.Session, error)
	OpenPortal(ctx context.Context, org *orgs.Organization) (*billing.Session, error)
}

// BootstrapRequest optionally names the organization to create
type BootstrapRequest struct {
	OrgName string `json:"org_name" validate:"omitempty,max=200"`
}

// InviteRequest invites an identity into the caller's organization. An
// unrecognized role is downgraded to viewer.
type InviteRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Role     string `json:"role"`
	FullName string `json:"full_name" validate:"omitempty,max=200"`
}

// DeleteUserRequest removes a member and their identity
type DeleteUserRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// UploadEvidenceRequest carries a base64 encoded evidence file
type UploadEvidenceRequest struct {
	ControlID   string     `json:"control_id" validate:"required,uuid"`
	FileName    string     `json:"file_name" validate:"required,max=255"`
	ContentType string     `json:"content_type" validate:"omitempty,max=255"`
	FileData    string     `json:"file_data" validate:"required"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// UploadPolicyRequest carries a base64 encoded policy document
type UploadPolicyRequest struct {
	PolicyID    string `json:"policy_id" validate:"required,uuid"`
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"omitempty,max=255"`
	FileData    string `json:"file_data" validate:"required"`
	Version     string `json:"version" validate:"omitempty,max=50"`
}

// DeleteFileRequest names a file row and the storage path it claims
type DeleteFileRequest struct {
	ID          string `json:"id" validate:"required,uuid"`
	StoragePath string `json:"storage_path" validate:"required,max=1024"`
}

// Admin association actions
const (
	ActionAddAdmin          = "add_admin"
	ActionRemoveAdmin       = "remove_admin"
	ActionTransferOwnership = "transfer_ownership"
)

// AdminAssociationRequest manages admins and ownership
type AdminAssociationRequest struct {
	Action       string `json:"action" validate:"required,oneof=add_admin remove_admin transfer_ownership"`
	UserID       string `json:"user_id" validate:"required,uuid"`
	FallbackRole string `json:"fallback_role" validate:"omitempty,oneof=viewer manager"`
}

// CheckQuotaRequest names the resource class to check
type CheckQuotaRequest struct {
	Resource string `json:"resource" validate:"required,oneof=users risks frameworks storage_items"`
}

// CreateRiskRequest adds an entry to the risk register
type CreateRiskRequest struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description" validate:"omitempty,max=10000"`
	Category    string `json:"category" validate:"omitempty,max=100"`
	Likelihood  int    `json:"likelihood" validate:"omitempty,min=1,max=5"`
	Impact      int    `json:"impact" validate:"omitempty,min=1,max=5"`
	Status      string `json:"status" validate:"omitempty,max=50"`
}

// CheckoutRequest selects the plan to subscribe to
type CheckoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=pro enterprise"`
}
