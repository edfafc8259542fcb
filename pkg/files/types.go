package files

import (
	"context"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// Domain is the second path segment under an organization prefix
type Domain string

const (
	DomainEvidence Domain = "evidence"
	DomainPolicies Domain = "policies"
)

// Review states written on upload
const (
	EvidenceStatusPending = "pending"
	PolicyFileStatusActive = "active"
)

// Evidence is an uploaded file attached to a control
type Evidence struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	ControlID    string     `json:"control_id"`
	FileName     string     `json:"file_name"`
	StoragePath  string     `json:"storage_path"`
	FileSize     int64      `json:"file_size"`
	ContentType  string     `json:"content_type"`
	UploadedBy   string     `json:"uploaded_by"`
	ReviewStatus string     `json:"review_status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PolicyFile is an uploaded document attached to a policy. Its organization
// is carried by the policy row and the storage path.
type PolicyFile struct {
	ID          string     `json:"id"`
	PolicyID    string     `json:"policy_id"`
	FileName    string     `json:"file_name"`
	StoragePath string     `json:"storage_path"`
	FileSize    int64      `json:"file_size"`
	ContentType string     `json:"content_type"`
	Version     string     `json:"version,omitempty"`
	UploadedBy  string     `json:"uploaded_by"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Upload is a validated upload request. OrgID always comes from the
// resolved caller, never from the payload.
type Upload struct {
	OrgID       string
	ActorID     string
	EntityID    string
	FileName    string
	ContentType string
	Data        []byte
	Version     string
	ExpiresAt   *time.Time
}

// Deletion identifies a file row and the object it claims to own
type Deletion struct {
	OrgID       string
	ID          string
	StoragePath string
}

// QuotaChecker is the quota enforcer consulted before an upload
type QuotaChecker interface {
	CheckQuota(ctx context.Context, orgID string, class orgs.ResourceClass) error
}

// Store persists file records
type Store interface {
	ControlInOrg(ctx context.Context, controlID, orgID string) (bool, error)
	PolicyInOrg(ctx context.Context, policyID, orgID string) (bool, error)

	InsertEvidence(ctx context.Context, e *Evidence) error
	GetEvidence(ctx context.Context, id string) (*Evidence, string, error)
	DeleteEvidence(ctx context.Context, orgID, id string) error

	InsertPolicyFile(ctx context.Context, f *PolicyFile) error
	GetPolicyFile(ctx context.Context, id string) (*PolicyFile, string, error)
	DeletePolicyFile(ctx context.Context, orgID, id string) error
}
