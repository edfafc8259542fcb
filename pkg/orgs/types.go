package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
)

// PlanTier represents subscription plan tiers
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// IsValid reports whether p is a known tier
func (p PlanTier) IsValid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// PlanStatus is the subscription lifecycle state mirrored from the payment processor
type PlanStatus string

const (
	PlanStatusNone       PlanStatus = "none"
	PlanStatusTrialing   PlanStatus = "trialing"
	PlanStatusActive     PlanStatus = "active"
	PlanStatusPastDue    PlanStatus = "past_due"
	PlanStatusCanceled   PlanStatus = "canceled"
	PlanStatusIncomplete PlanStatus = "incomplete"
	PlanStatusUnpaid     PlanStatus = "unpaid"
)

// Organization is the tenant root
type Organization struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Slug                  string     `json:"slug"`
	CustomDomain          *string    `json:"custom_domain,omitempty"`
	Plan                  PlanTier   `json:"plan"`
	PlanStatus            PlanStatus `json:"plan_status"`
	OwnerID               *string    `json:"owner_id,omitempty"`
	BrandColor            *string    `json:"brand_color,omitempty"`
	LogoURL               *string    `json:"logo_url,omitempty"`
	SSOEnabled            bool       `json:"sso_enabled"`
	SSOEnforced           bool       `json:"sso_enforced"`
	RiskAppetiteThreshold int        `json:"risk_appetite_threshold"`
	DisabledFrameworkIDs  []string   `json:"disabled_framework_ids"`
	StripeCustomerID      *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  *string    `json:"stripe_subscription_id,omitempty"`
	StripePriceID         *string    `json:"stripe_price_id,omitempty"`
	CurrentPeriodEnd      *time.Time `json:"current_period_end,omitempty"`
	CanceledAt            *time.Time `json:"canceled_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsOwner reports whether userID owns the organization
func (o *Organization) IsOwner(userID string) bool {
	return o.OwnerID != nil && *o.OwnerID == userID
}

// Profile links an identity to at most one organization
type Profile struct {
	ID             string    `json:"id"`
	OrgID          *string   `json:"org_id"`
	Role           auth.Role `json:"role"`
	FullName       *string   `json:"full_name,omitempty"`
	Email          *string   `json:"email,omitempty"`
	PendingOrgName *string   `json:"-"`
}

// InOrg reports whether the profile is bound to orgID
func (p *Profile) InOrg(orgID string) bool {
	return p.OrgID != nil && *p.OrgID == orgID
}

// ResourceClass is a quota-counted resource
type ResourceClass string

const (
	ResourceUsers        ResourceClass = "users"
	ResourceRisks        ResourceClass = "risks"
	ResourceFrameworks   ResourceClass = "frameworks"
	ResourceStorageItems ResourceClass = "storage_items"
)

// ResourceClasses lists every class in reporting order
var ResourceClasses = []ResourceClass{ResourceUsers, ResourceRisks, ResourceFrameworks, ResourceStorageItems}

// ParseResourceClass validates a client-supplied class name
func ParseResourceClass(s string) (ResourceClass, error) {
	for _, c := range ResourceClasses {
		if string(c) == s {
			return c, nil
		}
	}
	return "", apperr.BadRequest(fmt.Sprintf("unknown resource %q", s))
}

// label is the human-readable plural used in quota messages
func (c ResourceClass) label() string {
	if c == ResourceStorageItems {
		return "storage items"
	}
	return string(c)
}

// PlanLimits caps each resource class for a plan tier
type PlanLimits struct {
	Plan            PlanTier `json:"plan"`
	MaxUsers        int64    `json:"max_users"`
	MaxRisks        int64    `json:"max_risks"`
	MaxFrameworks   int64    `json:"max_frameworks"`
	MaxStorageItems int64    `json:"max_storage_items"`
}

// Limit returns the cap for class
func (l PlanLimits) Limit(class ResourceClass) int64 {
	switch class {
	case ResourceUsers:
		return l.MaxUsers
	case ResourceRisks:
		return l.MaxRisks
	case ResourceFrameworks:
		return l.MaxFrameworks
	case ResourceStorageItems:
		return l.MaxStorageItems
	}
	return 0
}

// Usage is computed on demand and never stored
type Usage struct {
	Users        int64 `json:"users"`
	Risks        int64 `json:"risks"`
	Frameworks   int64 `json:"frameworks"`
	StorageItems int64 `json:"storage_items"`
	StorageBytes int64 `json:"storage_bytes"`
}

// Count returns the counter for class
func (u Usage) Count(class ResourceClass) int64 {
	switch class {
	case ResourceUsers:
		return u.Users
	case ResourceRisks:
		return u.Risks
	case ResourceFrameworks:
		return u.Frameworks
	case ResourceStorageItems:
		return u.StorageItems
	}
	return 0
}

// QuotaStatus is the result of one quota evaluation
type QuotaStatus struct {
	Resource ResourceClass `json:"resource"`
	Plan     PlanTier      `json:"plan"`
	Current  int64         `json:"current"`
	Limit    int64         `json:"limit"`
	Allowed  bool          `json:"allowed"`
}

// QuotaExceededError represents a quota exceeded error
type QuotaExceededError struct {
	Plan     PlanTier
	Resource ResourceClass
	Current  int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s plan allows %d %s", e.Plan, e.Limit, e.Resource.label())
}

// ErrorKind maps the error onto the gateway error taxonomy
func (e *QuotaExceededError) ErrorKind() apperr.Kind {
	return apperr.KindQuotaExceeded
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// Actor is the authenticated caller as seen by the resolver
type Actor struct {
	UserID      string
	Email       string
	DisplayName string
}

// ResolveOptions controls ResolveOrganization
type ResolveOptions struct {
	// Create allows creating an organization when none is linked or owned
	Create bool
	// OrgName is an explicitly supplied name for a created organization
	OrgName string
}

// Resolution is the caller's organization context for one request
type Resolution struct {
	OrgID        string        `json:"org_id"`
	Organization *Organization `json:"organization"`
	Profile      *Profile      `json:"profile"`
	Created      bool          `json:"created"`
}

// Role returns the caller's role from the freshly read profile
func (r *Resolution) Role() auth.Role {
	if r.Profile == nil || !r.Profile.InOrg(r.OrgID) {
		return auth.RoleViewer
	}
	return r.Profile.Role
}

// MemberIdentity is an identity being added to an organization
type MemberIdentity struct {
	UserID   string
	Email    string
	FullName string
}

// RemoveResult reports what RemoveMember did
type RemoveResult int

const (
	// MemberRemoved means the profile was deleted from the organization
	MemberRemoved RemoveResult = iota
	// MemberAlreadyGone means no profile existed for the user
	MemberAlreadyGone
)

// Risk is a risk register entry
type Risk struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Likelihood  int       `json:"likelihood"`
	Impact      int       `json:"impact"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrgSummary is the subset of organization fields used by usage reporting
type OrgSummary struct {
	ID   string
	Name string
	Plan PlanTier
}

// Service is the organization boundary consumed by the gateway handlers
type Service interface {
	ResolveOrganization(ctx context.Context, actor Actor, opts ResolveOptions) (*Resolution, error)
	GetOrganization(ctx context.Context, orgID string) (*Organization, error)
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// Role gate
	RoleOf(ctx context.Context, userID, orgID string) (auth.Role, error)
	RequireRole(ctx context.Context, userID, orgID string, min auth.Role) (auth.Role, error)

	// Quota enforcer
	PlanLimits(ctx context.Context, plan PlanTier) (PlanLimits, error)
	QuotaStatus(ctx context.Context, orgID string, class ResourceClass) (*QuotaStatus, error)
	CheckQuota(ctx context.Context, orgID string, class ResourceClass) error
	GetUsage(ctx context.Context, orgID string) (*Usage, error)
	ListOrganizations(ctx context.Context) ([]OrgSummary, error)

	// Membership
	AddMember(ctx context.Context, orgID string, member MemberIdentity, role auth.Role) (*Profile, error)
	AddAdmin(ctx context.Context, orgID, userID string) error
	RemoveAdmin(ctx context.Context, orgID, userID string, fallback auth.Role) error
	TransferOwnership(ctx context.Context, orgID, currentOwnerID, newOwnerID string) error
	RemoveMember(ctx context.Context, orgID, userID string) (RemoveResult, error)

	// Risks
	CreateRisk(ctx context.Context, orgID, actorID string, risk *Risk) error
}
