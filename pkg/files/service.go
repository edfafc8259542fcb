package files

import (
	"context"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
	"github.com/platinummonkey/grc-gateway/pkg/storage/objects"
)

// Service performs tenant-scoped evidence and policy file operations
type Service struct {
	store   Store
	objects objects.Store
	quotas  QuotaChecker
	logger  *observability.Logger
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source used in object paths
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a file service
func NewService(store Store, objectStore objects.Store, quotas QuotaChecker, opts ...Option) *Service {
	s := &Service{
		store:   store,
		objects: objectStore,
		quotas:  quotas,
		logger:  observability.GetLogger(context.Background()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvidenceUpload is the result of UploadEvidence
type EvidenceUpload struct {
	Evidence  *Evidence `json:"evidence"`
	SignedURL string    `json:"signed_url"`
}

// PolicyFileUpload is the result of UploadPolicyFile
type PolicyFileUpload struct {
	PolicyFile *PolicyFile `json:"policy_file"`
	SignedURL  string      `json:"signed_url"`
}

func validateUpload(up Upload) error {
	if up.OrgID == "" || up.ActorID == "" {
		return apperr.Unauthorized("missing caller")
	}
	if up.EntityID == "" {
		return apperr.BadRequest("entity id is required")
	}
	if up.FileName == "" {
		return apperr.BadRequest("file_name is required")
	}
	if len(up.Data) == 0 {
		return apperr.BadRequest("file is empty")
	}
	return nil
}

// UploadEvidence stores a file against a control of the caller's organization
func (s *Service) UploadEvidence(ctx context.Context, up Upload) (*EvidenceUpload, error) {
	if err := validateUpload(up); err != nil {
		return nil, err
	}

	ok, err := s.store.ControlInOrg(ctx, up.EntityID, up.OrgID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("control does not belong to your organization")
	}
	if err := s.quotas.CheckQuota(ctx, up.OrgID, orgs.ResourceStorageItems); err != nil {
		return nil, err
	}

	key := ObjectPath(up.OrgID, DomainEvidence, up.EntityID, up.FileName, s.now())
	if err := s.objects.Put(ctx, key, up.Data, up.ContentType); err != nil {
		return nil, apperr.Upstream("object storage", err)
	}

	e := &Evidence{
		OrgID:        up.OrgID,
		ControlID:    up.EntityID,
		FileName:     up.FileName,
		StoragePath:  key,
		FileSize:     int64(len(up.Data)),
		ContentType:  up.ContentType,
		UploadedBy:   up.ActorID,
		ReviewStatus: EvidenceStatusPending,
		ExpiresAt:    up.ExpiresAt,
	}
	if err := s.store.InsertEvidence(ctx, e); err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}

	url, err := s.presign(ctx, key)
	if err != nil {
		return nil, err
	}
	return &EvidenceUpload{Evidence: e, SignedURL: url}, nil
}

// UploadPolicyFile stores a document against a policy of the caller's organization
func (s *Service) UploadPolicyFile(ctx context.Context, up Upload) (*PolicyFileUpload, error) {
	if err := validateUpload(up); err != nil {
		return nil, err
	}

	ok, err := s.store.PolicyInOrg(ctx, up.EntityID, up.OrgID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("policy does not belong to your organization")
	}
	if err := s.quotas.CheckQuota(ctx, up.OrgID, orgs.ResourceStorageItems); err != nil {
		return nil, err
	}

	key := ObjectPath(up.OrgID, DomainPolicies, up.EntityID, up.FileName, s.now())
	if err := s.objects.Put(ctx, key, up.Data, up.ContentType); err != nil {
		return nil, apperr.Upstream("object storage", err)
	}

	f := &PolicyFile{
		PolicyID:    up.EntityID,
		FileName:    up.FileName,
		StoragePath: key,
		FileSize:    int64(len(up.Data)),
		ContentType: up.ContentType,
		Version:     up.Version,
		UploadedBy:  up.ActorID,
		Status:      PolicyFileStatusActive,
		ExpiresAt:   up.ExpiresAt,
	}
	if err := s.store.InsertPolicyFile(ctx, f); err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}

	url, err := s.presign(ctx, key)
	if err != nil {
		return nil, err
	}
	return &PolicyFileUpload{PolicyFile: f, SignedURL: url}, nil
}

// DeleteEvidence removes an evidence row and then its object. The path prefix
// is checked before anything is read, and the control's organization is
// checked again before the row is deleted.
func (s *Service) DeleteEvidence(ctx context.Context, del Deletion) (*Evidence, error) {
	if err := CheckOrgPath(del.OrgID, del.StoragePath); err != nil {
		return nil, err
	}

	e, controlOrg, err := s.store.GetEvidence(ctx, del.ID)
	if err != nil {
		return nil, err
	}
	if controlOrg != del.OrgID || e.OrgID != del.OrgID {
		return nil, apperr.Forbidden("evidence does not belong to your organization")
	}
	if e.StoragePath != del.StoragePath {
		return nil, apperr.BadRequest("storage_path does not match the evidence record")
	}

	if err := s.store.DeleteEvidence(ctx, del.OrgID, del.ID); err != nil {
		return nil, err
	}
	if err := s.objects.Delete(ctx, e.StoragePath); err != nil {
		return nil, apperr.Upstream("object storage", err)
	}
	return e, nil
}

// DeletePolicyFile removes a policy file row and then its object
func (s *Service) DeletePolicyFile(ctx context.Context, del Deletion) (*PolicyFile, error) {
	if err := CheckOrgPath(del.OrgID, del.StoragePath); err != nil {
		return nil, err
	}

	f, policyOrg, err := s.store.GetPolicyFile(ctx, del.ID)
	if err != nil {
		return nil, err
	}
	if policyOrg != del.OrgID {
		return nil, apperr.Forbidden("policy does not belong to your organization")
	}
	if f.StoragePath != del.StoragePath {
		return nil, apperr.BadRequest("storage_path does not match the policy file record")
	}

	if err := s.store.DeletePolicyFile(ctx, del.OrgID, del.ID); err != nil {
		return nil, err
	}
	if err := s.objects.Delete(ctx, f.StoragePath); err != nil {
		return nil, apperr.Upstream("object storage", err)
	}
	return f, nil
}

func (s *Service) presign(ctx context.Context, key string) (string, error) {
	url, err := s.objects.PresignGet(ctx, key)
	if err != nil {
		return "", apperr.Upstream("object storage", err)
	}
	return url, nil
}

// discardObject removes an object whose row could not be written. Failures
// only leave an orphan that is not counted toward usage.
func (s *Service) discardObject(ctx context.Context, key string) {
	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithField("storage_path", key).Warn("failed to remove orphaned object")
	}
}
