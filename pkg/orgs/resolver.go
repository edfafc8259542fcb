package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/storage/postgres"
)

const (
	constraintOrgSlug  = "organizations_slug_key"
	constraintOrgOwner = "organizations_owner_id_key"
)

// resolveTimeout bounds a shared resolution once it is detached from the
// request that started it
const resolveTimeout = 15 * time.Second

// ResolveOrganization determines the caller's single current organization.
//
// Order: an organization already linked on the profile; an organization the
// caller owns but whose link is missing (the link is repaired); otherwise,
// when opts.Create is set, a new organization owned by the caller. Duplicate
// in-process calls for one actor share a single resolution, and concurrent
// creations in other processes converge through the unique owner and slug
// constraints.
func (s *PostgresService) ResolveOrganization(ctx context.Context, actor Actor, opts ResolveOptions) (*Resolution, error) {
	if actor.UserID == "" {
		return nil, apperr.Unauthorized("missing actor")
	}

	key := actor.UserID
	if opts.Create {
		key += ":create"
	}
	// The resolution is shared by every joined caller, so it runs detached
	// from the cancellation of whichever request started it.
	ch := s.resolving.DoChan(key, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return s.resolve(rctx, actor, opts)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Resolution)
		return &res, nil
	}
}

func (s *PostgresService) resolve(ctx context.Context, actor Actor, opts ResolveOptions) (*Resolution, error) {
	profile, err := s.GetProfile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if profile != nil && profile.OrgID != nil {
		org, err := s.GetOrganization(ctx, *profile.OrgID)
		if err != nil {
			return nil, err
		}
		return &Resolution{OrgID: org.ID, Organization: org, Profile: profile}, nil
	}

	owned, err := s.organizationOwnedBy(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if owned != nil {
		return s.adopt(ctx, actor, owned, false)
	}

	if !opts.Create {
		return nil, apperr.NoOrganization()
	}

	name := organizationName(profile, opts.OrgName, actor)
	slug := Slugify(name)

	org, err := s.insertOrganization(ctx, name, slug, actor.UserID)
	if postgres.IsUniqueViolation(err) {
		// A concurrent call may have created the actor's organization.
		if owned, lookupErr := s.organizationOwnedBy(ctx, actor.UserID); lookupErr != nil {
			return nil, lookupErr
		} else if owned != nil {
			return s.adopt(ctx, actor, owned, false)
		}
		if !postgres.IsUniqueViolation(err, constraintOrgSlug) {
			return nil, fmt.Errorf("failed to create organization: %w", err)
		}
		org, err = s.insertOrganization(ctx, name, slug+"-"+slugSuffix(), actor.UserID)
		if postgres.IsUniqueViolation(err, constraintOrgOwner) {
			owned, lookupErr := s.organizationOwnedBy(ctx, actor.UserID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if owned != nil {
				return s.adopt(ctx, actor, owned, false)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	return s.adopt(ctx, actor, org, true)
}

// adopt links the actor's profile to org as admin and returns the resolution.
// If the profile was bound to a different organization in the meantime, that
// binding wins.
func (s *PostgresService) adopt(ctx context.Context, actor Actor, org *Organization, created bool) (*Resolution, error) {
	profile, err := s.linkOwnerProfile(ctx, actor, org.ID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		current, err := s.GetProfile(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.OrgID == nil {
			return nil, apperr.NoOrganization()
		}
		linked, err := s.GetOrganization(ctx, *current.OrgID)
		if err != nil {
			return nil, err
		}
		return &Resolution{OrgID: linked.ID, Organization: linked, Profile: current}, nil
	}

	if s.logger != nil && created {
		s.logger.WithFields(map[string]interface{}{
			"org_id":  org.ID,
			"user_id": actor.UserID,
			"slug":    org.Slug,
		}).Info("organization created")
	}
	return &Resolution{OrgID: org.ID, Organization: org, Profile: profile, Created: created}, nil
}

func (s *PostgresService) insertOrganization(ctx context.Context, name, slug, ownerID string) (*Organization, error) {
	query := `
		INSERT INTO organizations (name, slug, owner_id, plan, plan_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + organizationColumns
	return scanOrganization(s.db.QueryRowContext(ctx, query, name, slug, ownerID, PlanFree, PlanStatusNone))
}

// linkOwnerProfile upserts the actor's profile as admin of orgID. It returns
// nil when the profile is already bound to another organization.
func (s *PostgresService) linkOwnerProfile(ctx context.Context, actor Actor, orgID string) (*Profile, error) {
	query := `
		INSERT INTO profiles (id, org_id, role, email, full_name)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE
		SET org_id = EXCLUDED.org_id,
		    role = EXCLUDED.role,
		    email = COALESCE(profiles.email, EXCLUDED.email),
		    full_name = COALESCE(profiles.full_name, EXCLUDED.full_name),
		    updated_at = now()
		WHERE profiles.org_id IS NULL OR profiles.org_id = EXCLUDED.org_id
		RETURNING ` + profileColumns
	p, err := scanProfile(s.db.QueryRowContext(ctx, query,
		actor.UserID, orgID, auth.RoleAdmin, actor.Email, actor.DisplayName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to link profile: %w", err)
	}
	return p, nil
}

// organizationName picks the pending sign-up name, then the supplied name,
// then a name derived from the actor.
func organizationName(profile *Profile, supplied string, actor Actor) string {
	if profile != nil && profile.PendingOrgName != nil {
		if name := strings.TrimSpace(*profile.PendingOrgName); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(supplied); name != "" {
		return name
	}

	base := strings.TrimSpace(actor.DisplayName)
	if base == "" && profile != nil && profile.FullName != nil {
		base = strings.TrimSpace(*profile.FullName)
	}
	if base == "" {
		base, _, _ = strings.Cut(actor.Email, "@")
	}
	if base == "" {
		return "My Organization"
	}
	return base + "'s Organization"
}

// Slugify lower-cases name and collapses every run of characters outside
// [a-z0-9] into a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return "organization"
	}
	return b.String()
}

func slugSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
