package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// UsageSource is the part of the organization service the aggregator reads
type UsageSource interface {
	ListOrganizations(ctx context.Context) ([]orgs.OrgSummary, error)
	GetUsage(ctx context.Context, orgID string) (*orgs.Usage, error)
	PlanLimits(ctx context.Context, plan orgs.PlanTier) (orgs.PlanLimits, error)
}

// Snapshot is one organization's usage against its plan at a point in time
type Snapshot struct {
	Org     orgs.OrgSummary
	Usage   orgs.Usage
	Limits  orgs.PlanLimits
	TakenAt time.Time
}

// Utilization returns current/limit for class, 0 when the limit is 0
func (s Snapshot) Utilization(class orgs.ResourceClass) float64 {
	limit := s.Limits.Limit(class)
	if limit <= 0 {
		return 0
	}
	return float64(s.Usage.Count(class)) / float64(limit)
}

// Aggregator computes usage snapshots for every organization
type Aggregator struct {
	source      UsageSource
	concurrency int
	now         func() time.Time
}

// NewAggregator creates a new aggregator reading at most concurrency
// organizations at once
func NewAggregator(source UsageSource, concurrency int) *Aggregator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Aggregator{source: source, concurrency: concurrency, now: time.Now}
}

// Aggregate returns one snapshot per organization, in listing order. Usage
// is counted with the same rule the quota enforcer uses.
func (a *Aggregator) Aggregate(ctx context.Context) ([]Snapshot, error) {
	summaries, err := a.source.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	takenAt := a.now().UTC()
	snapshots := make([]Snapshot, len(summaries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, org := range summaries {
		g.Go(func() error {
			usage, err := a.source.GetUsage(gctx, org.ID)
			if err != nil {
				return fmt.Errorf("failed to get usage for %s: %w", org.ID, err)
			}
			limits, err := a.source.PlanLimits(gctx, org.Plan)
			if err != nil {
				return fmt.Errorf("failed to get %s plan limits: %w", org.Plan, err)
			}
			snapshots[i] = Snapshot{Org: org, Usage: *usage, Limits: limits, TakenAt: takenAt}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}
