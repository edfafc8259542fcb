package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// fakeSource serves fixed organizations and usage
type fakeSource struct {
	orgs    []orgs.OrgSummary
	usage   map[string]*orgs.Usage
	listErr error

	mu         sync.Mutex
	usageCalls []string
}

func (f *fakeSource) ListOrganizations(context.Context) ([]orgs.OrgSummary, error) {
	return f.orgs, f.listErr
}

func (f *fakeSource) GetUsage(_ context.Context, orgID string) (*orgs.Usage, error) {
	f.mu.Lock()
	f.usageCalls = append(f.usageCalls, orgID)
	f.mu.Unlock()
	u, ok := f.usage[orgID]
	if !ok {
		return nil, errors.New("connection reset")
	}
	return u, nil
}

var testLimits = map[orgs.PlanTier]orgs.PlanLimits{
	orgs.PlanFree: {Plan: orgs.PlanFree, MaxUsers: 3, MaxRisks: 50, MaxFrameworks: 2, MaxStorageItems: 20},
	orgs.PlanPro:  {Plan: orgs.PlanPro, MaxUsers: 25, MaxRisks: 1000, MaxFrameworks: 10, MaxStorageItems: 500},
}

func (f *fakeSource) PlanLimits(_ context.Context, plan orgs.PlanTier) (orgs.PlanLimits, error) {
	return testLimits[plan], nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		orgs: []orgs.OrgSummary{
			{ID: "org-a", Name: "Acme", Plan: orgs.PlanFree},
			{ID: "org-b", Name: "Globex", Plan: orgs.PlanPro},
		},
		usage: map[string]*orgs.Usage{
			"org-a": {Users: 3, Risks: 45, Frameworks: 1, StorageItems: 4, StorageBytes: 4096},
			"org-b": {Users: 10, Risks: 120, Frameworks: 4, StorageItems: 60, StorageBytes: 1 << 20},
		},
	}
}

func TestAggregator_Aggregate(t *testing.T) {
	source := newFakeSource()
	agg := NewAggregator(source, 2)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return fixed }

	snapshots, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	assert.Equal(t, "org-a", snapshots[0].Org.ID)
	assert.Equal(t, int64(45), snapshots[0].Usage.Risks)
	assert.Equal(t, testLimits[orgs.PlanFree], snapshots[0].Limits)
	assert.Equal(t, fixed, snapshots[0].TakenAt)
	assert.InDelta(t, 0.9, snapshots[0].Utilization(orgs.ResourceRisks), 1e-9)

	assert.Equal(t, "org-b", snapshots[1].Org.ID)
	assert.Equal(t, testLimits[orgs.PlanPro], snapshots[1].Limits)
	assert.ElementsMatch(t, []string{"org-a", "org-b"}, source.usageCalls)
}

func TestAggregator_Errors(t *testing.T) {
	source := newFakeSource()
	source.listErr = errors.New("db down")
	_, err := NewAggregator(source, 0).Aggregate(context.Background())
	assert.ErrorContains(t, err, "failed to list organizations")

	source = newFakeSource()
	delete(source.usage, "org-b")
	_, err = NewAggregator(source, 1).Aggregate(context.Background())
	assert.ErrorContains(t, err, "failed to get usage for org-b")
}

func TestSnapshot_UtilizationZeroLimit(t *testing.T) {
	s := Snapshot{Usage: orgs.Usage{Risks: 5}}
	assert.Zero(t, s.Utilization(orgs.ResourceRisks))
}
