package orgs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/storage/cache"
)

func limitRows(users, risks, frameworks, storage int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"max_users", "max_risks", "max_frameworks", "max_storage_items"}).
		AddRow(users, risks, frameworks, storage)
}

func expectPlan(mock sqlmock.Sqlmock, orgID, plan string) {
	mock.ExpectQuery("SELECT plan FROM organizations WHERE id").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow(plan))
}

func expectStorageCount(mock sqlmock.Sqlmock, orgID string, policies, evidence int64) {
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM policy_files WHERE storage_path LIKE").
		WithArgs("org/" + orgID + "/%").
		WillReturnRows(countRows(policies))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM control_evidences WHERE org_id").
		WithArgs(orgID).
		WillReturnRows(countRows(evidence))
}

func TestPlanLimits_DefaultsWhenMissing(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectQuery("FROM plan_limits WHERE plan").
		WithArgs("free").
		WillReturnRows(sqlmock.NewRows([]string{"max_users", "max_risks", "max_frameworks", "max_storage_items"}))

	limits, err := svc.PlanLimits(context.Background(), PlanFree)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanLimits(PlanFree), limits)
	assert.Equal(t, int64(3), limits.MaxUsers)
	assert.Equal(t, int64(50), limits.MaxRisks)
	assert.Equal(t, int64(2), limits.MaxFrameworks)
	assert.Equal(t, int64(20), limits.MaxStorageItems)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanLimits_ServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limitsCache := cache.New[PlanLimits]("plan_limits", cache.Options{TTL: time.Minute, Redis: rdb})
	svc, mock, _ := newMockService(t, WithPlanLimitsCache(limitsCache))

	mock.ExpectQuery("FROM plan_limits WHERE plan").
		WithArgs("pro").
		WillReturnRows(limitRows(25, 1000, 10, 500))

	for i := 0; i < 3; i++ {
		limits, err := svc.PlanLimits(context.Background(), PlanPro)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), limits.MaxRisks)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckQuota_Allowed(t *testing.T) {
	svc, mock, _ := newMockService(t)

	expectPlan(mock, "org-1", "free")
	mock.ExpectQuery("FROM plan_limits").WithArgs("free").WillReturnRows(limitRows(3, 50, 2, 20))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM profiles WHERE org_id").
		WithArgs("org-1").
		WillReturnRows(countRows(2))

	require.NoError(t, svc.CheckQuota(context.Background(), "org-1", ResourceUsers))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckQuota_DeniedAtLimit(t *testing.T) {
	svc, mock, _ := newMockService(t)

	expectPlan(mock, "org-1", "free")
	mock.ExpectQuery("FROM plan_limits").WithArgs("free").WillReturnRows(limitRows(3, 50, 2, 20))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM frameworks WHERE org_id").
		WithArgs("org-1").
		WillReturnRows(countRows(2))

	err := svc.CheckQuota(context.Background(), "org-1", ResourceFrameworks)
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))

	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, int64(2), qe.Current)
	assert.Equal(t, "quota exceeded: free plan allows 2 frameworks", qe.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckQuota_StorageItemsLabel(t *testing.T) {
	svc, mock, _ := newMockService(t)

	expectPlan(mock, "org-1", "free")
	mock.ExpectQuery("FROM plan_limits").WithArgs("free").WillReturnRows(limitRows(3, 50, 2, 20))
	expectStorageCount(mock, "org-1", 12, 8)

	err := svc.CheckQuota(context.Background(), "org-1", ResourceStorageItems)
	require.Error(t, err)
	assert.Equal(t, "quota exceeded: free plan allows 20 storage items", err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckQuota_UnknownOrganization(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectQuery("SELECT plan FROM organizations").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"plan"}))

	err := svc.CheckQuota(context.Background(), "missing", ResourceRisks)
	assert.Equal(t, apperr.KindNoOrganization, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageCountMatchesBetweenCheckQuotaAndUsage(t *testing.T) {
	svc, mock, _ := newMockService(t)

	expectPlan(mock, "org-1", "pro")
	mock.ExpectQuery("FROM plan_limits").WithArgs("pro").WillReturnRows(limitRows(25, 1000, 10, 500))
	expectStorageCount(mock, "org-1", 4, 7)

	status, err := svc.QuotaStatus(context.Background(), "org-1", ResourceStorageItems)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	svc2, mock2, _ := newMockService(t)
	mock2.MatchExpectationsInOrder(false)
	mock2.ExpectQuery("SELECT COUNT\\(\\*\\) FROM profiles").WithArgs("org-1").WillReturnRows(countRows(3))
	mock2.ExpectQuery("SELECT COUNT\\(\\*\\) FROM risks").WithArgs("org-1").WillReturnRows(countRows(10))
	mock2.ExpectQuery("SELECT COUNT\\(\\*\\) FROM frameworks").WithArgs("org-1").WillReturnRows(countRows(1))
	expectStorageCount(mock2, "org-1", 4, 7)
	mock2.ExpectQuery("SUM\\(file_size\\)").
		WithArgs("org/org-1/%", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(4096)))

	usage, err := svc2.GetUsage(context.Background(), "org-1")
	require.NoError(t, err)
	require.NoError(t, mock2.ExpectationsWereMet())

	assert.Equal(t, int64(11), status.Current)
	assert.Equal(t, status.Current, usage.StorageItems)
	assert.Equal(t, int64(3), usage.Users)
	assert.Equal(t, int64(10), usage.Risks)
	assert.Equal(t, int64(1), usage.Frameworks)
	assert.Equal(t, int64(4096), usage.StorageBytes)
}

func TestOrgPathPattern_EscapesWildcards(t *testing.T) {
	assert.Equal(t, "org/abc/%", orgPathPattern("abc"))
	assert.Equal(t, `org/a\_b\%c/%`, orgPathPattern("a_b%c"))
}
