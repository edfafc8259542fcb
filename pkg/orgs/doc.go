// Package orgs is the tenant boundary of the gateway: it resolves which
// organization a caller belongs to, reads the caller's role, enforces plan
// quotas and performs membership changes.
//
// # Resolution
//
// ResolveOrganization returns the profile's linked organization, repairs a
// missing link for an organization the caller owns, or (for bootstrap only)
// creates one. Concurrent bootstraps for one user converge on a single row
// through singleflight in-process and the unique owner/slug constraints
// across processes.
//
// # Quotas
//
// Every quota check and usage report goes through the same counters:
//
//	svc := orgs.NewPostgresService(db)
//	if err := svc.CheckQuota(ctx, orgID, orgs.ResourceRisks); err != nil {
//		if orgs.IsQuotaExceeded(err) {
//			// quota exceeded: free plan allows 50 risks
//		}
//	}
//
// Plan limits missing from plan_limits fall back to DefaultPlanLimits.
//
// # Membership
//
// Every write carries the organization id in its predicate. The owner can
// only change through TransferOwnership and is excluded from demotion and
// removal inside the SQL statements themselves.
package orgs
