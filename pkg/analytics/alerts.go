package analytics

import (
	"fmt"

	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// Alert severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// DefaultWarnRatio is the utilization at which an organization is reported
// as approaching a quota
const DefaultWarnRatio = 0.8

// QuotaAlert reports an organization close to or at a plan limit
type QuotaAlert struct {
	OrgID    string
	OrgName  string
	Plan     orgs.PlanTier
	Resource orgs.ResourceClass
	Current  int64
	Limit    int64
	Severity string
}

// Message renders the alert for logs
func (a QuotaAlert) Message() string {
	return fmt.Sprintf("%s uses %d of %d %s on the %s plan", a.OrgName, a.Current, a.Limit, a.Resource, a.Plan)
}

// Alerter flags organizations approaching their quotas
type Alerter struct {
	warnRatio float64
}

// NewAlerter creates a new Alerter. Usage at or above warnRatio of a limit is
// a warning; usage at the limit is critical because the next create fails.
func NewAlerter(warnRatio float64) *Alerter {
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = DefaultWarnRatio
	}
	return &Alerter{warnRatio: warnRatio}
}

// Check returns the alerts for the given snapshots
func (a *Alerter) Check(snapshots []Snapshot) []QuotaAlert {
	var alerts []QuotaAlert
	for _, s := range snapshots {
		for _, class := range orgs.ResourceClasses {
			limit := s.Limits.Limit(class)
			if limit <= 0 {
				continue
			}
			current := s.Usage.Count(class)

			var severity string
			switch {
			case current >= limit:
				severity = SeverityCritical
			case s.Utilization(class) >= a.warnRatio:
				severity = SeverityWarning
			default:
				continue
			}
			alerts = append(alerts, QuotaAlert{
				OrgID:    s.Org.ID,
				OrgName:  s.Org.Name,
				Plan:     s.Org.Plan,
				Resource: class,
				Current:  current,
				Limit:    limit,
				Severity: severity,
			})
		}
	}
	return alerts
}
