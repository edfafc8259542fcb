// Package analytics reports per-organization quota usage.
//
// # Overview
//
// The Aggregator snapshots every organization's usage and plan limits using
// the same counters the quota enforcer checks. The Alerter flags
// organizations at or near a limit, and the Reporter exports the snapshots as
// Prometheus gauges, optionally pushing them to a Pushgateway for the
// scheduled grc-usage-reporter job.
//
// # Usage Example
//
//	reporter := analytics.NewReporter(
//		analytics.NewAggregator(orgService, 4),
//		analytics.NewAlerter(analytics.DefaultWarnRatio),
//		logger,
//		analytics.ReporterConfig{PushURL: "http://pushgateway:9091"},
//	)
//	alerts, err := reporter.Run(ctx)
//
// # Gauges
//
//   - grc_org_usage{org_id, plan, resource}
//   - grc_org_quota_limit{org_id, plan, resource}
//   - grc_org_quota_utilization_ratio{org_id, plan, resource}
//   - grc_org_storage_bytes{org_id, plan}
//   - grc_quota_alerts{severity}
//   - grc_usage_report_last_success_timestamp_seconds
package analytics
