package analytics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/orgs"
)

// Reporter exports usage snapshots as Prometheus gauges
type Reporter struct {
	aggregator *Aggregator
	alerter    *Alerter
	logger     *observability.Logger
	registry   *prometheus.Registry

	usage        *prometheus.GaugeVec
	limit        *prometheus.GaugeVec
	utilization  *prometheus.GaugeVec
	storageBytes *prometheus.GaugeVec
	alerts       *prometheus.GaugeVec
	lastSuccess  prometheus.Gauge

	pushURL string
	pushJob string
}

// ReporterConfig configures a Reporter
type ReporterConfig struct {
	// PushURL is the Pushgateway address; empty disables pushing
	PushURL string
	PushJob string
}

// NewReporter creates a reporter with its own registry
func NewReporter(aggregator *Aggregator, alerter *Alerter, logger *observability.Logger, cfg ReporterConfig) *Reporter {
	if cfg.PushJob == "" {
		cfg.PushJob = "grc_usage_reporter"
	}
	labels := []string{"org_id", "plan", "resource"}
	r := &Reporter{
		aggregator: aggregator,
		alerter:    alerter,
		logger:     logger,
		registry:   prometheus.NewRegistry(),
		usage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grc_org_usage",
			Help: "Current count of a quota-counted resource per organization",
		}, labels),
		limit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grc_org_quota_limit",
			Help: "Plan limit of a quota-counted resource per organization",
		}, labels),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grc_org_quota_utilization_ratio",
			Help: "Usage divided by plan limit",
		}, labels),
		storageBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grc_org_storage_bytes",
			Help: "Total size of stored evidence and policy files per organization",
		}, []string{"org_id", "plan"}),
		alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grc_quota_alerts",
			Help: "Organizations near or at a quota, by severity",
		}, []string{"severity"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grc_usage_report_last_success_timestamp_seconds",
			Help: "Unix time of the last completed usage report",
		}),
		pushURL: cfg.PushURL,
		pushJob: cfg.PushJob,
	}
	r.registry.MustRegister(r.usage, r.limit, r.utilization, r.storageBytes, r.alerts, r.lastSuccess)
	return r
}

// Registry returns the registry holding the report gauges
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}

// Run computes one report, updates the gauges, logs quota alerts and pushes
// the result when a Pushgateway is configured
func (r *Reporter) Run(ctx context.Context) ([]QuotaAlert, error) {
	snapshots, err := r.aggregator.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	// Organizations that disappeared since the last run drop out.
	r.usage.Reset()
	r.limit.Reset()
	r.utilization.Reset()
	r.storageBytes.Reset()
	r.alerts.Reset()

	var takenAt int64
	for _, s := range snapshots {
		plan := string(s.Org.Plan)
		for _, class := range orgs.ResourceClasses {
			resource := string(class)
			r.usage.WithLabelValues(s.Org.ID, plan, resource).Set(float64(s.Usage.Count(class)))
			r.limit.WithLabelValues(s.Org.ID, plan, resource).Set(float64(s.Limits.Limit(class)))
			r.utilization.WithLabelValues(s.Org.ID, plan, resource).Set(s.Utilization(class))
		}
		r.storageBytes.WithLabelValues(s.Org.ID, plan).Set(float64(s.Usage.StorageBytes))
		takenAt = s.TakenAt.Unix()
	}

	alerts := r.alerter.Check(snapshots)
	r.alerts.WithLabelValues(SeverityWarning).Set(0)
	r.alerts.WithLabelValues(SeverityCritical).Set(0)
	for _, a := range alerts {
		r.alerts.WithLabelValues(a.Severity).Inc()
		r.logger.WithFields(map[string]interface{}{
			"org_id":   a.OrgID,
			"plan":     string(a.Plan),
			"resource": string(a.Resource),
			"current":  a.Current,
			"limit":    a.Limit,
			"severity": a.Severity,
		}).Warn(a.Message())
	}

	if takenAt > 0 {
		r.lastSuccess.Set(float64(takenAt))
	} else {
		r.lastSuccess.SetToCurrentTime()
	}

	r.logger.WithFields(map[string]interface{}{
		"organizations": len(snapshots),
		"alerts":        len(alerts),
	}).Info("Usage report completed")

	if r.pushURL != "" {
		if err := push.New(r.pushURL, r.pushJob).Gatherer(r.registry).PushContext(ctx); err != nil {
			return alerts, fmt.Errorf("failed to push usage metrics: %w", err)
		}
	}
	return alerts, nil
}
