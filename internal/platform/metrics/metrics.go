package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	OrganizationsCreated prometheus.Counter
	OrganizationsDeleted prometheus.Counter
	DomainVerifications  *prometheus.CounterVec
	MembersPromoted      prometheus.Counter
	ReconcileDuration    prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		OrganizationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examduler_organizations_created_total",
			Help: "Total number of organizations created",
		}),
		OrganizationsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examduler_organizations_deleted_total",
			Help: "Total number of organizations deleted",
		}),
		DomainVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examduler_domain_verifications_total",
			Help: "Domain ownership verification attempts by method and result",
		}, []string{"method", "result"}),
		MembersPromoted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examduler_members_promoted_total",
			Help: "Users promoted from pending to verified after domain verification",
		}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "examduler_org_reconcile_duration_seconds",
			Help:    "Latency of organization reconciliation transactions",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveReconcile records one reconciliation transaction duration.
func (m *Metrics) ObserveReconcile(start time.Time) {
	if m == nil {
		return
	}
	m.ReconcileDuration.Observe(time.Since(start).Seconds())
}

// RecordVerification records one verification attempt outcome.
func (m *Metrics) RecordVerification(method, result string) {
	if m == nil {
		return
	}
	m.DomainVerifications.WithLabelValues(method, result).Inc()
}
