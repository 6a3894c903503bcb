package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AccessDecisions       *prometheus.CounterVec
	ChainAppends          *prometheus.CounterVec
	ChainAppendFailures   prometheus.Counter
	RelationalLogFailures prometheus.Counter
	FilesUploaded         prometheus.Counter
	SweepDeletedGrants    prometheus.Counter
	SweepPurgedEvents     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AccessDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "frametruth_access_decisions_total",
			Help: "Access control decisions by outcome (allowed, denied, error).",
		}, []string{"outcome"}),
		ChainAppends: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "frametruth_audit_chain_appends_total",
			Help: "Records appended to the hash-chained audit log, by channel.",
		}, []string{"channel"}),
		ChainAppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "frametruth_audit_chain_append_failures_total",
			Help: "Failed hash-chain appends. These fail the calling operation.",
		}),
		RelationalLogFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "frametruth_audit_relational_failures_total",
			Help: "Failed writes to the relational audit mirror (absorbed).",
		}),
		FilesUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "frametruth_files_uploaded_total",
			Help: "Total evidence files uploaded.",
		}),
		SweepDeletedGrants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "frametruth_sweep_deleted_grants_total",
			Help: "Expired permission grants removed by the maintenance sweep.",
		}),
		SweepPurgedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "frametruth_sweep_purged_events_total",
			Help: "Relational audit rows purged past the retention cutoff.",
		}),
	}
}

// AccessDecision records an access control decision outcome.
func (m *Metrics) AccessDecision(outcome string) {
	if m == nil {
		return
	}
	m.AccessDecisions.WithLabelValues(outcome).Inc()
}

// ChainAppend records a successful hash-chain append on a channel.
func (m *Metrics) ChainAppend(channel string) {
	if m == nil {
		return
	}
	m.ChainAppends.WithLabelValues(channel).Inc()
}
