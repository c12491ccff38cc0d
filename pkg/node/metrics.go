package node

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the small set of counters/gauges C7 exposes when
// METRICS_ENABLED is set. This is ambient instrumentation on top of a
// library the reference stack already depends on, not the REST/WebSocket
// façade the spec excludes.
type metrics struct {
	commitsTotal      prometheus.Counter
	preparesTotal     prometheus.Counter
	sinkFailuresTotal prometheus.Counter
	trustLevel        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, nodeID int) *metrics {
	labels := prometheus.Labels{"node_id": strconv.Itoa(nodeID)}
	m := &metrics{
		commitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_commits_total",
			Help:        "Total number of agreement rounds committed by this node.",
			ConstLabels: labels,
		}),
		preparesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_prepares_total",
			Help:        "Total number of PREPARE votes emitted by this node.",
			ConstLabels: labels,
		}),
		sinkFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_sink_failures_total",
			Help:        "Total number of commit sink delivery failures.",
			ConstLabels: labels,
		}),
		trustLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ledger_trust_level",
			Help:        "Local attestation trust level: 0=untrusted, 1=suspicious, 2=trusted.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.commitsTotal, m.preparesTotal, m.sinkFailuresTotal, m.trustLevel)
	return m
}
