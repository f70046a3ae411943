package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the identify flow.
type Metrics struct {
	IdentifyTotal    *prometheus.CounterVec
	ClustersMerged   prometheus.Counter
	ConflictRetries  prometheus.Counter
	ConflictFailures prometheus.Counter
}

// New creates and registers all identify metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		IdentifyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "identify_requests_total",
			Help: "Identify operations by outcome.",
		}, []string{"outcome"}),
		ClustersMerged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "identify_clusters_merged_total",
			Help: "Total primary demotions performed by cluster merges.",
		}),
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "identify_conflict_retries_total",
			Help: "Identify attempts retried after a store conflict.",
		}),
		ConflictFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "identify_conflict_failures_total",
			Help: "Identify operations that exhausted the conflict retry budget.",
		}),
	}
}

// Outcome labels for IdentifyTotal.
const (
	OutcomePrimaryCreated   = "primary_created"
	OutcomeSecondaryAdded   = "secondary_added"
	OutcomeNoNewInformation = "no_new_information"
)

// IncrementIdentify records one completed identify operation.
func (m *Metrics) IncrementIdentify(outcome string) {
	m.IdentifyTotal.WithLabelValues(outcome).Inc()
}
