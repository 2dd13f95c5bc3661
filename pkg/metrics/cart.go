package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records the cart state manager's mutation and reconciliation activity.
type CartMetrics struct {
	mutations       *prometheus.CounterVec
	remoteFailures  *prometheus.CounterVec
	discarded       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
}

// NewCartMetrics registers the cart metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations applied locally.",
	}, []string{"kind"})
	remoteFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_remote_failures_total",
		Help: "Cart service calls that failed after retries.",
	}, []string{"operation"})
	discarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_responses_discarded_total",
		Help: "Cart service responses discarded during reconciliation.",
	}, []string{"reason"})
	refreshDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_refresh_duration_seconds",
		Help:    "Duration of cart refreshes from the cart service.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(mutations, remoteFailures, discarded, refreshDuration)
	return &CartMetrics{
		mutations:       mutations,
		remoteFailures:  remoteFailures,
		discarded:       discarded,
		refreshDuration: refreshDuration,
	}
}

// IncMutation counts a locally applied mutation of the given kind.
func (c *CartMetrics) IncMutation(kind string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRemoteFailure counts a failed cart service call.
func (c *CartMetrics) IncRemoteFailure(operation string) {
	if c == nil || c.remoteFailures == nil {
		return
	}
	c.remoteFailures.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncDiscarded counts a response dropped by reconciliation.
func (c *CartMetrics) IncDiscarded(reason string) {
	if c == nil || c.discarded == nil {
		return
	}
	c.discarded.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveRefresh records how long a refresh round-trip took.
func (c *CartMetrics) ObserveRefresh(duration time.Duration) {
	if c == nil || c.refreshDuration == nil {
		return
	}
	c.refreshDuration.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
