package analytics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationDuration tracks how long engine operations take.
	// Labels: operation (edges, mincut, partition, novelty, pagerank,
	// links, spike, network, reset, anomalies)
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "patternd",
			Subsystem: "analytics",
			Name:      "operation_duration_seconds",
			Help:      "Duration of analytics operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// spikesTotal counts spike events by outcome.
	// Labels: outcome (fired, subthreshold)
	spikesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "analytics",
			Name:      "spikes_total",
			Help:      "Total number of recorded spike events",
		},
		[]string{"outcome"},
	)

	// spikeConflicts counts potential updates dropped after exhausting
	// compare-and-swap retries.
	spikeConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "analytics",
			Name:      "spike_conflicts_total",
			Help:      "Potential updates dropped after exhausting retries",
		},
	)

	// storeDegradations counts read paths that degraded to empty results
	// because the store was unreachable.
	storeDegradations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "analytics",
			Name:      "store_degradations_total",
			Help:      "Read operations degraded to empty results by store failures",
		},
	)

	// clustersGauge reports the cluster count produced by the most recent
	// partitioning per domain.
	clustersGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "patternd",
			Subsystem: "analytics",
			Name:      "clusters",
			Help:      "Cluster count from the most recent partitioning",
		},
		[]string{"domain"},
	)

	// anomaliesDetected counts patterns whose anomaly score exceeded the
	// caller's threshold.
	anomaliesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "analytics",
			Name:      "anomalies_detected_total",
			Help:      "Patterns scoring above the anomaly threshold",
		},
	)
)

func recordSpikeOutcome(fired bool) {
	if fired {
		spikesTotal.WithLabelValues("fired").Inc()
	} else {
		spikesTotal.WithLabelValues("subthreshold").Inc()
	}
}

// observeOp records one operation's duration. Use with defer and the start
// time captured at the defer statement.
func observeOp(op string, start time.Time) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
