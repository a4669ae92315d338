// Package main generates sample metrics data for testing Grafana
// dashboards without using real production data.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards. Names and labels mirror the instruments
// in internal/analytics and internal/http.
var (
	// Analytics metrics
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "patternd_analytics_operation_duration_seconds",
			Help:    "Duration of analytics operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	spikesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patternd_analytics_spikes_total",
			Help: "Total number of recorded spike events",
		},
		[]string{"outcome"},
	)
	spikeConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "patternd_analytics_spike_conflicts_total",
			Help: "Potential updates dropped after exhausting retries",
		},
	)
	storeDegradations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "patternd_analytics_store_degradations_total",
			Help: "Read operations degraded to empty results by store failures",
		},
	)
	clustersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "patternd_analytics_clusters",
			Help: "Cluster count from the most recent partitioning",
		},
		[]string{"domain"},
	)
	anomaliesDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "patternd_analytics_anomalies_detected_total",
			Help: "Patterns scoring above the anomaly threshold",
		},
	)

	// HTTP server metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patternd_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "patternd_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		operationDuration,
		spikesTotal,
		spikeConflicts,
		storeDegradations,
		clustersGauge,
		anomaliesDetected,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	// Generate initial sample data
	generateSampleData()

	// Start background goroutine to continuously generate data
	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	// Serve metrics
	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'patternd-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

var (
	domains    = []string{"billing-agent", "support-agent", "infra-agent"}
	operations = []string{"edges", "mincut", "partition", "novelty", "pagerank", "links", "spike", "network", "reset", "anomalies"}
	routes     = []string{
		"/api/v1/patterns",
		"/api/v1/domains/:domain/edges",
		"/api/v1/domains/:domain/partition",
		"/api/v1/domains/:domain/pagerank",
		"/api/v1/domains/:domain/network",
		"/api/v1/patterns/:id/spike",
	}
)

func generateSampleData() {
	// Operation latency, weighted toward the cheap read paths
	for i := 0; i < 200; i++ {
		op := randomChoice(operations)
		latency := rand.Float64() * 0.05
		if op == "partition" || op == "mincut" {
			latency = rand.Float64() * 1.5
		}
		operationDuration.WithLabelValues(op).Observe(latency)
	}

	// Spike outcomes, mostly subthreshold
	for i := 0; i < 150; i++ {
		if rand.Float64() > 0.75 {
			spikesTotal.WithLabelValues("fired").Inc()
		} else {
			spikesTotal.WithLabelValues("subthreshold").Inc()
		}
	}
	for i := 0; i < 4; i++ {
		spikeConflicts.Inc()
	}
	for i := 0; i < 2; i++ {
		storeDegradations.Inc()
	}

	// Cluster counts per domain
	for _, domain := range domains {
		clustersGauge.WithLabelValues(domain).Set(float64(rand.Intn(8) + 1))
	}
	for i := 0; i < 6; i++ {
		anomaliesDetected.Inc()
	}

	// HTTP traffic
	methods := []string{"GET", "POST"}
	statuses := []string{"200", "201", "400", "404", "500"}
	for i := 0; i < 300; i++ {
		route := randomChoice(routes)
		method := randomChoice(methods)
		httpRequestsTotal.WithLabelValues(method, route, randomChoice(statuses)).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(rand.Float64() * 0.3)
	}
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Add some random activity
			if rand.Float64() > 0.3 {
				op := randomChoice(operations)
				operationDuration.WithLabelValues(op).Observe(rand.Float64() * 0.1)
			}
			if rand.Float64() > 0.5 {
				outcome := "subthreshold"
				if rand.Float64() > 0.75 {
					outcome = "fired"
				}
				spikesTotal.WithLabelValues(outcome).Inc()
			}
			if rand.Float64() > 0.95 {
				spikeConflicts.Inc()
			}
			if rand.Float64() > 0.9 {
				anomaliesDetected.Inc()
			}
			if rand.Float64() > 0.4 {
				route := randomChoice(routes)
				method := randomChoice([]string{"GET", "POST"})
				httpRequestsTotal.WithLabelValues(method, route, "200").Inc()
				httpRequestDuration.WithLabelValues(method, route).Observe(rand.Float64() * 0.3)
			}

			// Drift the cluster gauges
			for _, domain := range domains {
				clustersGauge.WithLabelValues(domain).Add(float64(rand.Intn(3) - 1))
			}
		}
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
