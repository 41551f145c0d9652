// Package metrics exposes this worker's Prometheus metrics: heartbeat
// throughput, the unresponsive-worker count, and the V distribution the
// gatekeeper's tokenomic engine produces (spec.md §4.2, DOMAIN STACK).
//
// The teacher's cmd/kcn/main.go bridges its own internal go-metrics
// registry to Prometheus via metrics/prometheus.NewPrometheusProvider,
// but that bridge package itself never made it into the retrieved pack.
// This worker has no equivalent internal registry to bridge from, so it
// registers directly against github.com/prometheus/client_golang instead
// and serves it with the same promhttp.Handler()/http.ListenAndServe
// pairing the teacher's main.go uses — justified in DESIGN.md.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ccworker/pruntime-core/log"
)

var logger = log.NewModuleLogger("metrics")

var (
	// HeartbeatsObserved counts Heartbeat events the gatekeeper engine has
	// processed, labeled by whether they matched the FIFO front.
	HeartbeatsObserved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pruntime",
		Subsystem: "gatekeeper",
		Name:      "heartbeats_observed_total",
		Help:      "Heartbeat events processed by the gatekeeper engine.",
	}, []string{"result"})

	// WorkersUnresponsive is the current count of workers the gatekeeper
	// considers unresponsive (spec.md §4.2 "offline detection").
	WorkersUnresponsive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pruntime",
		Subsystem: "gatekeeper",
		Name:      "workers_unresponsive",
		Help:      "Workers currently past the heartbeat tolerance window.",
	})

	// VDistribution observes the V value attached to each heartbeat settle
	// entry the gatekeeper emits (MiningStop settles are not observed),
	// giving a running histogram of worker value.
	VDistribution = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pruntime",
		Subsystem: "gatekeeper",
		Name:      "worker_v",
		Help:      "Distribution of worker V values across settle reports.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
	})

	// RouterQueueDepth is the Message Router's outstanding queue depth at
	// the start of each tick (spec.md §4.4).
	RouterQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pruntime",
		Subsystem: "router",
		Name:      "queue_depth",
		Help:      "Messages pending in the router at tick start.",
	})
)

func init() {
	prometheus.MustRegister(HeartbeatsObserved, WorkersUnresponsive, VDistribution, RouterQueueDepth)
}

// Serve starts the Prometheus exporter endpoint, mirroring the teacher's
// promhttp.Handler()/http.ListenAndServe pairing. Intended to run in its
// own goroutine; logs and returns on failure rather than terminating the
// process, since metrics are not essential to worker correctness.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics exporter stopped", "addr", addr, "err", err)
	}
}
