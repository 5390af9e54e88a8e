package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convoctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "convoctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	controlPlaneRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convoctl",
			Subsystem: "controlplane",
			Name:      "requests_total",
			Help:      "Control-plane requests by operation and status (0 = transport error).",
		},
		[]string{"op", "status"},
	)
	controlPlaneDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "convoctl",
			Subsystem: "controlplane",
			Name:      "request_duration_seconds",
			Help:      "Control-plane request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
	startOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convoctl",
			Subsystem: "agent",
			Name:      "start_outcomes_total",
			Help:      "Start attempt outcomes.",
		},
		[]string{"outcome"},
	)
	retriesScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convoctl",
			Subsystem: "agent",
			Name:      "retries_scheduled_total",
			Help:      "Start retries scheduled after a conflict.",
		},
		[]string{"kind"},
	)
	agentJoined = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "convoctl",
			Subsystem: "agent",
			Name:      "joined",
			Help:      "1 while a remote agent session is owned by this process.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			controlPlaneRequests,
			controlPlaneDuration,
			startOutcomes,
			retriesScheduled,
			agentJoined,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordControlPlane records one remote call. status 0 marks a transport failure.
func RecordControlPlane(op string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	controlPlaneRequests.WithLabelValues(op, statusLabel).Inc()
	controlPlaneDuration.WithLabelValues(op, statusLabel).Observe(duration.Seconds())
}

func RecordStartOutcome(outcome string) {
	RegisterMetrics()
	startOutcomes.WithLabelValues(outcome).Inc()
}

func RecordRetryScheduled(kind string) {
	RegisterMetrics()
	retriesScheduled.WithLabelValues(kind).Inc()
}

func SetAgentJoined(joined bool) {
	RegisterMetrics()
	if joined {
		agentJoined.Set(1)
		return
	}
	agentJoined.Set(0)
}
