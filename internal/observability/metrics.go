package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ranctl"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	linkMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "messages_total",
			Help:      "Protocol messages exchanged with agents.",
		},
		[]string{"direction", "kind"},
	)
	linkBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "bytes_total",
			Help:      "Framed bytes exchanged with agents.",
		},
		[]string{"direction"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "decode_failures_total",
			Help:      "Frames dropped because they failed to decode or validate.",
		},
		[]string{"reason"},
	)
	heartbeatClosures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "heartbeat_closures_total",
			Help:      "Connections closed because their agent stopped sending HELLO.",
		},
	)
	boundAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "bound",
			Help:      "Agents currently bound to a connection.",
		},
	)
	liveModules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "modules",
			Name:      "live",
			Help:      "Installed modules per worker.",
		},
		[]string{"worker"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linkMessages,
			linkBytes,
			decodeFailures,
			heartbeatClosures,
			boundAgents,
			liveModules,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordMessage counts one message; direction is "uplink" or "downlink".
func RecordMessage(direction, kind string, bytes int) {
	RegisterMetrics()
	linkMessages.WithLabelValues(direction, kind).Inc()
	linkBytes.WithLabelValues(direction).Add(float64(bytes))
}

func RecordDecodeFailure(reason string) {
	RegisterMetrics()
	decodeFailures.WithLabelValues(reason).Inc()
}

func RecordHeartbeatClosure() {
	RegisterMetrics()
	heartbeatClosures.Inc()
}

func AgentBound() {
	RegisterMetrics()
	boundAgents.Inc()
}

func AgentUnbound() {
	RegisterMetrics()
	boundAgents.Dec()
}

func SetLiveModules(worker string, n int) {
	RegisterMetrics()
	liveModules.WithLabelValues(worker).Set(float64(n))
}
