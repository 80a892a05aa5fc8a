package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values for frame metrics.
const (
	DirectionIn  = "in"
	DirectionOut = "out"

	KindPayload = "payload"
	KindError   = "error"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syndesi",
			Name:      "frames_total",
			Help:      "Frames read from or written to a controller.",
		},
		[]string{"node", "direction", "kind"},
	)
	frameBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "syndesi",
			Name:      "frame_bytes",
			Help:      "Wire size of frames in bytes.",
			Buckets:   prometheus.ExponentialBuckets(4, 4, 8),
		},
		[]string{"node", "direction"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syndesi",
			Name:      "dispatch_total",
			Help:      "Inbound frames by router classification.",
		},
		[]string{"node", "class"},
	)
	errorFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syndesi",
			Name:      "error_frames_total",
			Help:      "Error frames sent to peers by code.",
		},
		[]string{"node", "code"},
	)
	pendingRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "syndesi",
			Name:      "pending_requests",
			Help:      "Outbound requests awaiting a reply.",
		},
		[]string{"node"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syndesi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "syndesi",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesTotal,
			frameBytes,
			dispatchTotal,
			errorFramesTotal,
			pendingRequests,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordFrame(node, direction string, isError bool, size int) {
	RegisterMetrics()
	kind := KindPayload
	if isError {
		kind = KindError
	}
	framesTotal.WithLabelValues(node, direction, kind).Inc()
	frameBytes.WithLabelValues(node, direction).Observe(float64(size))
}

func RecordDispatch(node, class string) {
	RegisterMetrics()
	dispatchTotal.WithLabelValues(node, class).Inc()
}

func RecordErrorFrame(node, code string) {
	RegisterMetrics()
	errorFramesTotal.WithLabelValues(node, code).Inc()
}

func SetPendingRequests(node string, n int) {
	RegisterMetrics()
	pendingRequests.WithLabelValues(node).Set(float64(n))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
