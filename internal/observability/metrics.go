package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/durable/internal/object"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durable",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "durable",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	dispatchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durable",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Object dispatches by binding, operation and result kind.",
		},
		[]string{"binding", "op", "result"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "durable",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Object dispatch duration in seconds, including per-key lock wait.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"binding", "op"},
	)
	lifecycleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durable",
			Subsystem: "lifecycle",
			Name:      "outcomes_total",
			Help:      "Lifecycle resolutions by binding and status.",
		},
		[]string{"binding", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, dispatchRequests, dispatchDuration, lifecycleOutcomes)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDispatch counts one dispatch. result is "ok" or a dispatch error
// kind name.
func RecordDispatch(binding, op, result string, duration time.Duration) {
	RegisterMetrics()
	dispatchRequests.WithLabelValues(binding, op, result).Inc()
	dispatchDuration.WithLabelValues(binding, op).Observe(duration.Seconds())
}

// LifecycleObserver reports lifecycle outcomes for one binding.
type LifecycleObserver struct {
	Binding string
}

var _ object.Observer = LifecycleObserver{}

func (o LifecycleObserver) ObserveLifecycle(status object.Status) {
	RegisterMetrics()
	lifecycleOutcomes.WithLabelValues(o.Binding, status.String()).Inc()
}
