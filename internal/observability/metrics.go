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
			Namespace: "emvtap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emvtap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emvtap",
			Subsystem: "cycle",
			Name:      "total",
			Help:      "Completed tap cycles by terminal state and failing stage.",
		},
		[]string{"state", "stage"},
	)
	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emvtap",
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Tap cycle duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"state"},
	)
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emvtap",
			Subsystem: "apdu",
			Name:      "exchanges_total",
			Help:      "Command/response exchanges by instruction and result.",
		},
		[]string{"instruction", "result"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emvtap",
			Subsystem: "apdu",
			Name:      "exchange_duration_seconds",
			Help:      "Command/response round trip in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"instruction"},
	)
	records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emvtap",
			Subsystem: "record",
			Name:      "reads_total",
			Help:      "READ RECORD attempts by result.",
		},
		[]string{"result"},
	)
	dolMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emvtap",
			Subsystem: "dol",
			Name:      "mismatches_total",
			Help:      "Data object list entries answered with a zero filled, truncated or padded value.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			cycles, cycleDuration,
			exchanges, exchangeDuration,
			records, dolMismatches,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCycle counts one finished cycle. stage is "none" on success.
func RecordCycle(state, stage string, duration time.Duration) {
	RegisterMetrics()
	cycles.WithLabelValues(state, stage).Inc()
	cycleDuration.WithLabelValues(state).Observe(duration.Seconds())
}

func RecordExchange(instruction, result string, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(instruction, result).Inc()
	exchangeDuration.WithLabelValues(instruction).Observe(duration.Seconds())
}

func RecordRecordRead(success bool) {
	RegisterMetrics()
	result := "ok"
	if !success {
		result = "failed"
	}
	records.WithLabelValues(result).Inc()
}

func RecordDOLMismatch(kind string) {
	RegisterMetrics()
	dolMismatches.WithLabelValues(kind).Inc()
}
