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
			Namespace: "hivecouncil",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hivecouncil",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hivecouncil",
			Name:      "provider_calls_total",
			Help:      "Provider completion calls by phase and outcome.",
		},
		[]string{"provider", "phase", "outcome"},
	)
	providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hivecouncil",
			Name:      "provider_call_duration_seconds",
			Help:      "Provider completion call duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"provider", "phase"},
	)
	providerTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hivecouncil",
			Name:      "provider_tokens_total",
			Help:      "Estimated tokens exchanged with providers.",
		},
		[]string{"provider", "direction"},
	)
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hivecouncil",
			Name:      "sessions_total",
			Help:      "Council sessions by final status.",
		},
		[]string{"status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, providerCalls, providerDuration, providerTokens, sessionsTotal)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordProviderCall counts one completion call. outcome is "ok" or an error kind.
func RecordProviderCall(provider, phase, outcome string, duration time.Duration, inputTokens, outputTokens int) {
	RegisterMetrics()
	providerCalls.WithLabelValues(provider, phase, outcome).Inc()
	providerDuration.WithLabelValues(provider, phase).Observe(duration.Seconds())
	if inputTokens > 0 {
		providerTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		providerTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

func RecordSession(status string) {
	RegisterMetrics()
	sessionsTotal.WithLabelValues(status).Inc()
}
