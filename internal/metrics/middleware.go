package metrics

import (
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts API requests by route, method and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests served, by route, method and status code.",
	}, []string{"route", "method", "code"})

	// HTTPLatency is the time spent serving API requests, by route and method.
	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent serving API requests.",
		Buckets:   LatencyBuckets,
	}, []string{"route", "method"})

	// HTTPInFlight is the number of API requests currently being served.
	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "API requests currently being served.",
	})
)

// ObserveDuration records a completed timer into OperationDuration.
// Its signature matches observability.DurationObserver.
func ObserveDuration(label string, elapsed time.Duration) {
	OperationDuration.WithLabelValues(sanitizeLabel(label)).Observe(elapsed.Seconds())
}

// RecordFailure records a failed reasoning call by error type.
func RecordFailure(errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	ReasoningFailures.WithLabelValues(errorType).Inc()
}

// Middleware instruments next with the HTTP collectors, labelled by route.
// route should be the mux pattern, never the raw request path.
func Middleware(route string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"route": sanitizeLabel(route)}
	h := promhttp.InstrumentHandlerCounter(HTTPRequests.MustCurryWith(labels), next)
	h = promhttp.InstrumentHandlerDuration(HTTPLatency.MustCurryWith(labels), h)
	return promhttp.InstrumentHandlerInFlight(HTTPInFlight, h)
}

const maxLabelLen = 64

// sanitizeLabel maps value onto [A-Za-z0-9_.:/-], capped at maxLabelLen.
func sanitizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > maxLabelLen {
		value = value[:maxLabelLen]
	}
	value = strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxASCII, unicode.IsDigit(r) && r < unicode.MaxASCII:
			return r
		case strings.ContainsRune("-_.:/", r):
			return r
		}
		return '_'
	}, value), "_")
	if value == "" {
		return "unknown"
	}
	return value
}
