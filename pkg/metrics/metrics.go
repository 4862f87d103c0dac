// Package metrics holds the Prometheus collectors for the tracker. They are
// registered on the default registry and served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts track requests by outcome:
	// redirected, not_found, bad_request, unavailable, rate_limited.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrtrack_scans_total",
		Help: "Track requests by result.",
	}, []string{"result"})

	// ScanLogFailures counts scan log writes that failed and were swallowed.
	// target is local or archive.
	ScanLogFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrtrack_scan_log_failures_total",
		Help: "Scan log writes that failed.",
	}, []string{"target"})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrtrack_geo_lookups_total",
		Help: "Geolocation lookups by result (hit, cache_hit, error, skipped).",
	}, []string{"result"})

	SyncRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrtrack_sync_rows_total",
		Help: "Archive rows seen by the restore job (inserted, duplicate, skipped).",
	}, []string{"result"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qrtrack_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qrtrack_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"route", "method", "status"})
)

// Instrument records request latency labelled by the matched chi route
// pattern, which keeps label cardinality bounded.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
