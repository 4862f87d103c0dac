package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/metrics"
	"qr-tracker/pkg/middleware"
	"qr-tracker/pkg/security"
)

type RouteOptions struct {
	// TrackRateLimit is the number of /track requests allowed per client IP
	// per TrackRateWindow. Zero disables the limit.
	TrackRateLimit  int
	TrackRateWindow time.Duration
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Without it the connection's remote address is used.
	TrustProxy bool
}

// NewRouter returns a router with the shared middleware stack installed.
func NewRouter(opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()
	if opts.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(logging.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Instrument)
	return r
}

// SetupTrackRoutes registers the public scan endpoints plus health and
// metrics. The redirect edge binary serves only these.
func SetupTrackRoutes(r chi.Router, handler *Handler, opts RouteOptions) {
	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	limited := r.With(trackLimiter(opts))
	limited.Get("/track", handler.Track)
	limited.Get("/r/{code}", handler.Track)
}

// SetupRoutes registers everything: scan endpoints, login and the dashboard.
func SetupRoutes(r chi.Router, handler *Handler, opts RouteOptions) {
	SetupTrackRoutes(r, handler, opts)

	csrf := csrfGuard(handler.csrf)

	r.Get("/login", handler.LoginPage)
	r.With(csrf).Post("/login", handler.Login)
	r.Get("/logout", handler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(handler.auth.RequireUser)

		r.Get("/", handler.Home)
		r.Get("/dashboard", handler.Dashboard)
		r.Get("/api/dashboard", handler.DashboardJSON)
		r.Get("/view-qr/{short_id}", handler.ViewQR)
		r.Get("/download-png/{short_id}", handler.DownloadPNG)
		r.Get("/download-svg/{short_id}", handler.DownloadSVG)
		r.Get("/export-csv", handler.ExportCSV)

		r.Group(func(r chi.Router) {
			r.Use(csrf)
			r.Post("/add", handler.AddRedirect)
			r.Post("/edit", handler.EditRedirect)
			r.Post("/delete/{short_id}", handler.DeleteRedirect)
		})
	})
}

func trackLimiter(opts RouteOptions) func(http.Handler) http.Handler {
	if opts.TrackRateLimit <= 0 || opts.TrackRateWindow <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(opts.TrackRateLimit, opts.TrackRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.ScansTotal.WithLabelValues("rate_limited").Inc()
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
		}),
	)
}

// csrfGuard checks CSRF tokens. Requests authenticated with a bearer token
// skip the check.
func csrfGuard(manager *security.CSRFTokenManager) func(http.Handler) http.Handler {
	check := security.CSRFMiddleware(manager)
	return func(next http.Handler) http.Handler {
		checked := check(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if middleware.ViaBearer(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			checked.ServeHTTP(w, r)
		})
	}
}
