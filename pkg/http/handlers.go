package http

import (
	"bytes"
	"fmt"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/middleware"
	"qr-tracker/pkg/qr"
	"qr-tracker/pkg/security"
	"qr-tracker/pkg/service"
)

type Handler struct {
	tracker   *service.Tracker
	redirects *service.RedirectService
	dashboard *service.DashboardService
	auth      *middleware.Authenticator
	csrf      *security.CSRFTokenManager
	publicURL string
	logger    *logging.Logger
	pages     *pages
}

type HandlerDeps struct {
	Tracker   *service.Tracker
	Redirects *service.RedirectService
	Dashboard *service.DashboardService
	Auth      *middleware.Authenticator
	CSRF      *security.CSRFTokenManager
	// PublicURL overrides the request host in QR code URLs.
	PublicURL string
	Logger    *logging.Logger
}

func NewHandler(deps HandlerDeps) (*Handler, error) {
	p, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if deps.CSRF == nil {
		deps.CSRF = security.NewCSRFTokenManager()
	}
	if deps.Auth == nil {
		deps.Auth = middleware.NewAuthenticator(false, nil, nil, deps.Logger)
	}
	return &Handler{
		tracker:   deps.Tracker,
		redirects: deps.Redirects,
		dashboard: deps.Dashboard,
		auth:      deps.Auth,
		csrf:      deps.CSRF,
		publicURL: deps.PublicURL,
		logger:    deps.Logger,
		pages:     p,
	}, nil
}

// Track resolves a scanned code and redirects the visitor.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("id")
	if code == "" {
		code = chi.URLParam(r, "code")
	}

	dest, err := h.tracker.Track(r.Context(), code, service.Visitor{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch statusFor(err) {
		case http.StatusBadRequest:
			http.Error(w, "Missing ID", http.StatusBadRequest)
		case http.StatusNotFound:
			http.Error(w, "Invalid code", http.StatusNotFound)
		default:
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		}
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, "")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	token, err := h.auth.Sessions().Login(username, r.FormValue("password"))
	if err != nil {
		h.logger.LogAuthEvent(r.Context(), "login", username, false)
		h.renderLogin(w, r, http.StatusUnauthorized, "Invalid user name or password")
		return
	}
	h.logger.LogAuthEvent(r.Context(), "login", username, true)
	h.auth.Sessions().SetCookie(w, r, token)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.auth.Enabled() {
		h.auth.Sessions().ClearCookie(w)
	}
	if cookie, err := r.Cookie(security.SessionCookie); err == nil {
		h.csrf.InvalidateToken(cookie.Value)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, message string) {
	token, err := h.csrf.Token(security.SessionID(w, r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.render(w, r, status, h.pages.login, "login.html", loginPage{Title: "Sign in", CSRFToken: token, Error: message})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	dash, err := h.dashboard.Build(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.csrf.Token(security.SessionID(w, r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, h.pages.dashboard, "dashboard.html", dashboardPage{
		Title:     "Dashboard",
		CSRFToken: token,
		User:      user,
		Dashboard: dash,
	})
}

func (h *Handler) DashboardJSON(w http.ResponseWriter, r *http.Request) {
	dash, err := h.dashboard.Build(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dash); err != nil {
		h.logger.Error(r.Context(), "failed to encode dashboard", "error", err)
	}
}

func (h *Handler) AddRedirect(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if _, err := h.redirects.Create(r.Context(), user, r.FormValue("short_id"), r.FormValue("destination")); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) EditRedirect(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if err := h.redirects.Update(r.Context(), user, r.FormValue("short_id"), r.FormValue("new_destination")); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) DeleteRedirect(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if err := h.redirects.Delete(r.Context(), user, chi.URLParam(r, "short_id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) ViewQR(w http.ResponseWriter, r *http.Request) {
	h.serveQR(w, r, "png", qr.PreviewSize, false)
}

func (h *Handler) DownloadPNG(w http.ResponseWriter, r *http.Request) {
	h.serveQR(w, r, "png", qr.DownloadSize, true)
}

func (h *Handler) DownloadSVG(w http.ResponseWriter, r *http.Request) {
	h.serveQR(w, r, "svg", 10, true)
}

func (h *Handler) serveQR(w http.ResponseWriter, r *http.Request, format string, size int, attachment bool) {
	code := chi.URLParam(r, "short_id")
	if _, err := h.redirects.Owned(r.Context(), middleware.UserFromContext(r.Context()), code); err != nil {
		h.writeError(w, r, err)
		return
	}

	target := qr.TrackURL(h.baseURL(r), code)
	var (
		body        []byte
		err         error
		contentType string
	)
	if format == "svg" {
		body, err = qr.SVG(target, size)
		contentType = "image/svg+xml"
	} else {
		body, err = qr.PNG(target, size)
		contentType = "image/png"
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if attachment {
		setAttachment(w, code+"_qr."+format)
	}
	_, _ = w.Write(body)
}

func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	name := user
	if name == "" {
		name = "all"
	}

	var buf bytes.Buffer
	if _, err := h.dashboard.ExportCSV(r.Context(), &buf, user); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	setAttachment(w, fileSafe(name)+"_scan_logs.csv")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// clientIP returns the remote address host, as rewritten by chi's RealIP
// middleware when proxy headers are trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileSafe(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

func setAttachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}
