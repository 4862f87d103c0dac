package middleware

import (
	"errors"
	"net/http"
	"strings"

	"qr-tracker/pkg/logging"
)

// Authenticator guards the dashboard routes. Browsers authenticate with a
// session cookie; API clients may send an OIDC bearer token instead.
type Authenticator struct {
	enabled  bool
	sessions *SessionManager
	oauth    *OAuthMiddleware
	logger   *logging.Logger
}

// NewAuthenticator returns an Authenticator. With enabled false every
// request passes through anonymously. oauth may be nil.
func NewAuthenticator(enabled bool, sessions *SessionManager, oauth *OAuthMiddleware, logger *logging.Logger) *Authenticator {
	return &Authenticator{enabled: enabled, sessions: sessions, oauth: oauth, logger: logger}
}

func (a *Authenticator) Enabled() bool {
	return a.enabled
}

func (a *Authenticator) Sessions() *SessionManager {
	return a.sessions
}

func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") != "" && a.oauth != nil {
			claims, err := a.oauth.Authorize(r)
			if errors.Is(err, ErrInsufficientScope) {
				a.logger.Warn(r.Context(), "bearer token lacks scope", "error", err)
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			if err != nil {
				a.logger.Warn(r.Context(), "bearer token rejected", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(withBearerUser(r.Context(), claims.Sub)))
			return
		}

		if a.sessions != nil {
			if user, err := a.sessions.FromRequest(r); err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
				return
			}
		}

		if r.Method == http.MethodGet && !strings.HasPrefix(r.URL.Path, "/api/") {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}
