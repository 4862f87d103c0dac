package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionCookie identifies the browser a CSRF token was issued to.
	SessionCookie = "qrtrack_csrf"
	// FormField is the hidden form input carrying the token.
	FormField = "csrf_token"
	// Header may carry the token for script clients.
	Header = "X-CSRF-Token"

	tokenTTL = time.Hour
)

type CSRFTokenManager struct {
	mu     sync.Mutex
	tokens map[string]csrfToken
	now    func() time.Time
}

type csrfToken struct {
	value   string
	expires time.Time
}

func NewCSRFTokenManager() *CSRFTokenManager {
	return &CSRFTokenManager{
		tokens: make(map[string]csrfToken),
		now:    time.Now,
	}
}

// Token returns the live token for sessionID, issuing a new one when none
// exists or the old one expired.
func (c *CSRFTokenManager) Token(sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if tok, ok := c.tokens[sessionID]; ok && now.Before(tok.expires) {
		return tok.value, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	c.cleanupExpiredLocked(now)
	c.tokens[sessionID] = csrfToken{value: token, expires: now.Add(tokenTTL)}
	return token, nil
}

func (c *CSRFTokenManager) ValidateToken(sessionID, providedToken string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	storedToken, exists := c.tokens[sessionID]
	if !exists || providedToken == "" {
		return false
	}
	if c.now().After(storedToken.expires) {
		delete(c.tokens, sessionID)
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedToken.value), []byte(providedToken)) == 1
}

func (c *CSRFTokenManager) InvalidateToken(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, sessionID)
}

func (c *CSRFTokenManager) cleanupExpiredLocked(now time.Time) {
	for sessionID, token := range c.tokens {
		if now.After(token.expires) {
			delete(c.tokens, sessionID)
		}
	}
}

// CSRFMiddleware rejects state-changing requests without a valid token.
func CSRFMiddleware(tokenManager *CSRFTokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				cookie, err := r.Cookie(SessionCookie)
				if err != nil || cookie.Value == "" {
					http.Error(w, "Invalid CSRF token", http.StatusForbidden)
					return
				}
				token := r.Header.Get(Header)
				if token == "" {
					token = r.FormValue(FormField)
				}
				if !tokenManager.ValidateToken(cookie.Value, token) {
					http.Error(w, "Invalid CSRF token", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionID returns the browser's CSRF session id, setting the cookie on
// first use.
func SessionID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	sessionID := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})
	return sessionID
}
