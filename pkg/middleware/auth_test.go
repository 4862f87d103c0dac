package middleware

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-tracker/pkg/logging"
)

const (
	testIssuer   = "https://issuer.example.com"
	testAudience = "qr-tracker"
)

type oidcClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

func newTestOAuth(t *testing.T, requiredScopes ...string) (*OAuthMiddleware, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testAudience})
	return NewOAuthMiddlewareWithVerifier(verifier, requiredScopes...), key
}

func signBearer(t *testing.T, key *rsa.PrivateKey, subject, audience, scope string) string {
	t.Helper()
	claims := oidcClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: scope,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(UserFromContext(r.Context())))
}

func TestRequireUserDisabled(t *testing.T) {
	auth := NewAuthenticator(false, nil, nil, logging.Nop())
	w := httptest.NewRecorder()
	auth.RequireUser(http.HandlerFunc(echoUser)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRequireUserSession(t *testing.T) {
	sessions := newTestSessions(t)
	auth := NewAuthenticator(true, sessions, nil, logging.Nop())
	handler := auth.RequireUser(http.HandlerFunc(echoUser))

	token, err := sessions.Login("alice", "s3cret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "qrtrack_session", Value: token})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
	}{
		{"browser page redirects to login", http.MethodGet, "/dashboard", http.StatusSeeOther},
		{"api is unauthorized", http.MethodGet, "/api/dashboard", http.StatusUnauthorized},
		{"form post is unauthorized", http.MethodPost, "/add", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusSeeOther {
				assert.Equal(t, "/login", w.Header().Get("Location"))
			}
		})
	}
}

func TestRequireUserBearer(t *testing.T) {
	oauth, key := newTestOAuth(t)
	auth := NewAuthenticator(true, newTestSessions(t), oauth, logging.Nop())
	handler := auth.RequireUser(http.HandlerFunc(echoUser))

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantUser string
	}{
		{"valid token", "Bearer " + signBearer(t, key, "user-123", testAudience, ""), http.StatusOK, "user-123"},
		{"wrong audience", "Bearer " + signBearer(t, key, "user-123", "someone-else", ""), http.StatusUnauthorized, ""},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantUser != "" {
				assert.Equal(t, tt.wantUser, w.Body.String())
			}
		})
	}
}

func TestRequireUserBearerScopes(t *testing.T) {
	oauth, key := newTestOAuth(t, "redirects:write")
	auth := NewAuthenticator(true, newTestSessions(t), oauth, logging.Nop())
	handler := auth.RequireUser(http.HandlerFunc(echoUser))

	tests := []struct {
		name     string
		scope    string
		wantCode int
	}{
		{"has scope", "redirects:read redirects:write", http.StatusOK},
		{"missing scope", "redirects:read", http.StatusForbidden},
		{"no scopes", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/add", nil)
			req.Header.Set("Authorization", "Bearer "+signBearer(t, key, "user-123", testAudience, tt.scope))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/add", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckScopes(t *testing.T) {
	assert.True(t, checkScopes("a b", nil))
	assert.True(t, checkScopes("a b c", []string{"c", "a"}))
	assert.False(t, checkScopes("a b", []string{"a", "d"}))
	assert.False(t, checkScopes("", []string{"a"}))
}
