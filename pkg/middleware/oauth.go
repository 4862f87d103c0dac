package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidBearer = errors.New("invalid bearer token")
	// ErrInsufficientScope means the token is valid but lacks a required scope.
	ErrInsufficientScope = errors.New("insufficient scope")
)

type OAuthConfig struct {
	IssuerURL      string
	Audience       string
	RequiredScopes []string
}

// OAuthMiddleware accepts OIDC-issued bearer tokens. The token subject
// becomes the request's user.
type OAuthMiddleware struct {
	verifier       *oidc.IDTokenVerifier
	requiredScopes []string
}

type AuthClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Scope string `json:"scope"`
}

// NewOAuthMiddleware discovers the issuer's keys. It needs network access to
// the issuer.
func NewOAuthMiddleware(ctx context.Context, config OAuthConfig) (*OAuthMiddleware, error) {
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: config.Audience})
	return NewOAuthMiddlewareWithVerifier(verifier, config.RequiredScopes...), nil
}

// NewOAuthMiddlewareWithVerifier uses a prepared verifier. Tokens must carry
// every one of requiredScopes in their "scope" claim.
func NewOAuthMiddlewareWithVerifier(verifier *oidc.IDTokenVerifier, requiredScopes ...string) *OAuthMiddleware {
	return &OAuthMiddleware{verifier: verifier, requiredScopes: requiredScopes}
}

// Verify checks the request's bearer token and returns its claims.
func (m *OAuthMiddleware) Verify(r *http.Request) (*AuthClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, ErrMissingBearer
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return nil, fmt.Errorf("%w: malformed authorization header", ErrInvalidBearer)
	}

	token, err := m.verifier.Verify(r.Context(), tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBearer, err)
	}
	var claims AuthClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBearer, err)
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidBearer)
	}
	return &claims, nil
}

// Authorize verifies the bearer token and checks it carries the required
// scopes.
func (m *OAuthMiddleware) Authorize(r *http.Request) (*AuthClaims, error) {
	claims, err := m.Verify(r)
	if err != nil {
		return nil, err
	}
	if !checkScopes(claims.Scope, m.requiredScopes) {
		return nil, fmt.Errorf("%w: need %s", ErrInsufficientScope, strings.Join(m.requiredScopes, " "))
	}
	return claims, nil
}

func checkScopes(tokenScopes string, requiredScopes []string) bool {
	scopeMap := make(map[string]bool)
	for _, s := range strings.Fields(tokenScopes) {
		scopeMap[s] = true
	}
	for _, required := range requiredScopes {
		if !scopeMap[required] {
			return false
		}
	}
	return true
}
