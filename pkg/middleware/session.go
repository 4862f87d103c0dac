package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid session")
)

const sessionIssuer = "qr-tracker"

type SessionConfig struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	// Users maps user names to bcrypt password hashes.
	Users map[string]string
}

// SessionManager issues and checks HS256 session tokens stored in a cookie.
type SessionManager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	users      map[string][]byte
	// dummyHash keeps unknown-user logins as slow as wrong passwords.
	dummyHash []byte
	now       func() time.Time
}

func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("qr-tracker-dummy"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password check: %w", err)
	}
	users := make(map[string][]byte, len(cfg.Users))
	for name, hash := range cfg.Users {
		users[name] = []byte(hash)
	}
	return &SessionManager{
		secret:     cfg.Secret,
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		users:      users,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// Login checks credentials and returns a signed session token.
func (s *SessionManager) Login(username, password string) (string, error) {
	hash, ok := s.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.Issue(username)
}

func (s *SessionManager) Issue(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Parse validates a session token and returns its user.
func (s *SessionManager) Parse(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if _, known := s.users[claims.Subject]; !known {
		return "", fmt.Errorf("%w: unknown user", ErrInvalidSession)
	}
	return claims.Subject, nil
}

// FromRequest returns the user of the request's session cookie.
func (s *SessionManager) FromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrInvalidSession
	}
	return s.Parse(cookie.Value)
}

func (s *SessionManager) SetCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})
}

func (s *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
