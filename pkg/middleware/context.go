package middleware

import "context"

type contextKey string

const (
	userKey   contextKey = "user"
	bearerKey contextKey = "bearer"
)

// WithUser records the authenticated user on ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or "" when auth is
// disabled or the request is anonymous.
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey).(string); ok {
		return user
	}
	return ""
}

// ViaBearer reports whether the user authenticated with a bearer token
// rather than a browser session.
func ViaBearer(ctx context.Context) bool {
	v, _ := ctx.Value(bearerKey).(bool)
	return v
}

func withBearerUser(ctx context.Context, user string) context.Context {
	return context.WithValue(WithUser(ctx, user), bearerKey, true)
}
