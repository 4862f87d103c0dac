package service

import "errors"

// Callers map these to HTTP statuses with errors.Is. Messages wrapped around
// the 4xx errors are safe to show to users; ErrUnavailable wraps internal
// detail and should not be echoed.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("service unavailable")
)
