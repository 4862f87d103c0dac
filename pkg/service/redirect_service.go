package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qr-tracker/pkg/cache"
	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/storage"
)

// RedirectService manages the redirect table and resolves short codes
// through a short-lived cache.
//
// An empty owner argument means "no identity" (auth disabled) and bypasses
// ownership checks. Entries without an owner are shared by every user.
type RedirectService struct {
	store    storage.RedirectStorage
	scans    storage.ScanStorage
	cache    cache.RedirectCacheInterface
	cacheTTL time.Duration
	logger   *logging.Logger
}

func NewRedirectService(store storage.RedirectStorage, scans storage.ScanStorage, c cache.RedirectCacheInterface, cacheTTL time.Duration, logger *logging.Logger) *RedirectService {
	if c == nil {
		c = cache.NopRedirectCache{}
	}
	return &RedirectService{
		store:    store,
		scans:    scans,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func visibleTo(entryOwner, owner string) bool {
	return owner == "" || entryOwner == "" || entryOwner == owner
}

// Resolve returns the destination for code. Cache errors degrade to a store
// read; store errors other than not-found surface as ErrUnavailable.
func (s *RedirectService) Resolve(ctx context.Context, code string) (string, error) {
	if cached, err := s.cache.Get(ctx, code); err == nil && cached != nil {
		return cached.Destination, nil
	} else if err != nil {
		s.logger.Warn(ctx, "redirect cache read failed", "code", code, "error", err)
	}

	// taken before the store read so a concurrent write voids the Set below
	version, verr := s.cache.Version(ctx, code)
	if verr != nil {
		s.logger.Warn(ctx, "redirect cache version read failed", "code", code, "error", verr)
	}

	redirect, err := s.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: invalid code", ErrNotFound)
		}
		return "", fmt.Errorf("%w: resolve %q: %v", ErrUnavailable, code, err)
	}

	if verr == nil {
		entry := &cache.CachedRedirect{Destination: redirect.Destination, Owner: redirect.Owner}
		if err := s.cache.Set(ctx, code, entry, s.cacheTTL, version); err != nil {
			s.logger.Warn(ctx, "redirect cache write failed", "code", code, "error", err)
		}
	}
	return redirect.Destination, nil
}

func (s *RedirectService) Get(ctx context.Context, code string) (*storage.Redirect, error) {
	redirect, err := s.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no redirect for %q", ErrNotFound, code)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return redirect, nil
}

// List returns the entries visible to owner.
func (s *RedirectService) List(ctx context.Context, owner string) ([]storage.Redirect, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list redirects: %v", ErrUnavailable, err)
	}
	out := make([]storage.Redirect, 0, len(all))
	for _, r := range all {
		if visibleTo(r.Owner, owner) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Create inserts a new entry. A duplicate short code is rejected with
// ErrConflict and leaves the existing entry untouched.
func (s *RedirectService) Create(ctx context.Context, owner, code, destination string) (*storage.Redirect, error) {
	in := redirectInput{ShortCode: strings.TrimSpace(code), Destination: strings.TrimSpace(destination)}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, in.describe(err))
	}

	redirect := &storage.Redirect{ShortCode: in.ShortCode, Destination: in.Destination, Owner: owner}
	if err := s.store.Create(ctx, redirect); err != nil {
		s.logger.LogRedirectOperation(ctx, "create", in.ShortCode, false)
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%w: short code %q already exists", ErrConflict, in.ShortCode)
		}
		return nil, fmt.Errorf("%w: create redirect: %v", ErrUnavailable, err)
	}
	s.invalidate(ctx, in.ShortCode)

	s.logger.LogRedirectOperation(ctx, "create", in.ShortCode, true)
	return redirect, nil
}

// Update replaces the destination of an existing entry.
func (s *RedirectService) Update(ctx context.Context, owner, code, destination string) error {
	in := redirectInput{ShortCode: strings.TrimSpace(code), Destination: strings.TrimSpace(destination)}
	if in.ShortCode == "" {
		return fmt.Errorf("%w: short_id is required", ErrBadRequest)
	}
	if err := validate.Var(in.Destination, "required,max=2048"); err != nil {
		if in.Destination == "" {
			return fmt.Errorf("%w: destination is required", ErrBadRequest)
		}
		return fmt.Errorf("%w: destination is too long", ErrBadRequest)
	}

	if _, err := s.Owned(ctx, owner, in.ShortCode); err != nil {
		return err
	}
	if err := s.store.Update(ctx, in.ShortCode, in.Destination); err != nil {
		s.logger.LogRedirectOperation(ctx, "update", in.ShortCode, false)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: no redirect for %q", ErrNotFound, in.ShortCode)
		}
		return fmt.Errorf("%w: update redirect: %v", ErrUnavailable, err)
	}
	s.invalidate(ctx, in.ShortCode)

	s.logger.LogRedirectOperation(ctx, "update", in.ShortCode, true)
	return nil
}

// Delete removes an entry together with all of its scan events. Scans go
// first so an interrupted delete never leaves orphaned log rows behind; a
// retry finishes the job.
func (s *RedirectService) Delete(ctx context.Context, owner, code string) error {
	if _, err := s.Owned(ctx, owner, code); err != nil {
		return err
	}

	if _, err := s.scans.DeleteByCode(ctx, code); err != nil {
		s.logger.LogRedirectOperation(ctx, "delete", code, false)
		return fmt.Errorf("%w: delete scan events: %v", ErrUnavailable, err)
	}
	if err := s.store.Delete(ctx, code); err != nil {
		s.logger.LogRedirectOperation(ctx, "delete", code, false)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: no redirect for %q", ErrNotFound, code)
		}
		return fmt.Errorf("%w: delete redirect: %v", ErrUnavailable, err)
	}
	s.invalidate(ctx, code)

	s.logger.LogRedirectOperation(ctx, "delete", code, true)
	return nil
}

// Seed inserts entries that do not exist yet and returns how many were added.
func (s *RedirectService) Seed(ctx context.Context, entries []storage.Redirect) (int, error) {
	added := 0
	for _, e := range entries {
		_, err := s.Create(ctx, e.Owner, e.ShortCode, e.Destination)
		switch {
		case err == nil:
			added++
		case errors.Is(err, ErrConflict):
		default:
			return added, fmt.Errorf("seed %q: %w", e.ShortCode, err)
		}
	}
	return added, nil
}

// Owned returns the entry for code if owner may see and change it.
func (s *RedirectService) Owned(ctx context.Context, owner, code string) (*storage.Redirect, error) {
	existing, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !visibleTo(existing.Owner, owner) {
		s.logger.LogAuthEvent(ctx, "redirect_access_denied", owner, false)
		return nil, fmt.Errorf("%w: %q belongs to another user", ErrForbidden, code)
	}
	return existing, nil
}

func (s *RedirectService) invalidate(ctx context.Context, code string) {
	if err := s.cache.Delete(ctx, code); err != nil {
		s.logger.Warn(ctx, "redirect cache invalidation failed", "code", code, "error", err)
	}
}
