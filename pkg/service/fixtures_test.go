package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"qr-tracker/pkg/cache"
	"qr-tracker/pkg/geo"
	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/storage"
)

type mockCache struct {
	mu       sync.Mutex
	entries  map[string]*cache.CachedRedirect
	versions map[string]int64
	deletes  []string
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*cache.CachedRedirect), versions: make(map[string]int64)}
}

func (m *mockCache) Get(ctx context.Context, code string) (*cache.CachedRedirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[code], nil
}

func (m *mockCache) Version(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[code], nil
}

func (m *mockCache) Set(ctx context.Context, code string, r *cache.CachedRedirect, ttl time.Duration, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[code] == version {
		m.entries[code] = r
	}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, code)
	m.versions[code]++
	m.deletes = append(m.deletes, code)
	return nil
}

type stubLocator struct {
	loc *geo.Location
	err error
}

func (s stubLocator) Lookup(ctx context.Context, ip string) (*geo.Location, error) {
	return s.loc, s.err
}

// blockingLocator waits for the lookup deadline.
type blockingLocator struct{}

func (blockingLocator) Lookup(ctx context.Context, ip string) (*geo.Location, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// brokenStore fails every call.
type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Get(ctx context.Context, code string) (*storage.Redirect, error) {
	return nil, errBroken
}
func (brokenStore) List(ctx context.Context) ([]storage.Redirect, error) { return nil, errBroken }
func (brokenStore) Create(ctx context.Context, r *storage.Redirect) error { return errBroken }
func (brokenStore) Update(ctx context.Context, code, destination string) error {
	return errBroken
}
func (brokenStore) Delete(ctx context.Context, code string) error { return errBroken }

// racingStore runs afterGet once, after the first Get has read its result,
// to interleave a write with an in-flight read.
type racingStore struct {
	*storage.MemoryStorage
	afterGet func()
}

func (s *racingStore) Get(ctx context.Context, code string) (*storage.Redirect, error) {
	r, err := s.MemoryStorage.Get(ctx, code)
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		hook()
	}
	return r, err
}

// failingAppends accepts reads but refuses every append.
type failingAppends struct {
	*storage.MemoryStorage
}

func (failingAppends) Append(ctx context.Context, event *storage.ScanEvent) error {
	return errBroken
}

// stepClock returns a strictly increasing time on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

type fixture struct {
	mem       *storage.MemoryStorage
	cache     *mockCache
	redirects *RedirectService
	tracker   *Tracker
	dashboard *DashboardService
}

func newFixture(locator geo.Locator) *fixture {
	mem := storage.NewMemoryStorage()
	c := newMockCache()
	logger := logging.Nop()
	redirects := NewRedirectService(mem, mem, c, time.Minute, logger)
	tracker := NewTracker(redirects, mem, locator, 50*time.Millisecond, logger)
	tracker.now = stepClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		mem:       mem,
		cache:     c,
		redirects: redirects,
		tracker:   tracker,
		dashboard: NewDashboardService(redirects, mem),
	}
}
