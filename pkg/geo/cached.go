package geo

import (
	"context"
	"errors"
	"time"

	"qr-tracker/pkg/cache"
	"qr-tracker/pkg/metrics"
)

// Cache stores lookups by IP. cache.GeoCache satisfies it.
type Cache interface {
	Get(ctx context.Context, ip string) (*cache.CachedLocation, error)
	Set(ctx context.Context, ip string, loc *cache.CachedLocation, ttl time.Duration) error
}

// CachedLocator serves repeat visitors from the cache. Cache errors are
// treated as misses.
type CachedLocator struct {
	next  Locator
	cache Cache
	ttl   time.Duration
}

func NewCachedLocator(next Locator, c Cache, ttl time.Duration) *CachedLocator {
	return &CachedLocator{next: next, cache: c, ttl: ttl}
}

func (c *CachedLocator) Lookup(ctx context.Context, ip string) (*Location, error) {
	if err := CheckPublicIP(ip); err != nil {
		return nil, err
	}
	if cached, err := c.cache.Get(ctx, ip); err == nil && cached != nil {
		metrics.GeoLookups.WithLabelValues("cache_hit").Inc()
		return &Location{City: cached.City, Country: cached.Country, Lat: cached.Lat, Lon: cached.Lon}, nil
	}

	loc, err := c.next.Lookup(ctx, ip)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, ip, &cache.CachedLocation{City: loc.City, Country: loc.Country, Lat: loc.Lat, Lon: loc.Lon}, c.ttl)
	return loc, nil
}

func isCallerError(err error) bool {
	return errors.Is(err, ErrInvalidIP) || errors.Is(err, ErrNonPublicIP) || errors.Is(err, ErrLookupRejected)
}
