package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedirectCacheInterface is a short-lived read-through cache in front of the
// redirect store. Entries expire after their TTL and are deleted on writes.
//
// Each code carries a write version that Delete bumps. Readers take the
// version before reading the store and pass it to Set, which drops the entry
// if a write happened in between.
type RedirectCacheInterface interface {
	Get(ctx context.Context, code string) (*CachedRedirect, error)
	Version(ctx context.Context, code string) (int64, error)
	Set(ctx context.Context, code string, redirect *CachedRedirect, ttl time.Duration, version int64) error
	Delete(ctx context.Context, code string) error
}

// versionTTL outlives any in-flight read-through.
const versionTTL = time.Hour

type CachedRedirect struct {
	Destination string `json:"destination"`
	Owner       string `json:"owner,omitempty"`
}

type CachedLocation struct {
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type RedirectCache struct {
	client *redis.Client
}

func NewRedirectCache(client *redis.Client) *RedirectCache {
	return &RedirectCache{client: client}
}

func (c *RedirectCache) Get(ctx context.Context, code string) (*CachedRedirect, error) {
	var cached CachedRedirect
	found, err := getJSON(ctx, c.client, "redirect:"+code, &cached)
	if err != nil || !found {
		return nil, err
	}
	return &cached, nil
}

func (c *RedirectCache) Version(ctx context.Context, code string) (int64, error) {
	v, err := c.client.Get(ctx, "redirect-version:"+code).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedirectCache) Set(ctx context.Context, code string, redirect *CachedRedirect, ttl time.Duration, version int64) error {
	data, err := json.Marshal(redirect)
	if err != nil {
		return err
	}
	versionKey := "redirect-version:" + code
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, "redirect:"+code, data, ttl)
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedirectCache) Delete(ctx context.Context, code string) error {
	versionKey := "redirect-version:" + code
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, "redirect:"+code)
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, versionTTL)
		return nil
	})
	return err
}

// GeoCache remembers geolocation results per IP address.
type GeoCache struct {
	client *redis.Client
}

func NewGeoCache(client *redis.Client) *GeoCache {
	return &GeoCache{client: client}
}

func (c *GeoCache) Get(ctx context.Context, ip string) (*CachedLocation, error) {
	var cached CachedLocation
	found, err := getJSON(ctx, c.client, "geo:"+ip, &cached)
	if err != nil || !found {
		return nil, err
	}
	return &cached, nil
}

func (c *GeoCache) Set(ctx context.Context, ip string, loc *CachedLocation, ttl time.Duration) error {
	return setJSON(ctx, c.client, "geo:"+ip, loc, ttl)
}

func getJSON(ctx context.Context, client *redis.Client, key string, dst any) (bool, error) {
	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		return false, err
	}
	return true, nil
}

func setJSON(ctx context.Context, client *redis.Client, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, ttl).Err()
}

// NopRedirectCache is used when Redis is not configured; every lookup misses.
type NopRedirectCache struct{}

func (NopRedirectCache) Get(ctx context.Context, code string) (*CachedRedirect, error) {
	return nil, nil
}

func (NopRedirectCache) Version(ctx context.Context, code string) (int64, error) {
	return 0, nil
}

func (NopRedirectCache) Set(ctx context.Context, code string, redirect *CachedRedirect, ttl time.Duration, version int64) error {
	return nil
}

func (NopRedirectCache) Delete(ctx context.Context, code string) error {
	return nil
}
