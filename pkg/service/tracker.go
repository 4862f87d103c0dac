package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"qr-tracker/pkg/geo"
	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/metrics"
	"qr-tracker/pkg/storage"
)

const (
	maxUserAgentRunes = 250
	maxIPLength       = 64
)

// Visitor describes the client behind one scan.
type Visitor struct {
	IP        string
	UserAgent string
}

// Resolver maps a short code to its destination.
type Resolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// Tracker resolves scans and records them. Geolocation and log writes are
// best effort and never turn a valid redirect into an error.
type Tracker struct {
	resolver   Resolver
	scans      storage.ScanStorage
	locator    geo.Locator
	geoTimeout time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

func NewTracker(resolver Resolver, scans storage.ScanStorage, locator geo.Locator, geoTimeout time.Duration, logger *logging.Logger) *Tracker {
	if locator == nil {
		locator = geo.Disabled{}
	}
	return &Tracker{
		resolver:   resolver,
		scans:      scans,
		locator:    locator,
		geoTimeout: geoTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

// Track returns the destination for code and logs the visit. Unknown codes
// produce no event.
func (t *Tracker) Track(ctx context.Context, code string, visitor Visitor) (string, error) {
	if code == "" {
		metrics.ScansTotal.WithLabelValues("bad_request").Inc()
		return "", fmt.Errorf("%w: missing ID", ErrBadRequest)
	}

	destination, err := t.resolver.Resolve(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.ScansTotal.WithLabelValues("not_found").Inc()
		default:
			metrics.ScansTotal.WithLabelValues("unavailable").Inc()
			t.logger.Error(ctx, "failed to resolve short code", "code", code, "error", err)
		}
		return "", err
	}

	event := &storage.ScanEvent{
		ShortCode: code,
		// microsecond precision survives a round trip through Postgres
		ScannedAt: t.now().UTC().Truncate(time.Microsecond),
		IP:        truncate(strings.TrimSpace(visitor.IP), maxIPLength),
		UserAgent: truncateRunes(visitor.UserAgent, maxUserAgentRunes),
	}
	t.locate(ctx, event)

	if err := t.scans.Append(ctx, event); err != nil {
		metrics.ScanLogFailures.WithLabelValues("local").Inc()
		t.logger.Error(ctx, "failed to record scan", "code", code, "error", err)
	} else {
		t.logger.LogScan(ctx, code, event.HasLocation())
	}

	metrics.ScansTotal.WithLabelValues("redirected").Inc()
	return destination, nil
}

func (t *Tracker) locate(ctx context.Context, event *storage.ScanEvent) {
	if event.IP == "" {
		metrics.GeoLookups.WithLabelValues("skipped").Inc()
		return
	}

	lookupCtx := ctx
	if t.geoTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, t.geoTimeout)
		defer cancel()
	}

	loc, err := t.locator.Lookup(lookupCtx, event.IP)
	switch {
	case err == nil && loc != nil:
		metrics.GeoLookups.WithLabelValues("hit").Inc()
		event.City = loc.City
		event.Country = loc.Country
		event.Lat = loc.Lat
		event.Lon = loc.Lon
	case errors.Is(err, geo.ErrDisabled) || errors.Is(err, geo.ErrInvalidIP) || errors.Is(err, geo.ErrNonPublicIP):
		metrics.GeoLookups.WithLabelValues("skipped").Inc()
	default:
		metrics.GeoLookups.WithLabelValues("error").Inc()
		t.logger.Debug(ctx, "geolocation failed", "code", event.ShortCode, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
