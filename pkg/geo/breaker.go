package geo

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"qr-tracker/pkg/metrics"
)

// BreakerLocator stops calling the provider after repeated failures so a
// dead upstream costs nothing on the track path until it recovers.
type BreakerLocator struct {
	next Locator
	cb   *gobreaker.CircuitBreaker[*Location]
}

func NewBreakerLocator(next Locator) *BreakerLocator {
	const name = "geolocation"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*Location](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// the provider refusing a single address says nothing about its health
			return err == nil || isCallerError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return &BreakerLocator{next: next, cb: cb}
}

func (b *BreakerLocator) Lookup(ctx context.Context, ip string) (*Location, error) {
	if err := CheckPublicIP(ip); err != nil {
		return nil, err
	}
	return b.cb.Execute(func() (*Location, error) {
		return b.next.Lookup(ctx, ip)
	})
}

// State exposes the breaker state for tests and diagnostics.
func (b *BreakerLocator) State() gobreaker.State {
	return b.cb.State()
}
