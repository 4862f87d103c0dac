// Package geo resolves client IP addresses to an approximate location.
//
// Lookups are best effort: callers bound them with a context deadline and
// treat any error as "no location". Providers can be stacked, e.g.
//
//	NewCachedLocator(NewBreakerLocator(NewIPAPIProvider(url, timeout)), cache, ttl)
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

var (
	ErrInvalidIP      = errors.New("invalid IP address")
	ErrNonPublicIP    = errors.New("address is not publicly routable")
	ErrLookupRejected = errors.New("lookup rejected by provider")
	ErrDisabled       = errors.New("geolocation disabled")
)

type Location struct {
	City    string
	Country string
	Lat     float64
	Lon     float64
}

// Locator maps an IP address to a Location.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*Location, error)
}

// CheckPublicIP rejects addresses no provider can place: unparseable,
// private, loopback, link-local, multicast and unspecified.
func CheckPublicIP(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() || parsed.IsMulticast() || parsed.IsUnspecified() {
		return ErrNonPublicIP
	}
	return nil
}

// IPAPIProvider queries the ip-api.com JSON endpoint (free tier, no key).
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Country string  `json:"country"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func NewIPAPIProvider(baseURL string, timeout time.Duration) *IPAPIProvider {
	if baseURL == "" {
		baseURL = "http://ip-api.com"
	}
	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (*Location, error) {
	if err := CheckPublicIP(ip); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/json/%s?fields=status,message,country,city,lat,lon", p.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api response: %w", err)
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrLookupRejected, result.Message)
	}

	return &Location{
		City:    result.City,
		Country: result.Country,
		Lat:     result.Lat,
		Lon:     result.Lon,
	}, nil
}

// Disabled never resolves anything; used when geolocation is switched off.
type Disabled struct{}

func (Disabled) Lookup(ctx context.Context, ip string) (*Location, error) {
	return nil, ErrDisabled
}
