package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"qr-tracker/pkg/storage"
)

type Stat struct {
	ShortCode   string `json:"short_code"`
	Destination string `json:"destination"`
	Scans       int    `json:"scans"`
}

// Location is a map pin. Events with identical coordinates share one pin.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
	Scans   int     `json:"scans"`
}

type Dashboard struct {
	Stats       []Stat     `json:"stats"`
	Locations   []Location `json:"locations"`
	TotalScans  int        `json:"total_scans"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// DashboardService builds read-only summaries from the redirect table and
// the scan log.
type DashboardService struct {
	redirects *RedirectService
	scans     storage.ScanStorage
	now       func() time.Time
}

func NewDashboardService(redirects *RedirectService, scans storage.ScanStorage) *DashboardService {
	return &DashboardService{redirects: redirects, scans: scans, now: time.Now}
}

func (d *DashboardService) Build(ctx context.Context, owner string) (*Dashboard, error) {
	entries, err := d.redirects.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	counts, err := d.scans.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count scans: %v", ErrUnavailable, err)
	}
	events, err := d.scans.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list scans: %v", ErrUnavailable, err)
	}

	dash := &Dashboard{
		Stats:       make([]Stat, 0, len(entries)),
		Locations:   []Location{},
		GeneratedAt: d.now().UTC(),
	}
	visible := make(map[string]bool, len(entries))
	for _, e := range entries {
		visible[e.ShortCode] = true
		n := counts[e.ShortCode]
		dash.Stats = append(dash.Stats, Stat{ShortCode: e.ShortCode, Destination: e.Destination, Scans: n})
		dash.TotalScans += n
	}
	dash.Locations = mergeLocations(events, visible)
	return dash, nil
}

type coordinate struct{ lat, lon float64 }

func mergeLocations(events []storage.ScanEvent, visible map[string]bool) []Location {
	index := make(map[coordinate]int)
	out := []Location{}
	for i := range events {
		ev := &events[i]
		if !visible[ev.ShortCode] || !ev.HasLocation() {
			continue
		}
		key := coordinate{ev.Lat, ev.Lon}
		if pos, ok := index[key]; ok {
			out[pos].Scans++
			continue
		}
		index[key] = len(out)
		out = append(out, Location{Lat: ev.Lat, Lon: ev.Lon, City: ev.City, Country: ev.Country, Scans: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Scans > out[j].Scans })
	return out
}
