package storage

import "time"

type Redirect struct {
	ShortCode   string    `json:"short_code" db:"short_code"`
	Destination string    `json:"destination" db:"destination"`
	Owner       string    `json:"owner,omitempty" db:"owner"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type ScanEvent struct {
	ID        int64     `json:"id" db:"id"`
	ShortCode string    `json:"short_code" db:"short_code"`
	ScannedAt time.Time `json:"scanned_at" db:"scanned_at"`
	IP        string    `json:"ip" db:"ip"`
	City      string    `json:"city" db:"city"`
	Country   string    `json:"country" db:"country"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Lat       float64   `json:"lat" db:"lat"`
	Lon       float64   `json:"lon" db:"lon"`
}

// HasLocation reports whether the event carries usable coordinates.
func (e *ScanEvent) HasLocation() bool {
	return e.Lat != 0 || e.Lon != 0
}

// dedupKey identifies an event across backends that do not share ids.
func (e *ScanEvent) dedupKey() string {
	return e.ShortCode + "\x00" + e.ScannedAt.UTC().Format(time.RFC3339Nano) + "\x00" + e.IP
}
