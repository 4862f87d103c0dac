package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"qr-tracker/pkg/storage"
)

var exportHeader = []string{"Short Code", "Timestamp", "IP", "City", "Country", "User Agent", "Lat", "Lon"}

// ExportCSV writes the scan events of every code visible to owner, newest
// first, and returns the number of data rows written.
func (d *DashboardService) ExportCSV(ctx context.Context, w io.Writer, owner string) (int, error) {
	entries, err := d.redirects.List(ctx, owner)
	if err != nil {
		return 0, err
	}
	visible := make(map[string]bool, len(entries))
	for _, e := range entries {
		visible[e.ShortCode] = true
	}

	events, err := d.scans.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list scans: %v", ErrUnavailable, err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	rows := 0
	for i := range events {
		ev := &events[i]
		if !visible[ev.ShortCode] {
			continue
		}
		if err := cw.Write(exportRecord(ev)); err != nil {
			return rows, err
		}
		rows++
	}
	cw.Flush()
	return rows, cw.Error()
}

func exportRecord(ev *storage.ScanEvent) []string {
	return []string{
		ev.ShortCode,
		ev.ScannedAt.UTC().Format(storage.ArchiveTimeLayout),
		ev.IP,
		ev.City,
		ev.Country,
		ev.UserAgent,
		strconv.FormatFloat(ev.Lat, 'f', -1, 64),
		strconv.FormatFloat(ev.Lon, 'f', -1, 64),
	}
}
