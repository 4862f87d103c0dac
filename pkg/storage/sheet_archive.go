package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ArchiveSheetHeader is the header row expected on the scan archive worksheet.
var ArchiveSheetHeader = []string{colShortCode, colTimestamp, colIP, colCity, colCountry, colUserAgent, colLat, colLon}

// ArchiveTimeLayout is how timestamps are written to the archive: UTC with
// microseconds and no zone suffix.
const ArchiveTimeLayout = "2006-01-02T15:04:05.000000"

var archiveReadLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseArchiveTime accepts the timestamp formats found in archived rows.
// Values without a zone are read as UTC.
func ParseArchiveTime(value string) (time.Time, error) {
	for _, layout := range archiveReadLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// SheetScanArchive stores scan events as spreadsheet rows.
type SheetScanArchive struct {
	sheet Sheet
	mu    sync.Mutex
}

func NewSheetScanArchive(sheet Sheet) *SheetScanArchive {
	return &SheetScanArchive{sheet: sheet}
}

func (a *SheetScanArchive) header(ctx context.Context) (sheetColumns, [][]string, error) {
	rows, err := a.sheet.ReadAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return newSheetColumns(ArchiveSheetHeader), nil, nil
	}
	return newSheetColumns(rows[0]), rows[1:], nil
}

func (a *SheetScanArchive) Append(ctx context.Context, event *ScanEvent) error {
	row := []string{
		event.ShortCode,
		event.ScannedAt.UTC().Format(ArchiveTimeLayout),
		event.IP,
		event.City,
		event.Country,
		event.UserAgent,
		strconv.FormatFloat(event.Lat, 'f', -1, 64),
		strconv.FormatFloat(event.Lon, 'f', -1, 64),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	existing, err := a.sheet.ReadAll(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if err := a.sheet.AppendRow(ctx, ArchiveSheetHeader); err != nil {
			return err
		}
	}
	return a.sheet.AppendRow(ctx, row)
}

func (a *SheetScanArchive) ReadAll(ctx context.Context) ([]ScanEvent, int, error) {
	cols, rows, err := a.header(ctx)
	if err != nil {
		return nil, 0, err
	}

	events := make([]ScanEvent, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		event, ok := decodeArchiveRow(cols, row)
		if !ok {
			skipped++
			continue
		}
		events = append(events, event)
	}
	return events, skipped, nil
}

// decodeArchiveRow requires a short code and a parseable timestamp; every
// other field falls back to its zero value.
func decodeArchiveRow(cols sheetColumns, row []string) (ScanEvent, bool) {
	code := cols.value(row, colShortCode)
	if code == "" {
		return ScanEvent{}, false
	}
	ts, err := ParseArchiveTime(cols.value(row, colTimestamp))
	if err != nil {
		return ScanEvent{}, false
	}
	return ScanEvent{
		ShortCode: code,
		ScannedAt: ts,
		IP:        cols.value(row, colIP),
		City:      cols.value(row, colCity),
		Country:   cols.value(row, colCountry),
		UserAgent: cols.value(row, colUserAgent),
		Lat:       parseCoordinate(cols.value(row, colLat)),
		Lon:       parseCoordinate(cols.value(row, colLon)),
	}, true
}

func parseCoordinate(value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}

// DeleteByCode removes every archived row for code, bottom-up so earlier row
// numbers stay valid.
func (a *SheetScanArchive) DeleteByCode(ctx context.Context, code string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cols, rows, err := a.header(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for i := len(rows) - 1; i >= 0; i-- {
		if cols.value(rows[i], colShortCode) != code {
			continue
		}
		if err := a.sheet.DeleteRow(ctx, i+2); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
