package storage

import (
	"context"
	"fmt"
	"sync"
)

const (
	colShortCode   = "Short Code"
	colDestination = "Destination"
	colUser        = "User"
	colTimestamp   = "Timestamp"
	colIP          = "IP"
	colCity        = "City"
	colCountry     = "Country"
	colUserAgent   = "User Agent"
	colLat         = "Lat"
	colLon         = "Lon"
)

// RedirectSheetHeader is the header row expected on the redirects worksheet.
var RedirectSheetHeader = []string{colShortCode, colDestination, colUser}

// SheetRedirectStorage keeps redirects in a spreadsheet. It does not hold
// scan events, so Delete only removes the redirect row.
type SheetRedirectStorage struct {
	sheet Sheet
	// writes read the whole sheet to locate rows; serialize them so row
	// numbers stay valid between the read and the write
	mu sync.Mutex
}

func NewSheetRedirectStorage(sheet Sheet) *SheetRedirectStorage {
	return &SheetRedirectStorage{sheet: sheet}
}

type sheetRedirectRow struct {
	row      int
	redirect Redirect
}

func (s *SheetRedirectStorage) load(ctx context.Context) (sheetColumns, []sheetRedirectRow, error) {
	rows, err := s.sheet.ReadAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return newSheetColumns(RedirectSheetHeader), nil, nil
	}

	cols := newSheetColumns(rows[0])
	if _, ok := cols.index(colShortCode); !ok {
		return nil, nil, fmt.Errorf("redirect sheet: missing %q column", colShortCode)
	}
	if _, ok := cols.index(colDestination); !ok {
		return nil, nil, fmt.Errorf("redirect sheet: missing %q column", colDestination)
	}

	out := make([]sheetRedirectRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		code := cols.value(row, colShortCode)
		if code == "" {
			continue
		}
		out = append(out, sheetRedirectRow{
			row: i + 2,
			redirect: Redirect{
				ShortCode:   code,
				Destination: cols.value(row, colDestination),
				Owner:       cols.value(row, colUser),
			},
		})
	}
	return cols, out, nil
}

// ensureHeader writes the default header to an empty sheet so the first data
// row is not read back as the header. Callers hold s.mu.
func (s *SheetRedirectStorage) ensureHeader(ctx context.Context) error {
	rows, err := s.sheet.ReadAll(ctx)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	return s.sheet.AppendRow(ctx, RedirectSheetHeader)
}

func find(rows []sheetRedirectRow, code string) *sheetRedirectRow {
	for i := range rows {
		if rows[i].redirect.ShortCode == code {
			return &rows[i]
		}
	}
	return nil
}

func (s *SheetRedirectStorage) Get(ctx context.Context, code string) (*Redirect, error) {
	_, rows, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if r := find(rows, code); r != nil {
		redirect := r.redirect
		return &redirect, nil
	}
	return nil, ErrNotFound
}

func (s *SheetRedirectStorage) List(ctx context.Context) ([]Redirect, error) {
	_, rows, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Redirect, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.redirect)
	}
	return out, nil
}

func (s *SheetRedirectStorage) Create(ctx context.Context, redirect *Redirect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols, rows, err := s.load(ctx)
	if err != nil {
		return err
	}
	if find(rows, redirect.ShortCode) != nil {
		return ErrConflict
	}
	if err := s.ensureHeader(ctx); err != nil {
		return err
	}

	row := make([]string, len(cols))
	set := func(name, value string) {
		if col, ok := cols.index(name); ok {
			row[col-1] = value
		}
	}
	set(colShortCode, redirect.ShortCode)
	set(colDestination, redirect.Destination)
	set(colUser, redirect.Owner)
	return s.sheet.AppendRow(ctx, row)
}

func (s *SheetRedirectStorage) Update(ctx context.Context, code, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols, rows, err := s.load(ctx)
	if err != nil {
		return err
	}
	r := find(rows, code)
	if r == nil {
		return ErrNotFound
	}
	col, _ := cols.index(colDestination)
	return s.sheet.UpdateCell(ctx, r.row, col, destination)
}

func (s *SheetRedirectStorage) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, rows, err := s.load(ctx)
	if err != nil {
		return err
	}
	r := find(rows, code)
	if r == nil {
		return ErrNotFound
	}
	return s.sheet.DeleteRow(ctx, r.row)
}
