package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Sheet is a row-oriented worksheet. Row and column numbers are 1-based and
// row 1 holds the header.
type Sheet interface {
	ReadAll(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, row []string) error
	UpdateCell(ctx context.Context, row, col int, value string) error
	DeleteRow(ctx context.Context, row int) error
}

// GoogleSheet is a Sheet backed by one tab of a Google spreadsheet.
type GoogleSheet struct {
	svc           *sheets.Service
	spreadsheetID string
	title         string

	mu      sync.Mutex
	sheetID *int64
}

func NewGoogleSheet(ctx context.Context, credentialsFile, spreadsheetID, title string) (*GoogleSheet, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &GoogleSheet{svc: svc, spreadsheetID: spreadsheetID, title: title}, nil
}

func (g *GoogleSheet) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.title).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", g.title, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (g *GoogleSheet) AppendRow(ctx context.Context, row []string) error {
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	_, err := g.svc.Spreadsheets.Values.
		Append(g.spreadsheetID, g.title, &sheets.ValueRange{Values: [][]interface{}{values}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to sheet %q: %w", g.title, err)
	}
	return nil
}

func (g *GoogleSheet) UpdateCell(ctx context.Context, row, col int, value string) error {
	cell := fmt.Sprintf("%s!%s%d", g.title, columnName(col), row)
	_, err := g.svc.Spreadsheets.Values.
		Update(g.spreadsheetID, cell, &sheets.ValueRange{Values: [][]interface{}{{value}}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", cell, err)
	}
	return nil
}

func (g *GoogleSheet) DeleteRow(ctx context.Context, row int) error {
	sheetID, err := g.resolveSheetID(ctx)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		}},
	}
	if _, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d of sheet %q: %w", row, g.title, err)
	}
	return nil
}

func (g *GoogleSheet) resolveSheetID(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sheetID != nil {
		return *g.sheetID, nil
	}

	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("load spreadsheet metadata: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == g.title {
			id := s.Properties.SheetId
			g.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", g.title)
}

// columnName converts a 1-based column number to A1 notation letters.
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

// MemorySheet is an in-process Sheet, mainly for tests.
type MemorySheet struct {
	mu   sync.Mutex
	rows [][]string
}

// NewMemorySheet returns a sheet holding header as row 1, or an empty sheet
// when no header is given.
func NewMemorySheet(header ...string) *MemorySheet {
	if len(header) == 0 {
		return &MemorySheet{}
	}
	return &MemorySheet{rows: [][]string{append([]string(nil), header...)}}
}

func (m *MemorySheet) ReadAll(ctx context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (m *MemorySheet) AppendRow(ctx context.Context, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = append(m.rows, append([]string(nil), row...))
	return nil
}

func (m *MemorySheet) UpdateCell(ctx context.Context, row, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row < 1 || row > len(m.rows) || col < 1 {
		return fmt.Errorf("cell %s%d out of range", columnName(col), row)
	}
	for len(m.rows[row-1]) < col {
		m.rows[row-1] = append(m.rows[row-1], "")
	}
	m.rows[row-1][col-1] = value
	return nil
}

func (m *MemorySheet) DeleteRow(ctx context.Context, row int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row < 1 || row > len(m.rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	m.rows = append(m.rows[:row-1], m.rows[row:]...)
	return nil
}

// sheetColumns maps normalized header names to 1-based column numbers.
type sheetColumns map[string]int

func newSheetColumns(header []string) sheetColumns {
	cols := make(sheetColumns, len(header))
	for i, h := range header {
		cols[normalizeHeader(h)] = i + 1
	}
	return cols
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// value returns the trimmed cell under the named header, or "" when either
// the column or the cell is missing.
func (c sheetColumns) value(row []string, name string) string {
	col, ok := c[normalizeHeader(name)]
	if !ok || col > len(row) {
		return ""
	}
	return strings.TrimSpace(row[col-1])
}

func (c sheetColumns) index(name string) (int, bool) {
	col, ok := c[normalizeHeader(name)]
	return col, ok
}
