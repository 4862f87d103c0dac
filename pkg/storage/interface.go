package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("short code already exists")
)

// RedirectStorage maps short codes to destinations. Lookups are exact and
// case-sensitive. Delete also removes scan events kept by the same backend.
type RedirectStorage interface {
	Get(ctx context.Context, code string) (*Redirect, error)
	List(ctx context.Context) ([]Redirect, error)
	Create(ctx context.Context, redirect *Redirect) error
	Update(ctx context.Context, code, destination string) error
	Delete(ctx context.Context, code string) error
}

// ScanStorage is the append-only visit log.
type ScanStorage interface {
	Append(ctx context.Context, event *ScanEvent) error
	CountByCode(ctx context.Context, code string) (int, error)
	Counts(ctx context.Context) (map[string]int, error)
	// ListAll returns every event, newest first.
	ListAll(ctx context.Context) ([]ScanEvent, error)
	DeleteByCode(ctx context.Context, code string) (int64, error)
	// InsertIfAbsent writes the event unless one with the same
	// (short code, timestamp, ip) already exists.
	InsertIfAbsent(ctx context.Context, event *ScanEvent) (bool, error)
}

// ScanArchive is a remote copy of the scan log.
type ScanArchive interface {
	Append(ctx context.Context, event *ScanEvent) error
	DeleteByCode(ctx context.Context, code string) (int, error)
	// ReadAll decodes every archived row. Rows that cannot be decoded are
	// reported through skipped and otherwise ignored.
	ReadAll(ctx context.Context) (events []ScanEvent, skipped int, err error)
}
