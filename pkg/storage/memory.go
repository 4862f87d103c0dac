package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is a process-local RedirectStorage and ScanStorage. It keeps
// redirects in insertion order and is used for development and tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	order     []string
	redirects map[string]Redirect
	scans     []ScanEvent
	seen      map[string]struct{}
	nextID    int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		redirects: make(map[string]Redirect),
		seen:      make(map[string]struct{}),
	}
}

func (m *MemoryStorage) Get(ctx context.Context, code string) (*Redirect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.redirects[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStorage) List(ctx context.Context) ([]Redirect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Redirect, 0, len(m.order))
	for _, code := range m.order {
		out = append(out, m.redirects[code])
	}
	return out, nil
}

func (m *MemoryStorage) Create(ctx context.Context, redirect *Redirect) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.redirects[redirect.ShortCode]; exists {
		return ErrConflict
	}
	if redirect.CreatedAt.IsZero() {
		redirect.CreatedAt = time.Now().UTC()
	}
	m.redirects[redirect.ShortCode] = *redirect
	m.order = append(m.order, redirect.ShortCode)
	return nil
}

func (m *MemoryStorage) Update(ctx context.Context, code, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.redirects[code]
	if !ok {
		return ErrNotFound
	}
	r.Destination = destination
	m.redirects[code] = r
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.redirects[code]; !ok {
		return ErrNotFound
	}
	delete(m.redirects, code)
	for i, c := range m.order {
		if c == code {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.deleteScansLocked(code)
	return nil
}

func (m *MemoryStorage) Append(ctx context.Context, event *ScanEvent) error {
	_, err := m.InsertIfAbsent(ctx, event)
	return err
}

func (m *MemoryStorage) InsertIfAbsent(ctx context.Context, event *ScanEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := event.dedupKey()
	if _, dup := m.seen[key]; dup {
		return false, nil
	}
	m.nextID++
	event.ID = m.nextID
	m.seen[key] = struct{}{}
	m.scans = append(m.scans, *event)
	return true, nil
}

func (m *MemoryStorage) CountByCode(ctx context.Context, code string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for i := range m.scans {
		if m.scans[i].ShortCode == code {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStorage) Counts(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for i := range m.scans {
		counts[m.scans[i].ShortCode]++
	}
	return counts, nil
}

func (m *MemoryStorage) ListAll(ctx context.Context) ([]ScanEvent, error) {
	m.mu.RLock()
	out := make([]ScanEvent, len(m.scans))
	copy(out, m.scans)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScannedAt.Equal(out[j].ScannedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ScannedAt.After(out[j].ScannedAt)
	})
	return out, nil
}

func (m *MemoryStorage) DeleteByCode(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteScansLocked(code), nil
}

func (m *MemoryStorage) deleteScansLocked(code string) int64 {
	kept := m.scans[:0]
	var removed int64
	for _, e := range m.scans {
		if e.ShortCode == code {
			delete(m.seen, e.dedupKey())
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.scans = kept
	return removed
}
