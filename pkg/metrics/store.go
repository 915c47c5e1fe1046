package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists metric samples. Implementations must be safe for
// concurrent use; in particular DeleteBefore must tolerate concurrent
// Inserts (its cutoff is fixed by the caller, so samples recorded
// during a cleanup pass are never swept by it).
type Store interface {
	// Insert appends one sample.
	Insert(ctx context.Context, s Sample) error

	// Query returns samples matching the filter, most recent first.
	Query(ctx context.Context, f Filter) ([]Sample, error)

	// DeleteBefore removes samples recorded strictly before cutoff and
	// returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases store resources.
	Close() error
}

// MemoryStore is an in-process Store. It backs tests and the degraded
// mode of deployments without a metrics database.
type MemoryStore struct {
	mu      sync.RWMutex
	samples []Sample
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert implements Store.
func (m *MemoryStore) Insert(_ context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

// Query implements Store.
func (m *MemoryStore) Query(_ context.Context, f Filter) ([]Sample, error) {
	m.mu.RLock()
	var matched []Sample
	for _, s := range m.samples {
		if f.matches(s) {
			matched = append(matched, s)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RecordedAt.After(matched[j].RecordedAt)
	})

	limit := f.Limit
	if limit == 0 {
		limit = DefaultQueryLimit
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// DeleteBefore implements Store.
func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]
	var removed int64
	for _, s := range m.samples {
		if s.RecordedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return removed, nil
}

// Len returns the number of stored samples.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
