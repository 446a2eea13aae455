package store

import (
	"context"
	"sync"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// MemStore is an in-memory Store. Used by tests and by the import CLI when
// no database path is given.
type MemStore struct {
	mu   sync.RWMutex
	data chart.Snapshot
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: chart.NewSnapshot()}
}

func (m *MemStore) Get(_ context.Context, key chart.Key) (chart.ScoreRecord, chart.Timestamps, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data.Best[key]
	if !ok {
		return chart.ScoreRecord{}, chart.Timestamps{}, ErrNotFound
	}
	return rec, m.data.Times[key], nil
}

func (m *MemStore) GetDiff(_ context.Context, key chart.Key) (chart.Diff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data.Diffs[key]
	if !ok {
		return chart.Diff{}, ErrNotFound
	}
	return d, nil
}

func (m *MemStore) Snapshot(_ context.Context) (chart.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := chart.NewSnapshot()
	for k, v := range m.data.Best {
		out.Best[k] = v
	}
	for k, v := range m.data.Times {
		out.Times[k] = v
	}
	for k, v := range m.data.Diffs {
		out.Diffs[k] = v
	}
	return out, nil
}

func (m *MemStore) Put(_ context.Context, key chart.Key, rec chart.ScoreRecord, ts chart.Timestamps) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Best[key] = rec
	m.data.Times[key] = ts
	return nil
}

func (m *MemStore) PutWithDiff(_ context.Context, key chart.Key, rec chart.ScoreRecord, ts chart.Timestamps, d *chart.Diff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Best[key] = rec
	m.data.Times[key] = ts
	if d == nil {
		delete(m.data.Diffs, key)
	} else {
		m.data.Diffs[key] = *d
	}
	return nil
}

func (m *MemStore) PutDiff(_ context.Context, key chart.Key, d chart.Diff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Diffs[key] = d
	return nil
}

func (m *MemStore) ClearDiff(_ context.Context, key chart.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data.Diffs, key)
	return nil
}

func (m *MemStore) ClearDiffs(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Diffs = make(map[chart.Key]chart.Diff)
	return nil
}

func (m *MemStore) Restore(_ context.Context, s chart.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := chart.NewSnapshot()
	for k, v := range s.Best {
		restored.Best[k] = v
		restored.Times[k] = s.Times[k]
	}
	for k, v := range s.Diffs {
		restored.Diffs[k] = v
	}
	m.data = restored
	return nil
}

func (m *MemStore) Close() error { return nil }
