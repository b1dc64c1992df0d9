package librarysync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerufuyo/nerulibrary-sub001/conflict"
)

// MetaStore persists sync metadata and pending conflicts so they
// survive restarts. storage/sqlite provides the durable implementation.
type MetaStore interface {
	LastSyncTime(ctx context.Context) (time.Time, error)
	SetLastSyncTime(ctx context.Context, t time.Time) error

	// SaveConflict records a pending conflict. A fresh detection for
	// the same entity supersedes the prior record.
	SaveConflict(ctx context.Context, c conflict.SyncConflict) error
	DeleteConflict(ctx context.Context, id string) error
	ListConflicts(ctx context.Context) ([]conflict.SyncConflict, error)
}

// MemoryMetaStore is an in-memory MetaStore for tests and ephemeral
// setups.
type MemoryMetaStore struct {
	mu        sync.RWMutex
	lastSync  time.Time
	conflicts map[string]conflict.SyncConflict
}

var _ MetaStore = (*MemoryMetaStore)(nil)

// NewMemoryMetaStore creates an empty in-memory meta store.
func NewMemoryMetaStore() *MemoryMetaStore {
	return &MemoryMetaStore{conflicts: make(map[string]conflict.SyncConflict)}
}

func (m *MemoryMetaStore) LastSyncTime(ctx context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync, nil
}

func (m *MemoryMetaStore) SetLastSyncTime(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync = t
	return nil
}

func (m *MemoryMetaStore) SaveConflict(ctx context.Context, c conflict.SyncConflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[c.Key()] = c
	return nil
}

func (m *MemoryMetaStore) DeleteConflict(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, c := range m.conflicts {
		if c.ID == id {
			delete(m.conflicts, key)
			return nil
		}
	}
	return nil
}

func (m *MemoryMetaStore) ListConflicts(ctx context.Context) ([]conflict.SyncConflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]conflict.SyncConflict, 0, len(m.conflicts))
	for _, c := range m.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out, nil
}
