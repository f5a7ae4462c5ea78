package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
)

// SnapshotStore implements stats.SnapshotRepository.
// A snapshot is never modified after Save, so readers share the pointer and a
// Save is a single map assignment under the lock.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[stats.Key]*stats.Snapshot
	saves     int
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[stats.Key]*stats.Snapshot)}
}

func (s *SnapshotStore) Get(_ context.Context, key stats.Key) (*stats.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[key]
	if !ok {
		return nil, stats.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *SnapshotStore) Save(_ context.Context, snapshot *stats.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[stats.Key{GroupID: snapshot.GroupID, Period: snapshot.Period}] = snapshot
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *SnapshotStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
