package snapshot

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/skyaware/skyaware/internal/airquality"
)

// MemoryStore is an in-memory SnapshotStore.
// This is intended for testing and local runs. Production should use PostgresStore.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[int64][]airquality.AQIPoint
	err       error
}

var _ airquality.SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[int64][]airquality.AQIPoint)}
}

// SetError makes every subsequent call fail with err. Pass nil to recover.
func (s *MemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Upsert stores a copy of the snapshot's points under its timestamp.
func (s *MemoryStore) Upsert(_ context.Context, snap *airquality.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snapshots[snap.Timestamp.UnixMicro()] = slices.Clone(snap.Points)
	return nil
}

// Latest describes the most recent snapshot.
func (s *MemoryStore) Latest(_ context.Context) (airquality.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return airquality.SnapshotInfo{}, s.err
	}
	if len(s.snapshots) == 0 {
		return airquality.SnapshotInfo{}, airquality.ErrNoData
	}

	var newest int64
	first := true
	for ts := range s.snapshots {
		if first || ts > newest {
			newest = ts
			first = false
		}
	}
	return airquality.SnapshotInfo{
		Timestamp:   time.UnixMicro(newest).UTC(),
		TotalPoints: len(s.snapshots[newest]),
	}, nil
}

// Sample returns every stride-th point of the snapshot at ts.
func (s *MemoryStore) Sample(_ context.Context, ts time.Time, stride, limit int) ([]airquality.AQIPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	if stride < 1 {
		stride = 1
	}

	points := s.snapshots[ts.UnixMicro()]
	var out []airquality.AQIPoint
	for i := 0; i < len(points); i += stride {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, points[i])
	}
	return out, nil
}

// Count returns how many snapshots are stored.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Ping reports the injected error, if any.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
