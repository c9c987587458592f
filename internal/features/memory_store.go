package features

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	now       func() time.Time
}

// NewMemoryStore creates an in-memory feature cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*Snapshot),
		now:       time.Now,
	}
}

// WithClock overrides the clock used for timestamps (tests).
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Upsert(ctx context.Context, senderID string, v Vector) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	snap, ok := s.snapshots[senderID]
	if !ok {
		snap = &Snapshot{SenderID: senderID, CreatedAt: now}
		s.snapshots[senderID] = snap
	}
	snap.Features = v
	snap.UpdatedAt = now

	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) Get(ctx context.Context, senderID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[senderID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, since *time.Time) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if since != nil && snap.CreatedAt.Before(*since) && snap.UpdatedAt.Before(*since) {
			continue
		}
		cp := *snap
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].SenderID < result[j].SenderID
	})
	return result, nil
}
