package events

import (
	"context"
	"sort"
	"sync"
)

// NotificationStore keeps the audit log of emitted notifications.
type NotificationStore interface {
	Save(ctx context.Context, n *Notification) error
	// ListRecent returns up to limit notifications, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Notification, error)
}

// StoreSink persists every dispatched notification.
type StoreSink struct {
	store NotificationStore
}

// NewStoreSink adapts a NotificationStore to a Sink.
func NewStoreSink(store NotificationStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Publish(ctx context.Context, n *Notification) error {
	return s.store.Save(ctx, n)
}

// MemoryNotificationStore is an in-memory NotificationStore for demo/test use.
// It keeps at most capacity entries.
type MemoryNotificationStore struct {
	mu       sync.RWMutex
	items    []*Notification
	capacity int
}

// NewMemoryNotificationStore creates a bounded in-memory notification log.
func NewMemoryNotificationStore(capacity int) *MemoryNotificationStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryNotificationStore{capacity: capacity}
}

func (s *MemoryNotificationStore) Save(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.items = append(s.items, &cp)
	if over := len(s.items) - s.capacity; over > 0 {
		s.items = append([]*Notification(nil), s.items[over:]...)
	}
	return nil
}

func (s *MemoryNotificationStore) ListRecent(ctx context.Context, limit int) ([]*Notification, error) {
	s.mu.RLock()
	result := make([]*Notification, 0, len(s.items))
	for _, n := range s.items {
		cp := *n
		result = append(result, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return newer(result[i], result[j]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// newer orders notifications by (CreatedAt, ID) descending.
func newer(a, b *Notification) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
