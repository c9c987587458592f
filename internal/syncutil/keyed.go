// Package syncutil provides bounded per-key locking.
package syncutil

import (
	"context"
	"hash/fnv"
)

// DefaultShards is the lock pool size used by NewKeyedMutex(0).
const DefaultShards = 256

// KeyedMutex serializes work per key over a fixed pool of channel locks.
// Memory stays bounded however many keys are seen; keys that hash to the
// same shard share a lock. Waiters give up when their context ends.
type KeyedMutex struct {
	shards []chan struct{}
}

// NewKeyedMutex creates a pool of n locks.
func NewKeyedMutex(n int) *KeyedMutex {
	if n <= 0 {
		n = DefaultShards
	}
	m := &KeyedMutex{shards: make([]chan struct{}, n)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{}
	}
	return m
}

// Lock acquires the lock for key. On success the caller must call the
// returned unlock exactly once.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	shard := m.shards[m.index(key)]
	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(m.shards))
}
