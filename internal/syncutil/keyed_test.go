package syncutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	m := NewKeyedMutex(0)

	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "S1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			// unsynchronized read-modify-write; only safe under the lock
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), atomic.LoadInt64(&counter))
}

func TestKeyedMutex_ContextCancelledWhileWaiting(t *testing.T) {
	m := NewKeyedMutex(4)

	unlock, err := m.Lock(context.Background(), "S1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Lock(ctx, "S1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex(DefaultShards)

	// find a key on a different shard than S1
	other := "S2"
	for i := 0; m.index(other) == m.index("S1"); i++ {
		other = "S2-" + string(rune('a'+i))
	}

	unlock, err := m.Lock(context.Background(), "S1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock2, err := m.Lock(ctx, other)
	require.NoError(t, err)
	unlock2()
}

func TestKeyedMutex_ReleaseHandsOver(t *testing.T) {
	m := NewKeyedMutex(1)

	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := m.Lock(context.Background(), "b") // single shard: same lock
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
}
