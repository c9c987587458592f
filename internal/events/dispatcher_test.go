package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name   string
	fail   bool
	mu     sync.Mutex
	got    []*Notification
	calls  int
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return errors.New("broker down")
	}
	s.got = append(s.got, n)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() ([]*Notification, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Notification(nil), s.got...), s.calls, s.closed
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notification(id string) *Notification {
	n := NewPredictionComplete(sampleTx(), "Genuine", 0.8, fixedNow)
	n.ID = "n-" + id
	n.TransactionID = id
	return n
}

func TestDispatcher_DeliversToAllSinksAndFlushesOnStop(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	d := NewDispatcher(10, quietLogger(), a, b)
	assert.Equal(t, []string{"a", "b"}, d.Sinks())

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, d.TryEmit(notification(id)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	for _, sink := range []*recordingSink{a, b} {
		got, _, closed := sink.snapshot()
		require.Len(t, got, 3)
		assert.Equal(t, "t1", got[0].TransactionID)
		assert.True(t, closed)
	}
	assert.Equal(t, 0, d.QueueLen())

	// stopped dispatchers refuse new work
	assert.Error(t, d.TryEmit(notification("late")))
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	d := NewDispatcher(1, quietLogger())

	require.NoError(t, d.TryEmit(notification("t1")))
	assert.ErrorIs(t, d.TryEmit(notification("t2")), ErrQueueFull)

	// Emit never blocks even when full
	finished := make(chan struct{})
	go func() {
		d.Emit(notification("t3"))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
	assert.Equal(t, 1, d.QueueLen())
}

func TestDispatcher_FailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSink{name: "bad", fail: true}
	good := &recordingSink{name: "good"}
	d := NewDispatcher(20, quietLogger(), bad, good).WithRetry(1, time.Millisecond)

	for i := 0; i < breakerThreshold+2; i++ {
		require.NoError(t, d.TryEmit(notification("t")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	got, _, _ := good.snapshot()
	assert.Len(t, got, breakerThreshold+2)

	// the circuit opens after the threshold, so later events skip the sink
	_, calls, _ := bad.snapshot()
	assert.Equal(t, breakerThreshold, calls)
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	flaky := &flakySink{failures: 2}
	d := NewDispatcher(5, quietLogger(), flaky).WithRetry(3, time.Millisecond)
	require.NoError(t, d.TryEmit(notification("t1")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Equal(t, 3, flaky.calls)
	assert.True(t, flaky.delivered)
}

type flakySink struct {
	failures  int
	calls     int
	delivered bool
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Publish(ctx context.Context, n *Notification) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("transient")
	}
	s.delivered = true
	return nil
}

func TestStoreSink(t *testing.T) {
	store := NewMemoryNotificationStore(2)
	sink := NewStoreSink(store)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, sink.Publish(ctx, notification(id)))
	}

	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2) // capacity bound
	assert.Equal(t, "t3", recent[0].TransactionID)
	assert.Equal(t, "t2", recent[1].TransactionID)

	one, err := store.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
