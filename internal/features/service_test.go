package features

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txsentinel/internal/transactions"
)

type failingStore struct {
	*MemoryStore
	failFor string
}

func (f *failingStore) Upsert(ctx context.Context, senderID string, v Vector) (*Snapshot, error) {
	if senderID == f.failFor {
		return nil, errors.New("cache unavailable")
	}
	return f.MemoryStore.Upsert(ctx, senderID, v)
}

func seed(t *testing.T, store *transactions.MemoryStore, sender string, amounts ...float64) {
	t.Helper()
	for i, a := range amounts {
		require.NoError(t, store.Create(context.Background(), &transactions.Transaction{
			ID:            fmt.Sprintf("%s-%d", sender, i),
			SenderID:      sender,
			BeneficiaryID: "B1",
			Amount:        decimal.NewFromFloat(a),
			SendingDate:   onDay(i),
			Status:        transactions.StatusPaid,
			CreatedAt:     onDay(i),
		}))
	}
}

func TestService_ComputeColdStartBeforeCurrentIsVisible(t *testing.T) {
	svc := NewService(transactions.NewMemoryStore(), NewMemoryStore())

	current := tx("new", 1000, onDay(0), transactions.StatusPending, "B1")
	v, cold, err := svc.Compute(context.Background(), current)
	require.NoError(t, err)

	assert.True(t, cold)
	assert.Equal(t, 1.0, v.TotalTrx)
	assert.Equal(t, 0.0, v.PaidPercentage)
	assert.Equal(t, 1000.0, v.AvgTop05ATV)
	assert.Equal(t, 1000.0, v.AvgTopVolumes)
	assert.Equal(t, 1000.0, v.AvgBottomATV)
	assert.Equal(t, 0.0, v.SdTrxVol)
}

func TestService_ComputeColdStartWithCurrentStored(t *testing.T) {
	txs := transactions.NewMemoryStore()
	svc := NewService(txs, NewMemoryStore())

	current := tx("new", 1000, onDay(0), transactions.StatusPending, "B1")
	require.NoError(t, txs.Create(context.Background(), current))

	v, cold, err := svc.Compute(context.Background(), current)
	require.NoError(t, err)
	assert.True(t, cold)
	assert.Equal(t, ColdStart(1000), v)
}

func TestService_ComputeCountsCurrentTransaction(t *testing.T) {
	txs := transactions.NewMemoryStore()
	seed(t, txs, "S1", 100, 200, 300, 400, 500)
	svc := NewService(txs, NewMemoryStore())

	current := tx("S1-new", 9000, onDay(10), transactions.StatusPending, "B2")
	current.SenderID = "S1"
	require.NoError(t, txs.Create(context.Background(), current))

	v, cold, err := svc.Compute(context.Background(), current)
	require.NoError(t, err)
	assert.False(t, cold)
	assert.Equal(t, 6.0, v.TotalTrx)
	assert.Equal(t, 5.0, v.TotalPaidOutTrx)
	assert.Equal(t, 2080.0, v.AvgTop05ATV)
	assert.Equal(t, 2.0, v.TotalBeneficiaries)

	// the same result when the store has not returned the current row yet
	unseen := tx("S1-unseen", 9000, onDay(10), transactions.StatusPending, "B2")
	unseen.SenderID = "S1"
	txs2 := transactions.NewMemoryStore()
	seed(t, txs2, "S1", 100, 200, 300, 400, 500)
	v2, _, err := NewService(txs2, NewMemoryStore()).Compute(context.Background(), unseen)
	require.NoError(t, err)
	assert.Equal(t, v.Array(), v2.Array())
}

func TestService_Recompute(t *testing.T) {
	txs := transactions.NewMemoryStore()
	cache := NewMemoryStore()
	svc := NewService(txs, cache)
	ctx := context.Background()

	_, err := svc.Recompute(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoHistory)

	seed(t, txs, "single", 42)
	snap, err := svc.Recompute(ctx, "single")
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Features.TotalTrx)
	assert.Equal(t, 42.0, snap.Features.AvgTopVolumes)

	seed(t, txs, "S1", 100, 200, 300)
	snap, err = svc.Recompute(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, snap.Features.TotalTrx)

	cached, err := cache.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, snap.Features, cached.Features)

	// replaying the same history is idempotent
	again, err := svc.Recompute(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, snap.Features, again.Features)
}

func TestService_RecomputeKeepsPaidStatusOfLoneRecord(t *testing.T) {
	txs := transactions.NewMemoryStore()
	svc := NewService(txs, NewMemoryStore())
	seed(t, txs, "S2", 750)

	snap, err := svc.Recompute(context.Background(), "S2")
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Features.TotalPaidOutTrx)
	assert.Equal(t, 100.0, snap.Features.PaidPercentage)

	want, err := Extract([]*transactions.Transaction{{
		ID: "S2-0", SenderID: "S2", BeneficiaryID: "B1",
		Amount: decimal.NewFromFloat(750), SendingDate: onDay(0),
		Status: transactions.StatusPaid, CreatedAt: onDay(0),
	}})
	require.NoError(t, err)
	assert.Equal(t, want, snap.Features)
	assert.NotEqual(t, ColdStart(750), snap.Features)
}

func TestService_Backfill(t *testing.T) {
	txs := transactions.NewMemoryStore()
	seed(t, txs, "A", 1, 2)
	seed(t, txs, "B", 5)
	seed(t, txs, "bad", 3, 4, 5)
	seed(t, txs, "C", 10, 20, 30, 40, 50, 60)

	cache := &failingStore{MemoryStore: NewMemoryStore(), failFor: "bad"}
	svc := NewService(txs, cache).WithConcurrency(2)

	result, err := svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Senders)
	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, []string{"bad"}, result.Failed)

	all, err := cache.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_BackfillCancelled(t *testing.T) {
	txs := transactions.NewMemoryStore()
	seed(t, txs, "A", 1)
	svc := NewService(txs, NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Backfill(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_SaveRecordsFailure(t *testing.T) {
	svc := NewService(transactions.NewMemoryStore(), &failingStore{MemoryStore: NewMemoryStore(), failFor: "S1"})

	_, err := svc.Save(context.Background(), "S1", ColdStart(1))
	assert.Error(t, err)

	snap, err := svc.Save(context.Background(), "S2", ColdStart(1))
	require.NoError(t, err)
	assert.Equal(t, "S2", snap.SenderID)
}

func TestService_RecomputeWaitsForSenderLock(t *testing.T) {
	txs := transactions.NewMemoryStore()
	svc := NewService(txs, NewMemoryStore())
	seed(t, txs, "S1", 100, 200)

	unlock, err := svc.LockSender(context.Background(), "S1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Recompute(ctx, "S1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	_, err = svc.Recompute(context.Background(), "S1")
	assert.NoError(t, err)
}
