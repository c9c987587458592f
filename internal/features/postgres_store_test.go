//go:build integration

package features

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txsentinel/internal/testutil"
)

func TestPostgresStore_UpsertGetList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	var arr [Width]float64
	for i := range arr {
		arr[i] = float64(i) + 0.5
	}
	v := FromArray(arr)

	first, err := store.Upsert(ctx, "S1", v)
	require.NoError(t, err)
	assert.Equal(t, v, first.Features)

	time.Sleep(10 * time.Millisecond)
	second, err := store.Upsert(ctx, "S1", v)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	got, err := store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, v, got.Features)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	all, err := store.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	future := time.Now().Add(time.Hour)
	none, err := store.List(ctx, &future)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPostgresStore_ConcurrentColdStarts(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, amount := range []float64{100, 200} {
		wg.Add(1)
		go func(a float64) {
			defer wg.Done()
			_, err := store.Upsert(ctx, "new-sender", ColdStart(a))
			assert.NoError(t, err)
		}(amount)
	}
	wg.Wait()

	snap, err := store.Get(ctx, "new-sender")
	require.NoError(t, err)
	assert.Equal(t, ColdStart(snap.Features.AvgTopVolumes), snap.Features)
	assert.Contains(t, []float64{100, 200}, snap.Features.AvgTopVolumes)
}
