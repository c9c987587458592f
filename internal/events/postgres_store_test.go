//go:build integration

package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txsentinel/internal/testutil"
)

func TestPostgresNotificationStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresNotificationStore(db)
	ctx := context.Background()

	suspicious := NewPredictionComplete(sampleTx(), "Suspicious", 0.9, fixedNow)
	require.NoError(t, store.Save(ctx, suspicious))
	require.NoError(t, store.Save(ctx, suspicious)) // redelivery is idempotent

	genuine := NewPredictionComplete(sampleTx(), "Genuine", 0.6, fixedNow.Add(1))
	require.NoError(t, store.Save(ctx, genuine))

	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Genuine", recent[0].Status)
	assert.Nil(t, recent[0].HighAlertDate)
	require.NotNil(t, recent[1].HighAlertDate)
	assert.True(t, recent[1].Amount.Equal(suspicious.Amount))
}
