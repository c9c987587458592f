package loadgen

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txsentinel/internal/transactions"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestGenerator_InputsBuild(t *testing.T) {
	g := NewGenerator(7, DefaultSuspiciousRate).WithClock(func() time.Time { return fixedNow })

	for i := 0; i < 200; i++ {
		in := g.Next()
		tx, err := in.Build(fixedNow)
		require.NoError(t, err, "input %d: %+v", i, in)
		assert.Equal(t, transactions.StatusPending, tx.Status)
		assert.False(t, tx.SendingDate.After(fixedNow))
		assert.False(t, tx.SendingDate.Before(fixedNow.AddDate(0, 0, -31)))
		assert.Len(t, in.MTN, 8)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	clock := func() time.Time { return fixedNow }
	a := NewGenerator(42, 0.5).WithClock(clock)
	b := NewGenerator(42, 0.5).WithClock(clock)

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestGenerator_SuspiciousShape(t *testing.T) {
	g := NewGenerator(1, 1).WithClock(func() time.Time { return fixedNow })
	for i := 0; i < 50; i++ {
		in := g.Next()
		assert.True(t, strings.HasPrefix(in.SenderID, "NEW"))
		assert.True(t, in.Amount.GreaterThanOrEqual(decimalOf(8000)))
		assert.True(t, in.Amount.LessThanOrEqual(decimalOf(15000)))
	}

	g = NewGenerator(1, 0).WithClock(func() time.Time { return fixedNow })
	for i := 0; i < 50; i++ {
		in := g.Next()
		assert.True(t, strings.HasPrefix(in.SenderID, "TEST"))
		assert.True(t, in.Amount.LessThanOrEqual(decimalOf(5000)))
	}
}
