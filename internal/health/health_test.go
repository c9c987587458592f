package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) Status   { return Status{Healthy: true} }
func down(context.Context) Status { return Status{Healthy: false, Detail: "connection refused"} }

func TestRegistry_Empty(t *testing.T) {
	healthy, statuses := NewRegistry(time.Second).CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestRegistry_CriticalFailureGatesReadiness(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("database", ok)
	r.Register("model", down)

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 2)
	assert.Equal(t, "database", statuses[0].Name)
	assert.Equal(t, "model", statuses[1].Name)
	assert.Equal(t, "connection refused", statuses[1].Detail)
	assert.True(t, statuses[1].Critical)
}

func TestRegistry_InformationalFailureIsReported(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("database", ok)
	r.RegisterInformational("sinks", down)

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	require.Len(t, statuses, 2)
	assert.False(t, statuses[1].Healthy)
	assert.False(t, statuses[1].Critical)
}

func TestRegistry_CheckTimeout(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Register("slow", func(ctx context.Context) Status {
		<-ctx.Done()
		return Status{Healthy: false, Detail: ctx.Err().Error()}
	})

	start := time.Now()
	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Contains(t, statuses[0].Detail, "deadline")
	assert.Less(t, time.Since(start), time.Second)
}

func TestModelChecker(t *testing.T) {
	assert.True(t, Model(func() bool { return true })(context.Background()).Healthy)
	st := Model(func() bool { return false })(context.Background())
	assert.False(t, st.Healthy)
	assert.Contains(t, st.Detail, "no classifier")
}

func TestSinksChecker(t *testing.T) {
	st := Sinks(func() []SinkState {
		return []SinkState{{Sink: "amqp", State: "closed"}, {Sink: "kafka", State: "open"}}
	})(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, "kafka=open", st.Detail)

	assert.True(t, Sinks(func() []SinkState { return nil })(context.Background()).Healthy)
}
