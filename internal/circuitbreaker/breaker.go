// Package circuitbreaker trips per-sink delivery off after repeated failures
// so one unreachable broker cannot stall the event dispatcher.
package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State of a single sink's circuit.
type State int

const (
	StateClosed   State = iota // deliveries flow
	StateOpen                  // deliveries skipped
	StateHalfOpen              // one probe delivery in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "txsentinel",
	Subsystem: "sink_breaker",
	Name:      "state_transitions_total",
	Help:      "Sink circuit breaker state transitions by sink, from-state, and to-state.",
}, []string{"sink", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitions)
}

type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Status is a point-in-time view of one sink's circuit.
type Status struct {
	Sink        string    `json:"sink"`
	State       string    `json:"state"`
	Failures    int       `json:"consecutive_failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// Breaker tracks consecutive failures per sink name. A sink opens after
// threshold failures and is probed again once cooldown has passed.
type Breaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New creates a breaker. Non-positive arguments fall back to 5 failures
// and a 30s cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow reports whether a delivery to sink may be attempted. An open
// circuit past its cooldown moves to half-open and admits one probe.
func (b *Breaker) Allow(sink string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[sink]
	if !ok {
		return true
	}

	switch c.state {
	case StateOpen:
		if b.now().Sub(c.lastFailure) >= b.cooldown {
			b.move(c, sink, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess(sink string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[sink]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.move(c, sink, StateClosed)
	}
	c.failures = 0
}

// RecordFailure counts a failed delivery. A failed probe reopens the circuit.
func (b *Breaker) RecordFailure(sink string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[sink]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[sink] = c
	}
	c.failures++
	c.lastFailure = b.now()

	switch {
	case c.state == StateHalfOpen:
		b.move(c, sink, StateOpen)
	case c.state == StateClosed && c.failures >= b.threshold:
		b.move(c, sink, StateOpen)
	}
}

// State returns the circuit state for sink; unknown sinks are closed.
func (b *Breaker) State(sink string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[sink]; ok {
		return c.state
	}
	return StateClosed
}

// Snapshot lists every sink that has recorded a failure, sorted by name.
func (b *Breaker) Snapshot() []Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Status, 0, len(b.circuits))
	for name, c := range b.circuits {
		out = append(out, Status{
			Sink:        name,
			State:       c.state.String(),
			Failures:    c.failures,
			LastFailure: c.lastFailure,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sink < out[j].Sink })
	return out
}

// caller holds b.mu
func (b *Breaker) move(c *circuit, sink string, to State) {
	if c.state == to {
		return
	}
	transitions.WithLabelValues(sink, c.state.String(), to.String()).Inc()
	c.state = to
}
