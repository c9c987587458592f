// Package health runs named subsystem checks for the readiness probe.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Detail   string `json:"detail,omitempty"`
}

// Checker reports the health of one subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named checkers. Only critical checkers affect readiness;
// the rest are reported for visibility.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
	timeout  time.Duration
}

type namedChecker struct {
	name     string
	critical bool
	check    Checker
}

// NewRegistry creates a registry whose checks each get timeout to finish.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{timeout: timeout}
}

// Register adds a checker that gates readiness.
func (r *Registry) Register(name string, check Checker) {
	r.add(name, true, check)
}

// RegisterInformational adds a checker that is reported but never gates
// readiness.
func (r *Registry) RegisterInformational(name string, check Checker) {
	r.add(name, false, check)
}

func (r *Registry) add(name string, critical bool, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, critical: critical, check: check})
	r.mu.Unlock()
}

// CheckAll runs every checker concurrently and returns whether all critical
// checks passed, with results in registration order.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checkers := append([]namedChecker(nil), r.checkers...)
	r.mu.RUnlock()

	statuses := make([]Status, len(checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, nc := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, r.timeout)
			defer cancel()
			st := nc.check(cctx)
			st.Name = nc.name
			st.Critical = nc.critical
			statuses[i] = st
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, st := range statuses {
		if st.Critical && !st.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

// Database pings the connection pool.
func Database(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		if err := db.PingContext(ctx); err != nil {
			return Status{Healthy: false, Detail: err.Error()}
		}
		stats := db.Stats()
		return Status{Healthy: true, Detail: fmt.Sprintf("open=%d in_use=%d", stats.OpenConnections, stats.InUse)}
	}
}

// Model reports whether a classifier is loaded.
func Model(available func() bool) Checker {
	return func(context.Context) Status {
		if !available() {
			return Status{Healthy: false, Detail: "no classifier model loaded; predictions are rejected"}
		}
		return Status{Healthy: true}
	}
}

// SinkState is the minimum needed to report an event sink's circuit.
type SinkState struct {
	Sink  string
	State string
}

// Sinks reports event sinks whose circuit is not closed.
func Sinks(snapshot func() []SinkState) Checker {
	return func(context.Context) Status {
		var tripped []string
		for _, s := range snapshot() {
			if s.State != "closed" {
				tripped = append(tripped, s.Sink+"="+s.State)
			}
		}
		if len(tripped) > 0 {
			return Status{Healthy: false, Detail: strings.Join(tripped, ", ")}
		}
		return Status{Healthy: true}
	}
}
