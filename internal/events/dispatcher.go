package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/txsentinel/internal/circuitbreaker"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/retry"
)

// ErrQueueFull is reported when a notification is dropped.
var ErrQueueFull = errors.New("event queue full")

const (
	DefaultQueueSize  = 1024
	publishTimeout    = 5 * time.Second
	publishAttempts   = 3
	publishBaseDelay  = 100 * time.Millisecond
	breakerThreshold  = 5
	breakerOpenPeriod = 30 * time.Second
)

// Dispatcher fans notifications out to sinks from a bounded queue drained by
// a single worker. Emit never blocks; a full queue drops the notification.
// Each sink is retried with backoff and guarded by its own circuit.
type Dispatcher struct {
	queue   chan *Notification
	sinks   []Sink
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger

	attempts  int
	baseDelay time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity.
func NewDispatcher(queueSize int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		queue:     make(chan *Notification, queueSize),
		sinks:     sinks,
		breaker:   circuitbreaker.New(breakerThreshold, breakerOpenPeriod),
		logger:    logger,
		attempts:  publishAttempts,
		baseDelay: publishBaseDelay,
		done:      make(chan struct{}),
	}
}

// WithRetry overrides the per-sink retry policy.
func (d *Dispatcher) WithRetry(attempts int, baseDelay time.Duration) *Dispatcher {
	d.attempts = attempts
	d.baseDelay = baseDelay
	return d
}

// AddSink registers a sink. Call before Run.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Sinks returns the registered sink names.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Emit enqueues a notification.
func (d *Dispatcher) Emit(n *Notification) {
	if err := d.TryEmit(n); err != nil {
		d.logger.Warn("notification dropped",
			"transaction_id", n.TransactionID, "reason", err)
	}
}

// TryEmit enqueues a notification or reports why it could not.
func (d *Dispatcher) TryEmit(n *Notification) error {
	select {
	case <-d.done:
		metrics.EventsTotal.WithLabelValues("queue", "dropped").Inc()
		return errors.New("dispatcher stopped")
	default:
	}

	select {
	case d.queue <- n:
		metrics.EventQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		metrics.EventsTotal.WithLabelValues("queue", "dropped").Inc()
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is already
// queued and closes any sink that implements io.Closer.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeSinks()
	for {
		select {
		case <-ctx.Done():
			d.stop()
			d.drain()
			return
		case n := <-d.queue:
			metrics.EventQueueDepth.Set(float64(len(d.queue)))
			d.deliver(context.WithoutCancel(ctx), n)
		}
	}
}

func (d *Dispatcher) stop() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) drain() {
	for {
		select {
		case n := <-d.queue:
			d.deliver(context.Background(), n)
		default:
			metrics.EventQueueDepth.Set(0)
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	for _, sink := range d.sinks {
		name := sink.Name()
		if !d.breaker.Allow(name) {
			metrics.EventsTotal.WithLabelValues(name, "skipped").Inc()
			continue
		}

		policy := retry.Policy{
			Attempts:  d.attempts,
			BaseDelay: d.baseDelay,
			MaxDelay:  publishTimeout,
			OnRetry: func(attempt int, err error) {
				d.logger.Debug("retrying notification delivery",
					"sink", name, "attempt", attempt, "error", err)
			},
		}
		err := policy.Do(ctx, func() error {
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			return sink.Publish(pctx, n)
		})
		if err != nil {
			d.breaker.RecordFailure(name)
			metrics.EventsTotal.WithLabelValues(name, "failed").Inc()
			d.logger.Warn("notification delivery failed",
				"sink", name, "transaction_id", n.TransactionID, "error", err)
			continue
		}
		d.breaker.RecordSuccess(name)
		metrics.EventsTotal.WithLabelValues(name, "sent").Inc()
	}
}

func (d *Dispatcher) closeSinks() {
	for _, sink := range d.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				d.logger.Warn("sink close failed", "sink", sink.Name(), "error", err)
			}
		}
	}
}

// SinkStatus reports the circuit state of every sink that has failed.
func (d *Dispatcher) SinkStatus() []circuitbreaker.Status {
	return d.breaker.Snapshot()
}

// QueueLen reports the number of queued notifications.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}
