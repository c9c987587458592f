package features

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/syncutil"
	"github.com/mbd888/txsentinel/internal/transactions"
)

// HistoryReader is the slice of the transaction store the feature service needs.
type HistoryReader interface {
	ListBySender(ctx context.Context, senderID string) ([]*transactions.Transaction, error)
	ListSenders(ctx context.Context) ([]string, error)
}

// DefaultBackfillConcurrency bounds parallel recomputes during Backfill.
const DefaultBackfillConcurrency = 8

// Service computes feature vectors from history and maintains the cache.
type Service struct {
	history     HistoryReader
	store       Store
	concurrency int
	senders     *syncutil.KeyedMutex
}

// NewService creates a new feature service
func NewService(history HistoryReader, store Store) *Service {
	return &Service{
		history:     history,
		store:       store,
		concurrency: DefaultBackfillConcurrency,
		senders:     syncutil.NewKeyedMutex(syncutil.DefaultShards),
	}
}

// WithConcurrency sets the Backfill worker limit.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// LockSender serializes history reads and cache writes for one sender, so a
// slow writer cannot replace a newer vector with one built from older
// history. Recompute takes the lock itself; callers pairing Compute with
// Save take it around both.
func (s *Service) LockSender(ctx context.Context, senderID string) (func(), error) {
	unlock, err := s.senders.Lock(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("lock sender %s: %w", senderID, err)
	}
	return unlock, nil
}

// Compute returns the vector for the transaction being scored, reporting
// whether the cold-start default was used. The current transaction is part
// of its own history; it is appended if the store does not return it yet.
func (s *Service) Compute(ctx context.Context, current *transactions.Transaction) (Vector, bool, error) {
	history, err := s.history.ListBySender(ctx, current.SenderID)
	if err != nil {
		return Vector{}, false, fmt.Errorf("load sender history: %w", err)
	}

	found := false
	for _, tx := range history {
		if tx.ID == current.ID {
			found = true
			break
		}
	}
	if !found {
		history = append(history, current)
	}

	v, cold, err := vectorFor(history)
	if cold {
		metrics.ColdStartsTotal.Inc()
	}
	return v, cold, err
}

// vectorFor applies the cold-start rule: a history holding only the
// transaction being scored gets the canonical default vector.
func vectorFor(history []*transactions.Transaction) (Vector, bool, error) {
	if len(history) == 1 {
		return ColdStart(history[0].Amount.InexactFloat64()), true, nil
	}
	v, err := Extract(history)
	return v, false, err
}

// Save upserts a vector into the cache.
func (s *Service) Save(ctx context.Context, senderID string, v Vector) (*Snapshot, error) {
	snap, err := s.store.Upsert(ctx, senderID, v)
	if err != nil {
		metrics.FeatureCacheWritesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FeatureCacheWritesTotal.WithLabelValues("ok").Inc()
	return snap, nil
}

// Get returns the cached snapshot of a sender.
func (s *Service) Get(ctx context.Context, senderID string) (*Snapshot, error) {
	return s.store.Get(ctx, senderID)
}

// List returns cached snapshots changed since the given time (all when nil).
func (s *Service) List(ctx context.Context, since *time.Time) ([]*Snapshot, error) {
	return s.store.List(ctx, since)
}

// Recompute replays a sender's stored history into the cache. Nothing is
// being scored, so the cold-start default never applies: a lone recorded
// transaction keeps its real status in the vector.
func (s *Service) Recompute(ctx context.Context, senderID string) (*Snapshot, error) {
	unlock, err := s.LockSender(ctx, senderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	history, err := s.history.ListBySender(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("load sender history: %w", err)
	}
	if len(history) == 0 {
		return nil, ErrNoHistory
	}

	v, err := Extract(history)
	if err != nil {
		return nil, err
	}
	return s.Save(ctx, senderID, v)
}

// BackfillResult summarises a Backfill run.
type BackfillResult struct {
	Senders  int      `json:"senders"`
	Updated  int      `json:"updated"`
	Failed   []string `json:"failed,omitempty"`
	Duration string   `json:"duration"`
}

// Backfill recomputes every known sender with bounded concurrency. A failed
// sender is reported and does not stop the run; cancellation does.
func (s *Service) Backfill(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	senders, err := s.history.ListSenders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list senders: %w", err)
	}

	var (
		mu     sync.Mutex
		result = &BackfillResult{Senders: len(senders)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, senderID := range senders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.Recompute(gctx, senderID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.L(ctx).Warn("backfill recompute failed", logging.KeySenderID, senderID, "error", err)
				result.Failed = append(result.Failed, senderID)
				return nil
			}
			result.Updated++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backfill interrupted: %w", err)
	}

	sort.Strings(result.Failed)
	result.Duration = time.Since(start).String()
	logging.L(ctx).Info("feature backfill complete",
		"senders", result.Senders, "updated", result.Updated, "failed", len(result.Failed))
	return result, nil
}
