package transactions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Transaction
	bySender map[string][]string // senderID → transaction ids in insert order
	now      func() time.Time
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Transaction),
		bySender: make(map[string][]string),
		now:      time.Now,
	}
}

// WithClock overrides the clock used for UpdatedAt (tests).
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[tx.ID]; ok {
		return ErrDuplicate
	}
	s.byID[tx.ID] = tx.clone()
	s.bySender[tx.SenderID] = append(s.bySender[tx.SenderID], tx.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return tx.clone(), nil
}

func (s *MemoryStore) ListBySender(ctx context.Context, senderID string) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySender[senderID]
	result := make([]*Transaction, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.byID[id].clone())
	}
	sort.SliceStable(result, func(i, j int) bool { return Less(result[i], result[j]) })
	return result, nil
}

func (s *MemoryStore) Finalize(ctx context.Context, id string, outcome Outcome) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if tx.Status != StatusPending {
		return nil, ErrNotPending
	}

	conf := outcome.Confidence
	tx.Status = PredictedStatus(outcome.Label)
	tx.Flagged = tx.Status == StatusPredictedSuspicious
	tx.StatusDetail = outcome.Label
	tx.Confidence = &conf
	tx.ModelVersion = outcome.ModelVersion
	tx.UpdatedAt = s.now()
	return tx.clone(), nil
}

func (s *MemoryStore) ListFlagged(ctx context.Context, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Transaction
	for _, tx := range s.byID {
		if tx.Flagged {
			result = append(result, tx.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return newerFirst(result[i], result[j]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) Review(ctx context.Context, id string, review Review) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !tx.Status.IsPredicted() {
		return nil, ErrNotReviewable
	}

	now := s.now()
	tx.ReviewStatus = review.Status
	tx.ReviewedBy = review.ReviewedBy
	tx.ReviewedAt = &now
	tx.Flagged = review.Status.KeepsFlag()
	tx.UpdatedAt = now
	return tx.clone(), nil
}

func (s *MemoryStore) Discard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if tx.Status != StatusPending {
		return ErrNotPending
	}

	delete(s.byID, id)
	ids := s.bySender[tx.SenderID]
	for i, other := range ids {
		if other == id {
			s.bySender[tx.SenderID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.bySender[tx.SenderID]) == 0 {
		delete(s.bySender, tx.SenderID)
	}
	return nil
}

func (s *MemoryStore) ListSenders(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	senders := make([]string, 0, len(s.bySender))
	for id := range s.bySender {
		senders = append(senders, id)
	}
	sort.Strings(senders)
	return senders, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{
		TotalVolume:      decimal.Zero,
		GenuineVolume:    decimal.Zero,
		SuspiciousVolume: decimal.Zero,
		DistinctSenders:  len(s.bySender),
	}
	for _, tx := range s.byID {
		st.TotalTransactions++
		st.TotalVolume = st.TotalVolume.Add(tx.Amount)
		switch tx.Status {
		case StatusPending:
			st.PendingCount++
		case StatusPaid:
			st.PaidCount++
		case StatusPredictedGenuine:
			st.GenuineCount++
			st.GenuineVolume = st.GenuineVolume.Add(tx.Amount)
		case StatusPredictedSuspicious:
			st.SuspiciousCount++
			st.SuspiciousVolume = st.SuspiciousVolume.Add(tx.Amount)
		case StatusPredictedUnknown:
			st.UnknownCount++
		}
		if tx.Flagged {
			st.FlaggedCount++
		}
	}
	return st, nil
}
