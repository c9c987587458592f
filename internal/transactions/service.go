package transactions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/validation"
)

// RecordHook runs after a historical transaction is stored.
type RecordHook func(ctx context.Context, senderID string)

// Service records and queries transactions.
type Service struct {
	store    Store
	onRecord RecordHook
	now      func() time.Time
}

// NewService creates a new transaction service
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithRecordHook registers a callback for newly recorded history, used to
// keep the feature cache in step with imports.
func (s *Service) WithRecordHook(fn RecordHook) *Service {
	s.onRecord = fn
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Record stores a historical transaction without classifying it. The status
// is required and may not be Pending, since nothing would finalize it.
func (s *Service) Record(ctx context.Context, in *Input) (*Transaction, error) {
	if in.Status == "" {
		return nil, validation.ValidationErrors{{Field: "status", Message: "is required for historical records"}}
	}
	if Status(in.Status) == StatusPending {
		return nil, validation.ValidationErrors{{Field: "status", Message: "historical records cannot be Pending"}}
	}

	tx, err := in.Build(s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	logging.ForTransaction(ctx, tx.ID, tx.SenderID).Info("historical transaction recorded", "status", tx.Status)
	if s.onRecord != nil {
		s.onRecord(ctx, tx.SenderID)
	}
	return tx, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListBySender(ctx context.Context, senderID string) ([]*Transaction, error) {
	return s.store.ListBySender(ctx, senderID)
}

// DefaultFlaggedLimit and MaxFlaggedLimit bound the review queue listing.
const (
	DefaultFlaggedLimit = 50
	MaxFlaggedLimit     = 500
)

// ListFlagged returns the review queue, newest first. Out-of-range limits
// fall back to the default or are capped.
func (s *Service) ListFlagged(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = DefaultFlaggedLimit
	}
	if limit > MaxFlaggedLimit {
		limit = MaxFlaggedLimit
	}
	return s.store.ListFlagged(ctx, limit)
}

// ReviewInput is the body of a review request. An empty status means
// approved.
type ReviewInput struct {
	ReviewStatus string `json:"review_status"`
	ReviewedBy   string `json:"reviewed_by"`
}

// Review records an analyst verdict on a classified transaction. The
// predicted status is left as it is.
func (s *Service) Review(ctx context.Context, id string, in *ReviewInput) (*Transaction, error) {
	status := ReviewStatus(strings.ToLower(strings.TrimSpace(in.ReviewStatus)))
	if status == "" {
		status = ReviewApproved
	}
	reviewer := validation.SanitizeString(in.ReviewedBy, validation.MaxStringLength)

	if errs := validation.Validate(
		func() *validation.ValidationError {
			if !status.Valid() {
				return &validation.ValidationError{Field: "review_status", Message: "must be approved, rejected or escalated"}
			}
			return nil
		},
		validation.MaxLength("reviewed_by", in.ReviewedBy, validation.MaxStringLength),
	); len(errs) > 0 {
		return nil, errs
	}

	tx, err := s.store.Review(ctx, id, Review{Status: status, ReviewedBy: reviewer})
	if err != nil {
		return nil, fmt.Errorf("review transaction: %w", err)
	}
	logging.ForTransaction(ctx, tx.ID, tx.SenderID).Info("transaction reviewed",
		"review_status", tx.ReviewStatus, "reviewed_by", tx.ReviewedBy, "flagged", tx.Flagged)
	return tx, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}
