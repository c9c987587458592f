// Package transactions stores financial transfer records and owns the
// Pending → Predicted lifecycle of each one.
package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("transaction not found")
	ErrNotPending = errors.New("transaction is not pending")
	ErrDuplicate  = errors.New("transaction already exists")
	// ErrNotReviewable is returned when reviewing a transaction that has no
	// classifier outcome yet.
	ErrNotReviewable = errors.New("transaction has no prediction to review")
)

// Status is the lifecycle or payout status of a transaction.
type Status string

const (
	StatusPending             Status = "Pending"
	StatusPaid                Status = "Paid"
	StatusPredictedGenuine    Status = "Predicted: Genuine"
	StatusPredictedSuspicious Status = "Predicted: Suspicious"
	StatusPredictedUnknown    Status = "Predicted: Unknown"
)

// PredictedStatus maps a classifier label to the terminal status it produces.
func PredictedStatus(label string) Status {
	switch label {
	case "Genuine":
		return StatusPredictedGenuine
	case "Suspicious":
		return StatusPredictedSuspicious
	default:
		return StatusPredictedUnknown
	}
}

// IsPredicted reports whether the status is a classifier outcome.
func (s Status) IsPredicted() bool {
	switch s {
	case StatusPredictedGenuine, StatusPredictedSuspicious, StatusPredictedUnknown:
		return true
	}
	return false
}

// ReviewStatus is an analyst's verdict on a flagged transaction.
type ReviewStatus string

const (
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewEscalated ReviewStatus = "escalated"
)

// Valid reports whether r is a known verdict.
func (r ReviewStatus) Valid() bool {
	switch r {
	case ReviewApproved, ReviewRejected, ReviewEscalated:
		return true
	}
	return false
}

// KeepsFlag reports whether the transaction stays in the review queue after
// this verdict.
func (r ReviewStatus) KeepsFlag() bool {
	return r == ReviewEscalated
}

// Transaction is a single money transfer.
type Transaction struct {
	ID                    string          `json:"id"`
	SenderID              string          `json:"sender_id"`
	SenderName            string          `json:"sender_name,omitempty"`
	SenderMobile          string          `json:"sender_mobile,omitempty"`
	SenderCountry         string          `json:"sender_country,omitempty"`
	BeneficiaryID         string          `json:"beneficiary_id,omitempty"`
	BeneficiaryName       string          `json:"beneficiary_name,omitempty"`
	BeneficiaryCountry    string          `json:"beneficiary_country,omitempty"`
	MTN                   string          `json:"mtn,omitempty"`
	Channel               string          `json:"channel,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency,omitempty"`
	PaymentMethod         string          `json:"payment_method,omitempty"`
	SendingCountry        string          `json:"sending_country,omitempty"`
	PayoutCountry         string          `json:"payout_country,omitempty"`
	SendingDate           time.Time       `json:"sending_date"`
	ComplianceReleaseDate *time.Time      `json:"compliance_release_date,omitempty"`
	Status                Status          `json:"status"`
	StatusDetail          string          `json:"status_detail,omitempty"`
	Confidence            *float64        `json:"confidence,omitempty"`
	ModelVersion          string          `json:"model_version,omitempty"`
	Flagged               bool            `json:"flagged"`
	ReviewStatus          ReviewStatus    `json:"review_status,omitempty"`
	ReviewedBy            string          `json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Outcome is the classifier result written by Finalize.
type Outcome struct {
	Label        string
	Confidence   float64
	ModelVersion string
}

// Review is an analyst's decision on a classified transaction.
type Review struct {
	Status     ReviewStatus
	ReviewedBy string
}

// Stats summarises the stored transactions.
type Stats struct {
	TotalTransactions int             `json:"total_transactions"`
	TotalVolume       decimal.Decimal `json:"total_volume"`
	PendingCount      int             `json:"pending_count"`
	PaidCount         int             `json:"paid_count"`
	GenuineCount      int             `json:"genuine_count"`
	GenuineVolume     decimal.Decimal `json:"genuine_volume"`
	SuspiciousCount   int             `json:"suspicious_count"`
	SuspiciousVolume  decimal.Decimal `json:"suspicious_volume"`
	UnknownCount      int             `json:"unknown_count"`
	FlaggedCount      int             `json:"flagged_count"`
	DistinctSenders   int             `json:"distinct_senders"`
}

// Store persists transactions.
type Store interface {
	// Create inserts a new transaction. The ID must be unique.
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	// ListBySender returns every transaction of a sender ordered by
	// sending date, then creation time, then id.
	ListBySender(ctx context.Context, senderID string) ([]*Transaction, error)
	// Finalize moves a Pending transaction to its predicted status in a
	// single atomic write. Returns ErrNotPending if it was already finalized.
	// A Suspicious outcome also flags the transaction for review.
	Finalize(ctx context.Context, id string, outcome Outcome) (*Transaction, error)
	// ListFlagged returns up to limit flagged transactions, newest first.
	ListFlagged(ctx context.Context, limit int) ([]*Transaction, error)
	// Review records an analyst verdict and clears the flag unless the
	// verdict keeps it. Status is never changed. Returns ErrNotReviewable
	// for transactions without a prediction.
	Review(ctx context.Context, id string, review Review) (*Transaction, error)
	// Discard removes a transaction that is still Pending.
	Discard(ctx context.Context, id string) error
	ListSenders(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*Stats, error)
}

// newerFirst orders the review queue by creation time, newest first.
func newerFirst(a, b *Transaction) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Less orders transactions chronologically with deterministic tie-breaks.
func Less(a, b *Transaction) bool {
	if !a.SendingDate.Equal(b.SendingDate) {
		return a.SendingDate.Before(b.SendingDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (t *Transaction) clone() *Transaction {
	c := *t
	if t.ComplianceReleaseDate != nil {
		d := *t.ComplianceReleaseDate
		c.ComplianceReleaseDate = &d
	}
	if t.Confidence != nil {
		f := *t.Confidence
		c.Confidence = &f
	}
	if t.ReviewedAt != nil {
		r := *t.ReviewedAt
		c.ReviewedAt = &r
	}
	return &c
}
