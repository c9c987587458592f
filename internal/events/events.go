// Package events carries prediction-complete notifications to the websocket
// hub, the notification log and the optional Kafka and AMQP transports.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/txsentinel/internal/idgen"
	"github.com/mbd888/txsentinel/internal/transactions"
)

// EventType names the kind of notification.
type EventType string

const (
	EventPredictionComplete EventType = "prediction_complete"
)

// Notification is the outbound payload and its persisted audit copy.
// HighAlertDate is set only for Suspicious predictions.
type Notification struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	Message       string          `json:"message"`
	TransactionID string          `json:"transaction_id"`
	SenderID      string          `json:"sender_id"`
	SenderName    string          `json:"sender_name"`
	MobileNumber  string          `json:"mobile_number"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	HighAlertDate *time.Time      `json:"high_alert_date,omitempty"`
	Confidence    float64         `json:"confidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewPredictionComplete builds the notification for a finalized transaction.
func NewPredictionComplete(tx *transactions.Transaction, label string, confidence float64, now time.Time) *Notification {
	now = now.UTC()
	n := &Notification{
		ID:            idgen.WithPrefix("ntf_"),
		Type:          EventPredictionComplete,
		Message:       fmt.Sprintf("Transaction %s from %s classified as %s", tx.ID, displayName(tx), label),
		TransactionID: tx.ID,
		SenderID:      tx.SenderID,
		SenderName:    tx.SenderName,
		MobileNumber:  tx.SenderMobile,
		Amount:        tx.Amount,
		Status:        label,
		Confidence:    confidence,
		CreatedAt:     now,
	}
	if label == "Suspicious" {
		n.HighAlertDate = &now
	}
	return n
}

func displayName(tx *transactions.Transaction) string {
	if tx.SenderName != "" {
		return tx.SenderName
	}
	return tx.SenderID
}

// Emitter accepts notifications without blocking the caller.
type Emitter interface {
	Emit(n *Notification)
}

// Sink delivers a notification to one destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, n *Notification) error
}

// NopEmitter discards every notification.
type NopEmitter struct{}

func (NopEmitter) Emit(*Notification) {}
