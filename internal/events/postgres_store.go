package events

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// PostgresNotificationStore persists notifications in PostgreSQL.
type PostgresNotificationStore struct {
	db *sql.DB
}

// NewPostgresNotificationStore creates a PostgreSQL-backed notification log.
func NewPostgresNotificationStore(db *sql.DB) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

func (s *PostgresNotificationStore) Save(ctx context.Context, n *Notification) error {
	var alert sql.NullTime
	if n.HighAlertDate != nil {
		alert = sql.NullTime{Time: *n.HighAlertDate, Valid: true}
	}

	// ids are unique per emit; a retried delivery must not duplicate the row
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, message, transaction_id, sender_id, sender_name,
			mobile_number, amount, status, high_alert_date, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`,
		n.ID, n.Message, n.TransactionID, n.SenderID, n.SenderName,
		n.MobileNumber, n.Amount, n.Status, alert, n.Confidence, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *PostgresNotificationStore) ListRecent(ctx context.Context, limit int) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message, transaction_id, sender_id, sender_name,
			mobile_number, amount, status, high_alert_date, confidence, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Notification
	for rows.Next() {
		var (
			n      Notification
			amount decimal.Decimal
			alert  sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.Message, &n.TransactionID, &n.SenderID, &n.SenderName,
			&n.MobileNumber, &amount, &n.Status, &alert, &n.Confidence, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = EventPredictionComplete
		n.Amount = amount
		if alert.Valid {
			t := alert.Time.UTC()
			n.HighAlertDate = &t
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}
