package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `id, sender_id, sender_name, sender_mobile, sender_country,
	beneficiary_id, beneficiary_name, beneficiary_country, mtn, channel,
	amount, currency, payment_method, sending_country, payout_country,
	sending_date, compliance_release_date, status, status_detail,
	confidence, model_version, flagged, review_status, reviewed_by,
	reviewed_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	var release sql.NullTime
	if tx.ComplianceReleaseDate != nil {
		release = sql.NullTime{Time: *tx.ComplianceReleaseDate, Valid: true}
	}
	var conf sql.NullFloat64
	if tx.Confidence != nil {
		conf = sql.NullFloat64{Float64: *tx.Confidence, Valid: true}
	}
	var reviewed sql.NullTime
	if tx.ReviewedAt != nil {
		reviewed = sql.NullTime{Time: *tx.ReviewedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`,
		tx.ID, tx.SenderID, tx.SenderName, tx.SenderMobile, tx.SenderCountry,
		tx.BeneficiaryID, tx.BeneficiaryName, tx.BeneficiaryCountry, tx.MTN, tx.Channel,
		tx.Amount, tx.Currency, tx.PaymentMethod, tx.SendingCountry, tx.PayoutCountry,
		tx.SendingDate, release, string(tx.Status), tx.StatusDetail,
		conf, tx.ModelVersion, tx.Flagged, string(tx.ReviewStatus), tx.ReviewedBy,
		reviewed, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) ListBySender(ctx context.Context, senderID string) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE sender_id = $1
		ORDER BY sending_date ASC, created_at ASC, id ASC
	`, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sender transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Finalize(ctx context.Context, id string, outcome Outcome) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET status = $2, status_detail = $3, confidence = $4, model_version = $5,
		    flagged = ($2 = 'Predicted: Suspicious'), updated_at = NOW()
		WHERE id = $1 AND status = 'Pending'
		RETURNING `+txColumns,
		id, string(PredictedStatus(outcome.Label)), outcome.Label, outcome.Confidence, outcome.ModelVersion,
	)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missingOrFinal(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finalize transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) ListFlagged(ctx context.Context, limit int) ([]*Transaction, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE flagged
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Review(ctx context.Context, id string, review Review) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET review_status = $2, reviewed_by = $3, reviewed_at = NOW(),
		    flagged = $4, updated_at = NOW()
		WHERE id = $1 AND status LIKE 'Predicted:%'
		RETURNING `+txColumns,
		id, string(review.Status), review.ReviewedBy, review.Status.KeepsFlag(),
	)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		// the row exists but has no prediction yet
		err = s.missingOrFinal(ctx, id)
		if errors.Is(err, ErrNotPending) {
			return nil, ErrNotReviewable
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to review transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) Discard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND status = 'Pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to discard transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.missingOrFinal(ctx, id)
	}
	return nil
}

// missingOrFinal explains why a Pending-guarded write matched no row.
func (s *PostgresStore) missingOrFinal(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check transaction: %w", err)
	}
	if exists {
		return ErrNotPending
	}
	return ErrNotFound
}

func (s *PostgresStore) ListSenders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT sender_id FROM transactions ORDER BY sender_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list senders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var senders []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, id)
	}
	return senders, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount), 0),
			COUNT(*) FILTER (WHERE status = 'Pending'),
			COUNT(*) FILTER (WHERE status = 'Paid'),
			COUNT(*) FILTER (WHERE status = 'Predicted: Genuine'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'Predicted: Genuine'), 0),
			COUNT(*) FILTER (WHERE status = 'Predicted: Suspicious'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'Predicted: Suspicious'), 0),
			COUNT(*) FILTER (WHERE status = 'Predicted: Unknown'),
			COUNT(*) FILTER (WHERE flagged),
			COUNT(DISTINCT sender_id)
		FROM transactions
	`).Scan(
		&st.TotalTransactions, &st.TotalVolume,
		&st.PendingCount, &st.PaidCount,
		&st.GenuineCount, &st.GenuineVolume,
		&st.SuspiciousCount, &st.SuspiciousVolume,
		&st.UnknownCount, &st.FlaggedCount, &st.DistinctSenders,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute transaction stats: %w", err)
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*Transaction, error) {
	var (
		tx       Transaction
		status   string
		amount   decimal.Decimal
		release  sql.NullTime
		conf     sql.NullFloat64
		review   string
		reviewed sql.NullTime
	)
	err := row.Scan(
		&tx.ID, &tx.SenderID, &tx.SenderName, &tx.SenderMobile, &tx.SenderCountry,
		&tx.BeneficiaryID, &tx.BeneficiaryName, &tx.BeneficiaryCountry, &tx.MTN, &tx.Channel,
		&amount, &tx.Currency, &tx.PaymentMethod, &tx.SendingCountry, &tx.PayoutCountry,
		&tx.SendingDate, &release, &status, &tx.StatusDetail,
		&conf, &tx.ModelVersion, &tx.Flagged, &review, &tx.ReviewedBy,
		&reviewed, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Amount = amount
	tx.Status = Status(status)
	tx.SendingDate = tx.SendingDate.UTC()
	if release.Valid {
		t := release.Time.UTC()
		tx.ComplianceReleaseDate = &t
	}
	if conf.Valid {
		f := conf.Float64
		tx.Confidence = &f
	}
	tx.ReviewStatus = ReviewStatus(review)
	if reviewed.Valid {
		t := reviewed.Time.UTC()
		tx.ReviewedAt = &t
	}
	return &tx, nil
}
