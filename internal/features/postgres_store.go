package features

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists the feature cache in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed feature cache.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	featureColumns  = strings.Join(FieldNames, ", ")
	snapshotColumns = "sender_id, " + featureColumns + ", created_at, updated_at"
	upsertQuery     = buildUpsertQuery()
)

// buildUpsertQuery writes all features in one statement so a concurrent
// reader never observes a partially updated row.
func buildUpsertQuery() string {
	placeholders := make([]string, Width)
	updates := make([]string, Width)
	for i, name := range FieldNames {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		updates[i] = name + " = EXCLUDED." + name
	}
	return `INSERT INTO sender_features (sender_id, ` + featureColumns + `, created_at, updated_at)
		VALUES ($1, ` + strings.Join(placeholders, ", ") + `, NOW(), NOW())
		ON CONFLICT (sender_id) DO UPDATE SET
			` + strings.Join(updates, ",\n\t\t\t") + `,
			updated_at = NOW()
		RETURNING ` + snapshotColumns
}

func (s *PostgresStore) Upsert(ctx context.Context, senderID string, v Vector) (*Snapshot, error) {
	arr := v.Array()
	args := make([]any, 0, Width+1)
	args = append(args, senderID)
	for _, f := range arr {
		args = append(args, f)
	}

	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, upsertQuery, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert features: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) Get(ctx context.Context, senderID string) (*Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM sender_features WHERE sender_id = $1`, senderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get features: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) List(ctx context.Context, since *time.Time) ([]*Snapshot, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if since == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+snapshotColumns+`
			FROM sender_features
			ORDER BY updated_at DESC, sender_id ASC`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+snapshotColumns+`
			FROM sender_features
			WHERE created_at >= $1 OR updated_at >= $1
			ORDER BY updated_at DESC, sender_id ASC`, *since)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan features: %w", err)
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		snap Snapshot
		arr  [Width]float64
	)
	dest := make([]any, 0, Width+3)
	dest = append(dest, &snap.SenderID)
	for i := range arr {
		dest = append(dest, &arr[i])
	}
	dest = append(dest, &snap.CreatedAt, &snap.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	snap.Features = FromArray(arr)
	return &snap, nil
}
