package features

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned when a sender has no cached vector.
var ErrSnapshotNotFound = errors.New("feature snapshot not found")

// Snapshot is the cached feature vector of one sender.
type Snapshot struct {
	SenderID  string    `json:"sender_id"`
	Features  Vector    `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the feature cache. There is at most one snapshot per sender and
// every write replaces the whole vector.
type Store interface {
	// Upsert overwrites the sender's vector and bumps updated_at, or inserts
	// a new snapshot.
	Upsert(ctx context.Context, senderID string, v Vector) (*Snapshot, error)
	Get(ctx context.Context, senderID string) (*Snapshot, error)
	// List returns snapshots created or updated at or after since (all when
	// nil), most recently updated first.
	List(ctx context.Context, since *time.Time) ([]*Snapshot, error)
}
