package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

// SnapshotVersion is the current SnapshotData layout.
const SnapshotVersion = 1

var snapshotColumns = []string{
	"id", "snapshot_id", "sequence", "timestamp", "user_id", "snapshot_type", "session_id", "data",
}

// snapshotRepo implements SnapshotRepo using the ent SQL builder.
type snapshotRepo struct {
	s *Store
}

func (r *snapshotRepo) Save(ctx context.Context, snap *Snapshot) error {
	if snap.Data.Version == 0 {
		snap.Data.Version = SnapshotVersion
	}
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	snap.Timestamp = snap.Timestamp.UTC()
	snap.SnapshotID = uuid.NewString()

	var sessionID *string
	if snap.SessionID != "" {
		sessionID = &snap.SessionID
	}

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := r.s.seq.Next(ctx, tx)
		if err != nil {
			return err
		}

		q, args := r.s.sql.Insert(snapshotsTable.Name).
			Columns("snapshot_id", "sequence", "timestamp", "user_id", "snapshot_type", "session_id", "data").
			Values(snap.SnapshotID, seq, snap.Timestamp, snap.UserID, snap.Type, sessionID, string(data)).
			Query()
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("snapshot id: %w", err)
		}
		snap.ID = int(id)
		snap.Sequence = seq
		return nil
	})
}

func (r *snapshotRepo) Latest(ctx context.Context, userID string) (*Snapshot, error) {
	return r.latest(ctx, entsql.EQ("user_id", userID))
}

func (r *snapshotRepo) LatestBefore(ctx context.Context, userID string, t time.Time) (*Snapshot, error) {
	return r.latest(ctx, entsql.And(
		entsql.EQ("user_id", userID),
		entsql.LT("timestamp", t.UTC()),
	))
}

func (r *snapshotRepo) Prune(ctx context.Context, userID string, keep int) error {
	// Find the newest snapshot that falls outside the keep window.
	q, args := r.s.sql.Select("sequence").
		From(r.s.sql.Table(snapshotsTable.Name)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("sequence")).
		Offset(keep).
		Limit(1).
		Query()

	var threshold int64
	err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // fewer than keep snapshots exist
	}
	if err != nil {
		return fmt.Errorf("query snapshots for prune: %w", err)
	}

	q, args = r.s.sql.Delete(snapshotsTable.Name).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.LTE("sequence", threshold),
		)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

func (r *snapshotRepo) latest(ctx context.Context, where *entsql.Predicate) (*Snapshot, error) {
	q, args := r.s.sql.Select(snapshotColumns...).
		From(r.s.sql.Table(snapshotsTable.Name)).
		Where(where).
		OrderBy(entsql.Desc("timestamp"), entsql.Desc("sequence")).
		Limit(1).
		Query()

	snap, err := scanSnapshot(r.s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return snap, nil
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snap      Snapshot
		sessionID sql.NullString
		data      []byte
	)
	err := row.Scan(&snap.ID, &snap.SnapshotID, &snap.Sequence, &snap.Timestamp,
		&snap.UserID, &snap.Type, &sessionID, &data)
	if err != nil {
		return nil, err
	}
	snap.SessionID = sessionID.String
	if err := json.Unmarshal(data, &snap.Data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot data: %w", err)
	}
	return &snap, nil
}
