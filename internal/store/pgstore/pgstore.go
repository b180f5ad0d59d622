// Package pgstore implements store.Backend on PostgreSQL via pgx. Per-row
// serialization uses SELECT ... FOR UPDATE, so several processes can share
// one database safely.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abhisek/skilltrace/internal/store"
)

const schemaSQL = `
CREATE SEQUENCE IF NOT EXISTS global_sequence;

CREATE TABLE IF NOT EXISTS skill_mastery (
	id            BIGSERIAL PRIMARY KEY,
	user_id       TEXT NOT NULL,
	skill_id      TEXT NOT NULL,
	probability   DOUBLE PRECISION NOT NULL,
	attempts      INT NOT NULL DEFAULT 0,
	correct_count INT NOT NULL DEFAULT 0,
	state         TEXT NOT NULL DEFAULT 'new',
	mastered_at   TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, skill_id)
);

CREATE TABLE IF NOT EXISTS skill_params (
	skill_id   TEXT PRIMARY KEY,
	p_transit  DOUBLE PRECISION NOT NULL,
	p_slip     DOUBLE PRECISION NOT NULL,
	p_guess    DOUBLE PRECISION NOT NULL,
	prior      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS answer_events (
	id                 BIGSERIAL PRIMARY KEY,
	sequence           BIGINT NOT NULL UNIQUE,
	timestamp          TIMESTAMPTZ NOT NULL,
	event_id           UUID NOT NULL UNIQUE,
	user_id            TEXT NOT NULL,
	session_id         TEXT NOT NULL,
	skill_id           TEXT NOT NULL,
	correct            BOOLEAN NOT NULL,
	time_spent_seconds DOUBLE PRECISION,
	confidence_score   INT CHECK (confidence_score BETWEEN 1 AND 5),
	mastery_before     DOUBLE PRECISION,
	mastery_after      DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS answer_events_user_id ON answer_events (user_id);
CREATE INDEX IF NOT EXISTS answer_events_session_id ON answer_events (session_id);

CREATE TABLE IF NOT EXISTS snapshots (
	id            BIGSERIAL PRIMARY KEY,
	snapshot_id   UUID NOT NULL UNIQUE,
	sequence      BIGINT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	user_id       TEXT NOT NULL,
	snapshot_type TEXT NOT NULL,
	session_id    TEXT,
	data          JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_user_id_timestamp ON snapshots (user_id, timestamp);
`

// Store is the PostgreSQL-backed store.Backend.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Backend = (*Store)(nil)

// Open connects to the database at dsn, verifies the connection and
// creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) MasteryRepo() store.MasteryRepo   { return &masteryRepo{pool: s.pool} }
func (s *Store) ParamsRepo() store.ParamsRepo     { return &paramsRepo{pool: s.pool} }
func (s *Store) EventRepo() store.EventRepo       { return &eventRepo{pool: s.pool} }
func (s *Store) SnapshotRepo() store.SnapshotRepo { return &snapshotRepo{pool: s.pool} }

// --- mastery ---

const masterySelect = `SELECT id, user_id, skill_id, probability, attempts, correct_count, state, mastered_at, updated_at
FROM skill_mastery`

type masteryRepo struct {
	pool *pgxpool.Pool
}

func (r *masteryRepo) Get(ctx context.Context, userID, skillID string) (*store.SkillMasteryRecord, error) {
	rec, err := scanMastery(r.pool.QueryRow(ctx,
		masterySelect+` WHERE user_id = $1 AND skill_id = $2`, userID, skillID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query mastery: %w", err)
	}
	return rec, nil
}

func (r *masteryRepo) ListByUser(ctx context.Context, userID string) ([]store.SkillMasteryRecord, error) {
	rows, err := r.pool.Query(ctx, masterySelect+` WHERE user_id = $1 ORDER BY skill_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list mastery: %w", err)
	}
	defer rows.Close()

	var out []store.SkillMasteryRecord
	for rows.Next() {
		rec, err := scanMastery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mastery: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *masteryRepo) Modify(ctx context.Context, userID, skillID string, prior float64, fn func(rec *store.SkillMasteryRecord) error) (*store.SkillMasteryRecord, error) {
	var out *store.SkillMasteryRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rec, err := lockMastery(ctx, tx, userID, skillID, prior)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		if err := saveMastery(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *masteryRepo) ApplyAnswer(ctx context.Context, ev *store.AnswerEvent, prior float64, fn func(rec *store.SkillMasteryRecord) error) (*store.SkillMasteryRecord, bool, error) {
	var (
		out     *store.SkillMasteryRecord
		applied bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rec, err := lockMastery(ctx, tx, ev.UserID, ev.SkillID, prior)
		if err != nil {
			return err
		}

		// Read after taking the row lock so a concurrent Rebuild's marks are visible.
		var before, after *float64
		err = tx.QueryRow(ctx, `SELECT mastery_before, mastery_after FROM answer_events WHERE event_id::text = $1`,
			ev.EventID).Scan(&before, &after)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("answer event %s: %w", ev.EventID, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query answer mastery: %w", err)
		}
		if after != nil {
			ev.MasteryBefore, ev.MasteryAfter = before, after
			out = rec
			return nil
		}

		p0 := rec.Probability
		if err := fn(rec); err != nil {
			return err
		}
		if err := saveMastery(ctx, tx, rec); err != nil {
			return err
		}
		p1 := rec.Probability
		if err := setAnswerMastery(ctx, tx, ev.EventID, p0, p1); err != nil {
			return err
		}
		ev.MasteryBefore, ev.MasteryAfter = &p0, &p1
		out, applied = rec, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

func (r *masteryRepo) Rebuild(ctx context.Context, userID, skillID string, prior float64, fold func(rec *store.SkillMasteryRecord, ev store.AnswerEvent) error) (*store.SkillMasteryRecord, error) {
	var out *store.SkillMasteryRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rec, err := lockMastery(ctx, tx, userID, skillID, prior)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, answerSelect+` WHERE user_id = $1 AND skill_id = $2 ORDER BY sequence`, userID, skillID)
		if err != nil {
			return fmt.Errorf("query answer events: %w", err)
		}
		history, err := collectAnswers(rows)
		if err != nil {
			return err
		}

		rec.Probability = prior
		rec.Attempts = 0
		rec.CorrectCount = 0
		rec.State = "new"
		rec.MasteredAt = nil
		for _, ev := range history {
			before := rec.Probability
			if err := fold(rec, ev); err != nil {
				return err
			}
			if err := setAnswerMastery(ctx, tx, ev.EventID, before, rec.Probability); err != nil {
				return err
			}
		}
		if err := saveMastery(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockMastery creates the row at prior if needed and locks it for the rest
// of tx.
func lockMastery(ctx context.Context, tx pgx.Tx, userID, skillID string, prior float64) (*store.SkillMasteryRecord, error) {
	_, err := tx.Exec(ctx, `INSERT INTO skill_mastery (user_id, skill_id, probability)
		VALUES ($1, $2, $3) ON CONFLICT (user_id, skill_id) DO NOTHING`, userID, skillID, prior)
	if err != nil {
		return nil, fmt.Errorf("create mastery: %w", err)
	}

	rec, err := scanMastery(tx.QueryRow(ctx,
		masterySelect+` WHERE user_id = $1 AND skill_id = $2 FOR UPDATE`, userID, skillID))
	if err != nil {
		return nil, fmt.Errorf("lock mastery: %w", err)
	}
	return rec, nil
}

func saveMastery(ctx context.Context, tx pgx.Tx, rec *store.SkillMasteryRecord) error {
	err := tx.QueryRow(ctx, `UPDATE skill_mastery
		SET probability = $2, attempts = $3, correct_count = $4, state = $5, mastered_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		rec.ID, rec.Probability, rec.Attempts, rec.CorrectCount, rec.State, rec.MasteredAt,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save mastery: %w", err)
	}
	return nil
}

func (r *masteryRepo) Put(ctx context.Context, rec *store.SkillMasteryRecord) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO skill_mastery
			(user_id, skill_id, probability, attempts, correct_count, state, mastered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id, skill_id) DO UPDATE SET
			probability = EXCLUDED.probability,
			attempts = EXCLUDED.attempts,
			correct_count = EXCLUDED.correct_count,
			state = EXCLUDED.state,
			mastered_at = EXCLUDED.mastered_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, updated_at`,
		rec.UserID, rec.SkillID, rec.Probability, rec.Attempts, rec.CorrectCount, rec.State, rec.MasteredAt,
	).Scan(&rec.ID, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save mastery: %w", err)
	}
	return nil
}

func scanMastery(row pgx.Row) (*store.SkillMasteryRecord, error) {
	var rec store.SkillMasteryRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.SkillID, &rec.Probability, &rec.Attempts,
		&rec.CorrectCount, &rec.State, &rec.MasteredAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// --- params ---

type paramsRepo struct {
	pool *pgxpool.Pool
}

func (r *paramsRepo) Get(ctx context.Context, skillID string) (*store.SkillParamsRecord, error) {
	var rec store.SkillParamsRecord
	err := r.pool.QueryRow(ctx, `SELECT skill_id, p_transit, p_slip, p_guess, prior, updated_at
		FROM skill_params WHERE skill_id = $1`, skillID,
	).Scan(&rec.SkillID, &rec.Transit, &rec.Slip, &rec.Guess, &rec.Prior, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query params: %w", err)
	}
	return &rec, nil
}

func (r *paramsRepo) Put(ctx context.Context, rec *store.SkillParamsRecord) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO skill_params (skill_id, p_transit, p_slip, p_guess, prior, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (skill_id) DO UPDATE SET
			p_transit = EXCLUDED.p_transit,
			p_slip = EXCLUDED.p_slip,
			p_guess = EXCLUDED.p_guess,
			prior = EXCLUDED.prior,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		rec.SkillID, rec.Transit, rec.Slip, rec.Guess, rec.Prior,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	return nil
}

func (r *paramsRepo) List(ctx context.Context) ([]store.SkillParamsRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT skill_id, p_transit, p_slip, p_guess, prior, updated_at
		FROM skill_params ORDER BY skill_id`)
	if err != nil {
		return nil, fmt.Errorf("list params: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.SkillParamsRecord, error) {
		var rec store.SkillParamsRecord
		err := row.Scan(&rec.SkillID, &rec.Transit, &rec.Slip, &rec.Guess, &rec.Prior, &rec.UpdatedAt)
		return rec, err
	})
}

// --- answer events ---

const answerSelect = `SELECT id, sequence, timestamp, event_id::text, user_id, session_id, skill_id,
	correct, time_spent_seconds, confidence_score, mastery_before, mastery_after
FROM answer_events`

type eventRepo struct {
	pool *pgxpool.Pool
}

func (r *eventRepo) AppendAnswerEvent(ctx context.Context, data store.AnswerEventData) (*store.AnswerEvent, error) {
	ev := &store.AnswerEvent{
		AnswerEventData: data,
		EventID:         uuid.NewString(),
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO answer_events
			(sequence, timestamp, event_id, user_id, session_id, skill_id, correct, time_spent_seconds, confidence_score)
		VALUES (nextval('global_sequence'), now(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, sequence, timestamp`,
		ev.EventID, data.UserID, data.SessionID, data.SkillID, data.Correct, data.TimeSpentSeconds, data.ConfidenceScore,
	).Scan(&ev.ID, &ev.Sequence, &ev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("save answer event: %w", err)
	}
	return ev, nil
}

func (r *eventRepo) SetAnswerMastery(ctx context.Context, eventID string, before, after float64) error {
	return setAnswerMastery(ctx, r.pool, eventID, before, after)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func setAnswerMastery(ctx context.Context, db execer, eventID string, before, after float64) error {
	tag, err := db.Exec(ctx, `UPDATE answer_events SET mastery_before = $2, mastery_after = $3
		WHERE event_id::text = $1`, eventID, before, after)
	if err != nil {
		return fmt.Errorf("update answer mastery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("answer event %s: %w", eventID, store.ErrNotFound)
	}
	return nil
}

func (r *eventRepo) AnswersForUser(ctx context.Context, userID string, opts store.QueryOpts) ([]store.AnswerEvent, error) {
	q := answerSelect + ` WHERE user_id = $1`
	args := []any{userID}
	if opts.After > 0 {
		args = append(args, opts.After)
		q += fmt.Sprintf(" AND sequence > $%d", len(args))
	}
	if opts.Before > 0 {
		args = append(args, opts.Before)
		q += fmt.Sprintf(" AND sequence < $%d", len(args))
	}
	if !opts.From.IsZero() {
		args = append(args, opts.From)
		q += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !opts.To.IsZero() {
		args = append(args, opts.To)
		q += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	q += " ORDER BY sequence"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.query(ctx, q, args...)
}

func (r *eventRepo) AnswersForSession(ctx context.Context, sessionID string) ([]store.AnswerEvent, error) {
	return r.query(ctx, answerSelect+` WHERE session_id = $1 ORDER BY sequence`, sessionID)
}

func (r *eventRepo) query(ctx context.Context, q string, args ...any) ([]store.AnswerEvent, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query answer events: %w", err)
	}
	return collectAnswers(rows)
}

func collectAnswers(rows pgx.Rows) ([]store.AnswerEvent, error) {
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.AnswerEvent, error) {
		var ev store.AnswerEvent
		err := row.Scan(&ev.ID, &ev.Sequence, &ev.Timestamp, &ev.EventID, &ev.UserID, &ev.SessionID,
			&ev.SkillID, &ev.Correct, &ev.TimeSpentSeconds, &ev.ConfidenceScore, &ev.MasteryBefore, &ev.MasteryAfter)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan answer events: %w", err)
	}
	return events, nil
}

// --- snapshots ---

const snapshotSelect = `SELECT id, snapshot_id::text, sequence, timestamp, user_id, snapshot_type,
	COALESCE(session_id, ''), data
FROM snapshots`

type snapshotRepo struct {
	pool *pgxpool.Pool
}

func (r *snapshotRepo) Save(ctx context.Context, snap *store.Snapshot) error {
	if snap.Data.Version == 0 {
		snap.Data.Version = store.SnapshotVersion
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

	err = r.pool.QueryRow(ctx, `INSERT INTO snapshots
			(snapshot_id, sequence, timestamp, user_id, snapshot_type, session_id, data)
		VALUES ($1, nextval('global_sequence'), $2, $3, $4, $5, $6)
		RETURNING id, sequence`,
		snap.SnapshotID, snap.Timestamp, snap.UserID, snap.Type, sessionID, data,
	).Scan(&snap.ID, &snap.Sequence)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) Latest(ctx context.Context, userID string) (*store.Snapshot, error) {
	return r.latest(ctx, snapshotSelect+` WHERE user_id = $1 ORDER BY timestamp DESC, sequence DESC LIMIT 1`, userID)
}

func (r *snapshotRepo) LatestBefore(ctx context.Context, userID string, t time.Time) (*store.Snapshot, error) {
	return r.latest(ctx, snapshotSelect+` WHERE user_id = $1 AND timestamp < $2 ORDER BY timestamp DESC, sequence DESC LIMIT 1`, userID, t)
}

func (r *snapshotRepo) Prune(ctx context.Context, userID string, keep int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM snapshots WHERE user_id = $1 AND sequence NOT IN (
		SELECT sequence FROM snapshots WHERE user_id = $1 ORDER BY sequence DESC LIMIT $2)`, userID, keep)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

func (r *snapshotRepo) latest(ctx context.Context, q string, args ...any) (*store.Snapshot, error) {
	var (
		snap store.Snapshot
		data []byte
	)
	err := r.pool.QueryRow(ctx, q, args...).Scan(&snap.ID, &snap.SnapshotID, &snap.Sequence, &snap.Timestamp,
		&snap.UserID, &snap.Type, &snap.SessionID, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap.Data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot data: %w", err)
	}
	return &snap, nil
}
