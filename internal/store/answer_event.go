package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

// ErrNotFound is returned when an update targets a row that does not exist.
var ErrNotFound = errors.New("store: not found")

var answerColumns = []string{
	"id", "sequence", "timestamp", "event_id", "user_id", "session_id", "skill_id",
	"correct", "time_spent_seconds", "confidence_score", "mastery_before", "mastery_after",
}

// eventRepo implements EventRepo using the ent SQL builder.
type eventRepo struct {
	s *Store
}

func (r *eventRepo) AppendAnswerEvent(ctx context.Context, data AnswerEventData) (*AnswerEvent, error) {
	ev := &AnswerEvent{
		AnswerEventData: data,
		EventID:         uuid.NewString(),
		Timestamp:       time.Now().UTC(),
	}

	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := r.s.seq.Next(ctx, tx)
		if err != nil {
			return err
		}
		ev.Sequence = seq

		q, args := r.s.sql.Insert(answerEventsTable.Name).
			Columns("sequence", "timestamp", "event_id", "user_id", "session_id", "skill_id",
				"correct", "time_spent_seconds", "confidence_score").
			Values(ev.Sequence, ev.Timestamp, ev.EventID, data.UserID, data.SessionID, data.SkillID,
				data.Correct, data.TimeSpentSeconds, data.ConfidenceScore).
			Query()
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("save answer event: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("answer event id: %w", err)
		}
		ev.ID = int(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *eventRepo) SetAnswerMastery(ctx context.Context, eventID string, before, after float64) error {
	return r.s.setAnswerMastery(ctx, r.s.db, eventID, before, after)
}

func (r *eventRepo) AnswersForUser(ctx context.Context, userID string, opts QueryOpts) ([]AnswerEvent, error) {
	preds := []*entsql.Predicate{entsql.EQ("user_id", userID)}
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if opts.Before > 0 {
		preds = append(preds, entsql.LT("sequence", opts.Before))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("timestamp", opts.From.UTC()))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LTE("timestamp", opts.To.UTC()))
	}

	sel := r.s.sql.Select(answerColumns...).
		From(r.s.sql.Table(answerEventsTable.Name)).
		Where(entsql.And(preds...)).
		OrderBy("sequence")
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}
	return r.query(ctx, sel)
}

func (r *eventRepo) AnswersForSession(ctx context.Context, sessionID string) ([]AnswerEvent, error) {
	sel := r.s.sql.Select(answerColumns...).
		From(r.s.sql.Table(answerEventsTable.Name)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("sequence")
	return r.query(ctx, sel)
}

func (r *eventRepo) query(ctx context.Context, sel *entsql.Selector) ([]AnswerEvent, error) {
	return r.s.queryAnswers(ctx, r.s.db, sel)
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) queryAnswers(ctx context.Context, db dbtx, sel *entsql.Selector) ([]AnswerEvent, error) {
	q, args := sel.Query()
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query answer events: %w", err)
	}
	defer rows.Close()

	var out []AnswerEvent
	for rows.Next() {
		ev, err := scanAnswerEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *Store) setAnswerMastery(ctx context.Context, db dbtx, eventID string, before, after float64) error {
	q, args := s.sql.Update(answerEventsTable.Name).
		Set("mastery_before", before).
		Set("mastery_after", after).
		Where(entsql.EQ("event_id", eventID)).
		Query()

	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update answer mastery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update answer mastery: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("answer event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// answerMastery returns the estimates recorded on an event; both are nil
// until the answer has been applied.
func (s *Store) answerMastery(ctx context.Context, db dbtx, eventID string) (before, after *float64, err error) {
	q, args := s.sql.Select("mastery_before", "mastery_after").
		From(s.sql.Table(answerEventsTable.Name)).
		Where(entsql.EQ("event_id", eventID)).
		Query()

	var b, a sql.NullFloat64
	err = db.QueryRowContext(ctx, q, args...).Scan(&b, &a)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("answer event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query answer mastery: %w", err)
	}
	return nullFloat(b), nullFloat(a), nil
}

func scanAnswerEvent(row rowScanner) (*AnswerEvent, error) {
	var (
		ev            AnswerEvent
		timeSpent     sql.NullFloat64
		confidence    sql.NullInt64
		before, after sql.NullFloat64
	)
	err := row.Scan(
		&ev.ID, &ev.Sequence, &ev.Timestamp, &ev.EventID, &ev.UserID, &ev.SessionID, &ev.SkillID,
		&ev.Correct, &timeSpent, &confidence, &before, &after,
	)
	if err != nil {
		return nil, err
	}
	ev.TimeSpentSeconds = nullFloat(timeSpent)
	if confidence.Valid {
		c := int(confidence.Int64)
		ev.ConfidenceScore = &c
	}
	ev.MasteryBefore = nullFloat(before)
	ev.MasteryAfter = nullFloat(after)
	return &ev, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
