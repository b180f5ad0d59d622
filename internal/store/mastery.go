package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var masteryColumns = []string{
	"id", "user_id", "skill_id", "probability", "attempts",
	"correct_count", "state", "mastered_at", "updated_at",
}

// masteryRepo implements MasteryRepo using the ent SQL builder.
type masteryRepo struct {
	s *Store
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *masteryRepo) Get(ctx context.Context, userID, skillID string) (*SkillMasteryRecord, error) {
	q, args := r.selectOne(userID, skillID)
	rec, err := scanMastery(r.s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query mastery: %w", err)
	}
	return rec, nil
}

func (r *masteryRepo) ListByUser(ctx context.Context, userID string) ([]SkillMasteryRecord, error) {
	q, args := r.s.sql.Select(masteryColumns...).
		From(r.s.sql.Table(skillMasteryTable.Name)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy("skill_id").
		Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list mastery: %w", err)
	}
	defer rows.Close()

	var out []SkillMasteryRecord
	for rows.Next() {
		rec, err := scanMastery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mastery: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *masteryRepo) Modify(ctx context.Context, userID, skillID string, prior float64, fn func(rec *SkillMasteryRecord) error) (*SkillMasteryRecord, error) {
	unlock := r.s.locks.Lock(lockKey(userID, skillID))
	defer unlock()

	var out *SkillMasteryRecord
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := r.load(ctx, tx, userID, skillID, prior)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		out, err = r.save(ctx, tx, userID, skillID, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *masteryRepo) ApplyAnswer(ctx context.Context, ev *AnswerEvent, prior float64, fn func(rec *SkillMasteryRecord) error) (*SkillMasteryRecord, bool, error) {
	unlock := r.s.locks.Lock(lockKey(ev.UserID, ev.SkillID))
	defer unlock()

	var (
		out     *SkillMasteryRecord
		applied bool
	)
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		before, after, err := r.s.answerMastery(ctx, tx, ev.EventID)
		if err != nil {
			return err
		}
		rec, err := r.load(ctx, tx, ev.UserID, ev.SkillID, prior)
		if err != nil {
			return err
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
		if out, err = r.save(ctx, tx, ev.UserID, ev.SkillID, rec); err != nil {
			return err
		}
		p1 := out.Probability
		if err := r.s.setAnswerMastery(ctx, tx, ev.EventID, p0, p1); err != nil {
			return err
		}
		ev.MasteryBefore, ev.MasteryAfter = &p0, &p1
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

func (r *masteryRepo) Rebuild(ctx context.Context, userID, skillID string, prior float64, fold func(rec *SkillMasteryRecord, ev AnswerEvent) error) (*SkillMasteryRecord, error) {
	unlock := r.s.locks.Lock(lockKey(userID, skillID))
	defer unlock()

	var out *SkillMasteryRecord
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		sel := r.s.sql.Select(answerColumns...).
			From(r.s.sql.Table(answerEventsTable.Name)).
			Where(entsql.And(
				entsql.EQ("user_id", userID),
				entsql.EQ("skill_id", skillID),
			)).
			OrderBy("sequence")
		history, err := r.s.queryAnswers(ctx, tx, sel)
		if err != nil {
			return err
		}

		rec := newMasteryRecord(userID, skillID, prior)
		for _, ev := range history {
			before := rec.Probability
			if err := fold(rec, ev); err != nil {
				return err
			}
			if err := r.s.setAnswerMastery(ctx, tx, ev.EventID, before, rec.Probability); err != nil {
				return err
			}
		}
		out, err = r.save(ctx, tx, userID, skillID, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *masteryRepo) Put(ctx context.Context, rec *SkillMasteryRecord) error {
	unlock := r.s.locks.Lock(lockKey(rec.UserID, rec.SkillID))
	defer unlock()

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		return r.upsert(ctx, tx, rec)
	})
}

func (r *masteryRepo) selectOne(userID, skillID string) (string, []any) {
	return r.s.sql.Select(masteryColumns...).
		From(r.s.sql.Table(skillMasteryTable.Name)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("skill_id", skillID),
		)).
		Query()
}

// load returns the record inside tx, or a fresh one at prior when the skill
// was never attempted.
func (r *masteryRepo) load(ctx context.Context, tx *sql.Tx, userID, skillID string, prior float64) (*SkillMasteryRecord, error) {
	q, args := r.selectOne(userID, skillID)
	rec, err := scanMastery(tx.QueryRowContext(ctx, q, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return newMasteryRecord(userID, skillID, prior), nil
	case err != nil:
		return nil, fmt.Errorf("query mastery: %w", err)
	}
	return rec, nil
}

// save upserts rec under (userID, skillID) and returns the stored row.
func (r *masteryRepo) save(ctx context.Context, tx *sql.Tx, userID, skillID string, rec *SkillMasteryRecord) (*SkillMasteryRecord, error) {
	rec.UserID, rec.SkillID = userID, skillID
	if err := r.upsert(ctx, tx, rec); err != nil {
		return nil, err
	}
	q, args := r.selectOne(userID, skillID)
	saved, err := scanMastery(tx.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, fmt.Errorf("reload mastery: %w", err)
	}
	return saved, nil
}

func (r *masteryRepo) upsert(ctx context.Context, tx *sql.Tx, rec *SkillMasteryRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	q, args := r.s.sql.Insert(skillMasteryTable.Name).
		Columns("user_id", "skill_id", "probability", "attempts", "correct_count", "state", "mastered_at", "updated_at").
		Values(rec.UserID, rec.SkillID, rec.Probability, rec.Attempts, rec.CorrectCount, rec.State, rec.MasteredAt, rec.UpdatedAt).
		OnConflict(
			entsql.ConflictColumns("user_id", "skill_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save mastery: %w", err)
	}
	return nil
}

func newMasteryRecord(userID, skillID string, prior float64) *SkillMasteryRecord {
	return &SkillMasteryRecord{
		UserID:      userID,
		SkillID:     skillID,
		Probability: prior,
		State:       "new",
	}
}

func lockKey(userID, skillID string) string {
	return userID + "\x00" + skillID
}

func scanMastery(row rowScanner) (*SkillMasteryRecord, error) {
	var (
		rec        SkillMasteryRecord
		masteredAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.SkillID, &rec.Probability, &rec.Attempts,
		&rec.CorrectCount, &rec.State, &masteredAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if masteredAt.Valid {
		t := masteredAt.Time
		rec.MasteredAt = &t
	}
	return &rec, nil
}
