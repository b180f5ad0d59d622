package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var paramsColumns = []string{"skill_id", "p_transit", "p_slip", "p_guess", "prior", "updated_at"}

// paramsRepo implements ParamsRepo using the ent SQL builder.
type paramsRepo struct {
	s *Store
}

func (r *paramsRepo) Get(ctx context.Context, skillID string) (*SkillParamsRecord, error) {
	q, args := r.s.sql.Select(paramsColumns...).
		From(r.s.sql.Table(skillParamsTable.Name)).
		Where(entsql.EQ("skill_id", skillID)).
		Query()

	rec, err := scanParams(r.s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query params: %w", err)
	}
	return rec, nil
}

func (r *paramsRepo) Put(ctx context.Context, rec *SkillParamsRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	q, args := r.s.sql.Insert(skillParamsTable.Name).
		Columns(paramsColumns...).
		Values(rec.SkillID, rec.Transit, rec.Slip, rec.Guess, rec.Prior, rec.UpdatedAt).
		OnConflict(
			entsql.ConflictColumns("skill_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	return nil
}

func (r *paramsRepo) List(ctx context.Context) ([]SkillParamsRecord, error) {
	q, args := r.s.sql.Select(paramsColumns...).
		From(r.s.sql.Table(skillParamsTable.Name)).
		OrderBy("skill_id").
		Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list params: %w", err)
	}
	defer rows.Close()

	var out []SkillParamsRecord
	for rows.Next() {
		rec, err := scanParams(rows)
		if err != nil {
			return nil, fmt.Errorf("scan params: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanParams(row rowScanner) (*SkillParamsRecord, error) {
	var rec SkillParamsRecord
	if err := row.Scan(&rec.SkillID, &rec.Transit, &rec.Slip, &rec.Guess, &rec.Prior, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
