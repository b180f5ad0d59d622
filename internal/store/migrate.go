package store

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	skillMasteryColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "user_id", Type: field.TypeString},
		{Name: "skill_id", Type: field.TypeString},
		{Name: "probability", Type: field.TypeFloat64},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "correct_count", Type: field.TypeInt, Default: 0},
		{Name: "state", Type: field.TypeString, Default: "new"},
		{Name: "mastered_at", Type: field.TypeTime, Nullable: true},
		{Name: "updated_at", Type: field.TypeTime},
	}
	skillMasteryTable = &schema.Table{
		Name:       "skill_mastery",
		Columns:    skillMasteryColumns,
		PrimaryKey: []*schema.Column{skillMasteryColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "skillmastery_user_id_skill_id",
				Unique:  true,
				Columns: []*schema.Column{skillMasteryColumns[1], skillMasteryColumns[2]},
			},
		},
	}

	skillParamsColumns = []*schema.Column{
		{Name: "skill_id", Type: field.TypeString},
		{Name: "p_transit", Type: field.TypeFloat64},
		{Name: "p_slip", Type: field.TypeFloat64},
		{Name: "p_guess", Type: field.TypeFloat64},
		{Name: "prior", Type: field.TypeFloat64},
		{Name: "updated_at", Type: field.TypeTime},
	}
	skillParamsTable = &schema.Table{
		Name:       "skill_params",
		Columns:    skillParamsColumns,
		PrimaryKey: []*schema.Column{skillParamsColumns[0]},
	}

	answerEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "event_id", Type: field.TypeString, Unique: true},
		{Name: "user_id", Type: field.TypeString},
		{Name: "session_id", Type: field.TypeString},
		{Name: "skill_id", Type: field.TypeString},
		{Name: "correct", Type: field.TypeBool},
		{Name: "time_spent_seconds", Type: field.TypeFloat64, Nullable: true},
		{Name: "confidence_score", Type: field.TypeInt, Nullable: true},
		{Name: "mastery_before", Type: field.TypeFloat64, Nullable: true},
		{Name: "mastery_after", Type: field.TypeFloat64, Nullable: true},
	}
	answerEventsTable = &schema.Table{
		Name:       "answer_events",
		Columns:    answerEventsColumns,
		PrimaryKey: []*schema.Column{answerEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "answerevent_user_id", Columns: []*schema.Column{answerEventsColumns[4]}},
			{Name: "answerevent_session_id", Columns: []*schema.Column{answerEventsColumns[5]}},
			{Name: "answerevent_skill_id", Columns: []*schema.Column{answerEventsColumns[6]}},
		},
	}

	snapshotsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "snapshot_id", Type: field.TypeString, Unique: true},
		{Name: "sequence", Type: field.TypeInt64},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "user_id", Type: field.TypeString},
		{Name: "snapshot_type", Type: field.TypeString},
		{Name: "session_id", Type: field.TypeString, Nullable: true},
		{Name: "data", Type: field.TypeJSON},
	}
	snapshotsTable = &schema.Table{
		Name:       "snapshots",
		Columns:    snapshotsColumns,
		PrimaryKey: []*schema.Column{snapshotsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "snapshot_user_id_timestamp", Columns: []*schema.Column{snapshotsColumns[4], snapshotsColumns[3]}},
		},
	}

	tables = []*schema.Table{
		skillMasteryTable,
		skillParamsTable,
		answerEventsTable,
		snapshotsTable,
	}
)

// migrate creates or upgrades all tables.
func migrate(ctx context.Context, drv *entsql.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return err
	}
	return m.Create(ctx, tables...)
}
