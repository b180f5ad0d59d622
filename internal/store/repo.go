package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// SkillMasteryRecord is the persisted mastery estimate for one (user, skill).
type SkillMasteryRecord struct {
	ID           int
	UserID       string
	SkillID      string
	Probability  float64
	Attempts     int
	CorrectCount int
	State        string     // new, learning, mastered, rusty
	MasteredAt   *time.Time // first time mastery was reached
	UpdatedAt    time.Time
}

// SkillParamsRecord holds the calibration for a single skill.
type SkillParamsRecord struct {
	SkillID   string
	Transit   float64
	Slip      float64
	Guess     float64
	Prior     float64
	UpdatedAt time.Time
}

// AnswerEventData captures a submitted answer.
type AnswerEventData struct {
	UserID           string
	SessionID        string
	SkillID          string
	Correct          bool
	TimeSpentSeconds *float64
	ConfidenceScore  *int
}

// AnswerEvent is a stored answer with its ordering metadata and, once the
// mastery update has run, the estimate before and after it.
type AnswerEvent struct {
	AnswerEventData
	ID            int
	EventID       string
	Sequence      int64
	Timestamp     time.Time
	MasteryBefore *float64
	MasteryAfter  *float64
}

// SnapshotData captures a user's mastery at a point in time.
type SnapshotData struct {
	Version int                `json:"version"`
	Skills  map[string]float64 `json:"skills"`
}

// Snapshot represents a point-in-time capture of a user's mastery.
type Snapshot struct {
	ID         int
	SnapshotID string
	UserID     string
	Type       string // e.g. session_complete, manual
	SessionID  string
	Sequence   int64
	Timestamp  time.Time
	Data       SnapshotData
}

// MasteryRepo reads and writes SkillMasteryRecords.
type MasteryRepo interface {
	// Get returns the record, or nil if the skill was never attempted.
	Get(ctx context.Context, userID, skillID string) (*SkillMasteryRecord, error)

	// ListByUser returns all records for a user ordered by skill ID.
	ListByUser(ctx context.Context, userID string) ([]SkillMasteryRecord, error)

	// Modify runs fn with exclusive access to the (user, skill) record and
	// persists the mutated record before releasing it. A missing record is
	// created with the given prior and zero attempts. If fn returns an
	// error nothing is written.
	Modify(ctx context.Context, userID, skillID string, prior float64, fn func(rec *SkillMasteryRecord) error) (*SkillMasteryRecord, error)

	// ApplyAnswer is Modify for one recorded answer: fn runs with exclusive
	// access to (ev.UserID, ev.SkillID) and, in the same transaction, the
	// estimate before and after fn is stored on the event. An event that
	// already carries estimates (e.g. folded in by Rebuild) is not applied
	// again: fn is not called, applied is false and ev is filled with the
	// stored estimates.
	ApplyAnswer(ctx context.Context, ev *AnswerEvent, prior float64, fn func(rec *SkillMasteryRecord) error) (rec *SkillMasteryRecord, applied bool, err error)

	// Rebuild resets the (user, skill) record to prior and folds every
	// answer the user gave for the skill through fold in sequence order,
	// storing each answer's estimates. The history is read and the record
	// written under the same exclusive access as Modify.
	Rebuild(ctx context.Context, userID, skillID string, prior float64, fold func(rec *SkillMasteryRecord, ev AnswerEvent) error) (*SkillMasteryRecord, error)

	// Put overwrites the record for (rec.UserID, rec.SkillID).
	Put(ctx context.Context, rec *SkillMasteryRecord) error
}

// ParamsRepo manages per-skill calibration.
type ParamsRepo interface {
	// Get returns the calibration, or nil if the skill has none.
	Get(ctx context.Context, skillID string) (*SkillParamsRecord, error)

	// Put inserts or replaces the calibration for rec.SkillID.
	Put(ctx context.Context, rec *SkillParamsRecord) error

	// List returns all calibrations ordered by skill ID.
	List(ctx context.Context) ([]SkillParamsRecord, error)
}

// EventRepo provides append and query access to answer events.
type EventRepo interface {
	// AppendAnswerEvent stores an answer and returns it with its
	// sequence, event ID and timestamp assigned.
	AppendAnswerEvent(ctx context.Context, data AnswerEventData) (*AnswerEvent, error)

	// SetAnswerMastery attaches the mastery estimate before and after the
	// answer to an existing event.
	SetAnswerMastery(ctx context.Context, eventID string, before, after float64) error

	// AnswersForUser returns a user's answers in sequence order.
	AnswersForUser(ctx context.Context, userID string, opts QueryOpts) ([]AnswerEvent, error)

	// AnswersForSession returns a session's answers in sequence order.
	AnswersForSession(ctx context.Context, sessionID string) ([]AnswerEvent, error)
}

// SnapshotRepo manages mastery snapshots.
type SnapshotRepo interface {
	// Save stores a new snapshot, assigning its ID, sequence and, when
	// unset, its timestamp.
	Save(ctx context.Context, snap *Snapshot) error

	// Latest returns the user's most recent snapshot, or nil if none exist.
	Latest(ctx context.Context, userID string) (*Snapshot, error)

	// LatestBefore returns the user's most recent snapshot taken strictly
	// before t, or nil.
	LatestBefore(ctx context.Context, userID string, t time.Time) (*Snapshot, error)

	// Prune deletes all but the user's N most recent snapshots.
	Prune(ctx context.Context, userID string, keep int) error
}

// Backend bundles the repositories a storage engine provides.
type Backend interface {
	MasteryRepo() MasteryRepo
	ParamsRepo() ParamsRepo
	EventRepo() EventRepo
	SnapshotRepo() SnapshotRepo
	Close() error
}
