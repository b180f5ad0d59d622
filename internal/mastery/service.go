package mastery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/abhisek/skilltrace/internal/store"
)

// ErrInvalidSubmission reports a submission missing a user, session or skill.
var ErrInvalidSubmission = errors.New("mastery: invalid submission")

// SkillOverride is a complete calibration configured for one skill.
type SkillOverride struct {
	Params bkt.Params
	Prior  float64
}

// Options configures a Service.
type Options struct {
	// Params and Prior apply to skills with no stored or configured calibration.
	Params bkt.Params
	Prior  float64
	// Signals tunes the response-time and confidence nudge.
	Signals bkt.SignalConfig
	// Overrides are per-skill calibrations from configuration, matched
	// case-insensitively. Calibrations stored in the ParamsRepo take
	// precedence.
	Overrides map[string]SkillOverride
	// SnapshotKeep prunes each user's snapshots to this many (0 keeps all).
	SnapshotKeep int

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultOptions returns Options with the global default calibration.
func DefaultOptions() Options {
	return Options{
		Params:  bkt.DefaultParams,
		Prior:   bkt.DefaultPrior,
		Signals: bkt.DefaultSignalConfig(),
	}
}

// Service records answers and keeps per-skill mastery up to date. It holds
// no mutable state of its own; serialization per (user, skill) is provided
// by the backend's MasteryRepo.
type Service struct {
	backend store.Backend
	opts    Options
	log     *slog.Logger
	now     func() time.Time
}

// NewService creates a mastery service over backend.
func NewService(backend store.Backend, opts Options) *Service {
	s := &Service{
		backend: backend,
		opts:    opts,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if len(opts.Overrides) > 0 {
		// Config keys arrive lowercased, so match on the folded ID.
		s.opts.Overrides = make(map[string]SkillOverride, len(opts.Overrides))
		for id, o := range opts.Overrides {
			s.opts.Overrides[strings.ToLower(id)] = o
		}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Submission is one answered question.
type Submission struct {
	UserID           string
	SessionID        string
	SkillID          string
	Correct          bool
	TimeSpentSeconds *float64
	ConfidenceScore  *int
}

func (sub Submission) validate() error {
	switch {
	case sub.UserID == "":
		return fmt.Errorf("%w: user ID is required", ErrInvalidSubmission)
	case sub.SessionID == "":
		return fmt.Errorf("%w: session ID is required", ErrInvalidSubmission)
	case sub.SkillID == "":
		return fmt.Errorf("%w: skill ID is required", ErrInvalidSubmission)
	}
	return nil
}

// Update describes how one answer moved a skill's mastery.
type Update struct {
	SkillID    string
	Before     float64
	After      float64
	Attempts   int
	Trend      bkt.Trend
	Nudge      float64
	Degenerate bool
	// Transition is set when the lifecycle label changed.
	Transition *StateTransition
}

// SubmitResult is the outcome of Submit. The answer is always recorded;
// Mastery is nil and MasteryErr set when the mastery update failed.
type SubmitResult struct {
	Event      store.AnswerEvent
	Mastery    *Update
	MasteryErr error
}

// Submit records an answer and then updates the skill's mastery. Only a
// failure to record the answer is returned as an error: mastery failures
// are logged and reported on the result so they never block the answer.
func (s *Service) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	events := s.backend.EventRepo()
	ev, err := events.AppendAnswerEvent(ctx, store.AnswerEventData{
		UserID:           sub.UserID,
		SessionID:        sub.SessionID,
		SkillID:          sub.SkillID,
		Correct:          sub.Correct,
		TimeSpentSeconds: sub.TimeSpentSeconds,
		ConfidenceScore:  sub.ConfidenceScore,
	})
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	upd, err := s.updateMastery(ctx, ev)
	if err != nil {
		s.log.Warn("mastery update failed, answer recorded without mastery change",
			"user", sub.UserID, "skill", sub.SkillID, "event", ev.EventID, "err", err)
		return &SubmitResult{Event: *ev, MasteryErr: err}, nil
	}
	return &SubmitResult{Event: *ev, Mastery: upd}, nil
}

// updateMastery applies ev to its skill. The event is marked with the
// estimates in the same transaction, so an answer a concurrent Replay has
// already folded in is reported, not counted twice.
func (s *Service) updateMastery(ctx context.Context, ev *store.AnswerEvent) (*Update, error) {
	params, prior, err := s.ResolveParams(ctx, ev.SkillID)
	if err != nil {
		return nil, err
	}
	obs := bkt.Observation{Correct: ev.Correct, TimeSpent: ev.TimeSpentSeconds, Confidence: ev.ConfidenceScore}

	var upd *Update
	rec, applied, err := s.backend.MasteryRepo().ApplyAnswer(ctx, ev, prior, func(rec *store.SkillMasteryRecord) error {
		before := bkt.State{Probability: rec.Probability, Attempts: rec.Attempts}
		res, err := bkt.Update(before, obs, params, s.opts.Signals)
		if err != nil {
			return err
		}

		upd = &Update{
			SkillID:    ev.SkillID,
			Before:     before.Probability,
			After:      res.State.Probability,
			Attempts:   res.State.Attempts,
			Trend:      bkt.TrendOf(before.Probability, res.State.Probability),
			Nudge:      res.Nudge,
			Degenerate: res.Degenerate,
		}
		upd.Transition = s.apply(rec, res.State, ev.Correct, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		before, after := rec.Probability, rec.Probability
		if ev.MasteryBefore != nil && ev.MasteryAfter != nil {
			before, after = *ev.MasteryBefore, *ev.MasteryAfter
		}
		return &Update{
			SkillID:  ev.SkillID,
			Before:   before,
			After:    after,
			Attempts: rec.Attempts,
			Trend:    bkt.TrendOf(before, after),
		}, nil
	}

	if upd.Degenerate {
		s.log.Warn("degenerate mastery update, prior carried through",
			"user", ev.UserID, "skill", ev.SkillID,
			"p_transit", params.Transit, "p_slip", params.Slip, "p_guess", params.Guess)
	}
	return upd, nil
}

// apply folds an estimator result into rec and advances its lifecycle.
func (s *Service) apply(rec *store.SkillMasteryRecord, st bkt.State, correct bool, at time.Time) *StateTransition {
	rec.Probability = st.Probability
	rec.Attempts = st.Attempts
	if correct {
		rec.CorrectCount++
	}

	from := MasteryState(rec.State)
	to, trigger := nextState(from, rec.Probability)
	rec.State = string(to)
	if to == StateMastered && rec.MasteredAt == nil {
		t := at.UTC()
		rec.MasteredAt = &t
	}
	if trigger == "" {
		return nil
	}
	return &StateTransition{SkillID: rec.SkillID, From: from, To: to, Trigger: trigger}
}

// ResolveParams returns the calibration for skillID: a stored calibration
// first, then a configured override, then the defaults.
func (s *Service) ResolveParams(ctx context.Context, skillID string) (bkt.Params, float64, error) {
	rec, err := s.backend.ParamsRepo().Get(ctx, skillID)
	if err != nil {
		return bkt.Params{}, 0, fmt.Errorf("load params for %s: %w", skillID, err)
	}
	if rec != nil {
		return bkt.Params{Transit: rec.Transit, Slip: rec.Slip, Guess: rec.Guess}, rec.Prior, nil
	}
	if o, ok := s.opts.Overrides[strings.ToLower(skillID)]; ok {
		return o.Params, o.Prior, nil
	}
	return s.opts.Params, s.opts.Prior, nil
}

// SetParams validates and stores a calibration for skillID.
func (s *Service) SetParams(ctx context.Context, skillID string, params bkt.Params, prior float64) error {
	if skillID == "" {
		return fmt.Errorf("%w: skill ID is required", ErrInvalidSubmission)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if err := bkt.ValidatePrior(prior); err != nil {
		return err
	}
	if !params.Standard() {
		s.log.Warn("p_slip + p_guess >= 1, correct answers will not count as evidence of mastery",
			"skill", skillID, "p_slip", params.Slip, "p_guess", params.Guess)
	}
	return s.backend.ParamsRepo().Put(ctx, &store.SkillParamsRecord{
		SkillID: skillID,
		Transit: params.Transit,
		Slip:    params.Slip,
		Guess:   params.Guess,
		Prior:   prior,
	})
}

// Masteries returns all of a user's skills ordered by skill ID.
func (s *Service) Masteries(ctx context.Context, userID string) ([]SkillView, error) {
	recs, err := s.backend.MasteryRepo().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]SkillView, 0, len(recs))
	for _, rec := range recs {
		params, _, err := s.ResolveParams(ctx, rec.SkillID)
		if err != nil {
			return nil, err
		}
		views = append(views, newSkillView(rec, params))
	}
	return views, nil
}
