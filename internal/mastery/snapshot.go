package mastery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/abhisek/skilltrace/internal/store"
)

// Snapshot types.
const (
	SnapshotSessionComplete = "session_complete"
	SnapshotManual          = "manual"
)

// TakeSnapshot records the user's current mastery of every skill.
func (s *Service) TakeSnapshot(ctx context.Context, userID, snapshotType, sessionID string) (*store.Snapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrInvalidSubmission)
	}
	if snapshotType == "" {
		snapshotType = SnapshotManual
	}

	recs, err := s.backend.MasteryRepo().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	skills := make(map[string]float64, len(recs))
	for _, rec := range recs {
		skills[rec.SkillID] = rec.Probability
	}

	snap := &store.Snapshot{
		UserID:    userID,
		Type:      snapshotType,
		SessionID: sessionID,
		Timestamp: s.now(),
		Data:      store.SnapshotData{Version: store.SnapshotVersion, Skills: skills},
	}
	repo := s.backend.SnapshotRepo()
	if err := repo.Save(ctx, snap); err != nil {
		return nil, err
	}

	if s.opts.SnapshotKeep > 0 {
		if err := repo.Prune(ctx, userID, s.opts.SnapshotKeep); err != nil {
			s.log.Warn("failed to prune snapshots", "user", userID, "err", err)
		}
	}
	return snap, nil
}

// Improvement is the change in one skill's mastery over a session.
type Improvement struct {
	SkillID string
	// MasteryBefore comes from the latest snapshot taken before the
	// session started, or 0 when there is none.
	MasteryBefore float64
	MasteryAfter  float64
	// MasteryIncrease is in percentage points, rounded to 0.1.
	MasteryIncrease   float64
	CurrentPercentage float64
	TotalAttempts     int
	CorrectAttempts   int
}

type sessionStats struct {
	total   int
	correct int
}

// Improvements compares, for every skill practised in sessionID, the
// current mastery with the latest snapshot taken before sessionStart.
// Skills without a current mastery record are skipped. Results are sorted
// by increase, largest first.
func (s *Service) Improvements(ctx context.Context, userID, sessionID string, sessionStart time.Time) ([]Improvement, error) {
	answers, err := s.backend.EventRepo().AnswersForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]*sessionStats)
	var order []string
	for _, a := range answers {
		if a.UserID != userID {
			continue
		}
		st, ok := stats[a.SkillID]
		if !ok {
			st = &sessionStats{}
			stats[a.SkillID] = st
			order = append(order, a.SkillID)
		}
		st.total++
		if a.Correct {
			st.correct++
		}
	}
	if len(order) == 0 {
		return []Improvement{}, nil
	}

	recs, err := s.backend.MasteryRepo().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := make(map[string]float64, len(recs))
	for _, rec := range recs {
		current[rec.SkillID] = rec.Probability
	}

	previous := map[string]float64{}
	snap, err := s.backend.SnapshotRepo().LatestBefore(ctx, userID, sessionStart)
	if err != nil {
		return nil, err
	}
	if snap != nil && snap.Data.Skills != nil {
		previous = snap.Data.Skills
	}

	out := make([]Improvement, 0, len(order))
	for _, skillID := range order {
		after, ok := current[skillID]
		if !ok {
			continue
		}
		before := previous[skillID]
		st := stats[skillID]
		out = append(out, Improvement{
			SkillID:           skillID,
			MasteryBefore:     before,
			MasteryAfter:      after,
			MasteryIncrease:   round1((after - before) * 100),
			CurrentPercentage: round1(after * 100),
			TotalAttempts:     st.total,
			CorrectAttempts:   st.correct,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MasteryIncrease > out[j].MasteryIncrease
	})
	return out, nil
}
