package mastery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/abhisek/skilltrace/internal/store"
)

// replayConcurrency bounds how many skills are rebuilt at once.
const replayConcurrency = 4

// Replay rebuilds every skill's mastery for userID from the stored answer
// history using the current calibration, e.g. after parameters change.
// Each skill is rebuilt under the store's per-skill lock, so answers
// submitted meanwhile are either folded in or applied on top afterwards.
// Different skills are replayed concurrently. The rebuilt records are
// returned ordered by skill ID.
func (s *Service) Replay(ctx context.Context, userID string) ([]store.SkillMasteryRecord, error) {
	answers, err := s.backend.EventRepo().AnswersForUser(ctx, userID, store.QueryOpts{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var skills []string
	for _, a := range answers {
		if !seen[a.SkillID] {
			seen[a.SkillID] = true
			skills = append(skills, a.SkillID)
		}
	}

	var (
		mu  sync.Mutex
		out []store.SkillMasteryRecord
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(replayConcurrency)
	for _, skillID := range skills {
		g.Go(func() error {
			rec, err := s.replaySkill(ctx, userID, skillID)
			if err != nil {
				return fmt.Errorf("replay %s: %w", skillID, err)
			}
			mu.Lock()
			out = append(out, *rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

func (s *Service) replaySkill(ctx context.Context, userID, skillID string) (*store.SkillMasteryRecord, error) {
	params, prior, err := s.ResolveParams(ctx, skillID)
	if err != nil {
		return nil, err
	}

	return s.backend.MasteryRepo().Rebuild(ctx, userID, skillID, prior, func(rec *store.SkillMasteryRecord, a store.AnswerEvent) error {
		before := bkt.State{Probability: rec.Probability, Attempts: rec.Attempts}
		obs := bkt.Observation{Correct: a.Correct, TimeSpent: a.TimeSpentSeconds, Confidence: a.ConfidenceScore}
		res, err := bkt.Update(before, obs, params, s.opts.Signals)
		if err != nil {
			return err
		}
		if res.Degenerate {
			s.log.Warn("degenerate mastery update during replay", "user", userID, "skill", skillID, "event", a.EventID)
		}
		s.apply(rec, res.State, a.Correct, a.Timestamp)
		return nil
	})
}
