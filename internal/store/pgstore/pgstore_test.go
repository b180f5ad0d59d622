package pgstore

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/skilltrace/internal/store"
)

// openTestStore connects to the database named by SKILLTRACE_TEST_PG_DSN and
// skips the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SKILLTRACE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SKILLTRACE_TEST_PG_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestModifyConcurrentNoLostUpdate(t *testing.T) {
	s := openTestStore(t)
	repo := s.MasteryRepo()
	ctx := context.Background()
	user := uuid.NewString()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Modify(ctx, user, "slope", 0.3, func(r *store.SkillMasteryRecord) error {
				r.Attempts++
				r.State = "learning"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, user, "slope")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, n, got.Attempts)
	assert.Equal(t, 0.3, got.Probability)
}

func TestAnswerEventsAndSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := uuid.NewString()
	session := uuid.NewString()

	secs := 12.0
	ev, err := s.EventRepo().AppendAnswerEvent(ctx, store.AnswerEventData{
		UserID: user, SessionID: session, SkillID: "slope", Correct: true, TimeSpentSeconds: &secs,
	})
	require.NoError(t, err)
	require.NoError(t, s.EventRepo().SetAnswerMastery(ctx, ev.EventID, 0.3, 0.646))

	answers, err := s.EventRepo().AnswersForSession(ctx, session)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].MasteryAfter)
	assert.InDelta(t, 0.646, *answers[0].MasteryAfter, 1e-9)
	assert.Nil(t, answers[0].ConfidenceScore)

	snap := &store.Snapshot{UserID: user, Type: "session_complete", SessionID: session,
		Data: store.SnapshotData{Skills: map[string]float64{"slope": 0.646}}}
	require.NoError(t, s.SnapshotRepo().Save(ctx, snap))
	assert.Greater(t, snap.Sequence, ev.Sequence)

	latest, err := s.SnapshotRepo().Latest(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, session, latest.SessionID)
	assert.InDelta(t, 0.646, latest.Data.Skills["slope"], 1e-9)
}

func TestApplyAnswerAndRebuild(t *testing.T) {
	s := openTestStore(t)
	repo := s.MasteryRepo()
	ctx := context.Background()
	user := uuid.NewString()

	ev, err := s.EventRepo().AppendAnswerEvent(ctx, store.AnswerEventData{
		UserID: user, SessionID: uuid.NewString(), SkillID: "slope", Correct: true,
	})
	require.NoError(t, err)

	bump := func(r *store.SkillMasteryRecord) error {
		r.Probability = 0.646
		r.Attempts++
		return nil
	}
	rec, applied, err := repo.ApplyAnswer(ctx, ev, 0.3, bump)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, rec.Attempts)

	rec, applied, err = repo.ApplyAnswer(ctx, &store.AnswerEvent{AnswerEventData: ev.AnswerEventData, EventID: ev.EventID}, 0.3, bump)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, rec.Attempts)

	rec, err = repo.Rebuild(ctx, user, "slope", 0.3, func(r *store.SkillMasteryRecord, _ store.AnswerEvent) error {
		r.Probability = 0.5
		r.Attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 0.5, rec.Probability)

	answers, err := s.EventRepo().AnswersForUser(ctx, user, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].MasteryAfter)
	assert.InDelta(t, 0.5, *answers[0].MasteryAfter, 1e-9)
}
