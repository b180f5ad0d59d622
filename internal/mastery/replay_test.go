package mastery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/abhisek/skilltrace/internal/store"
)

func TestReplay_MatchesIncrementalUpdates(t *testing.T) {
	svc, s := newTestService(t, DefaultOptions())
	ctx := context.Background()

	fast, slow := 2.0, 400.0
	sure, unsure := 5, 1
	subs := []Submission{
		{SkillID: "add", Correct: true},
		{SkillID: "add", Correct: true, TimeSpentSeconds: &fast},
		{SkillID: "sub", Correct: false, ConfidenceScore: &sure},
		{SkillID: "add", Correct: false, TimeSpentSeconds: &slow},
		{SkillID: "sub", Correct: true, ConfidenceScore: &unsure},
		{SkillID: "mul", Correct: true},
	}
	for _, sub := range subs {
		sub.UserID, sub.SessionID = "u1", "s1"
		if _, err := svc.Submit(ctx, sub); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	before, err := s.MasteryRepo().ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}

	replayed, err := svc.Replay(ctx, "u1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != len(before) {
		t.Fatalf("replayed %d skills, want %d", len(replayed), len(before))
	}
	for i, rec := range replayed {
		want := before[i]
		if rec.SkillID != want.SkillID {
			t.Fatalf("skill[%d] = %s, want %s", i, rec.SkillID, want.SkillID)
		}
		if !approx(rec.Probability, want.Probability, 1e-12) {
			t.Errorf("%s: probability = %v, want %v", rec.SkillID, rec.Probability, want.Probability)
		}
		if rec.Attempts != want.Attempts || rec.CorrectCount != want.CorrectCount || rec.State != want.State {
			t.Errorf("%s: got %+v, want %+v", rec.SkillID, rec, want)
		}
	}
}

func TestReplay_ConcurrentSubmitsAreNotLost(t *testing.T) {
	svc, s := newTestService(t, DefaultOptions())
	ctx := context.Background()

	submit := func(i int) error {
		_, err := svc.Submit(ctx, Submission{UserID: "u1", SessionID: "s1", SkillID: "add", Correct: i%3 != 0})
		return err
	}
	for i := 0; i < 150; i++ {
		if err := submit(i); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	for round := 0; round < 3; round++ {
		var wg sync.WaitGroup
		errs := make(chan error, 11)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Replay(ctx, "u1"); err != nil {
				errs <- err
			}
		}()
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				time.Sleep(time.Duration(i) * time.Millisecond)
				if err := submit(i); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("round %d: %v", round, err)
		}

		answers, err := s.EventRepo().AnswersForUser(ctx, "u1", store.QueryOpts{})
		if err != nil {
			t.Fatalf("AnswersForUser: %v", err)
		}
		rec, err := s.MasteryRepo().Get(ctx, "u1", "add")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Attempts != len(answers) {
			t.Errorf("round %d: attempts = %d, want %d", round, rec.Attempts, len(answers))
		}
		for _, a := range answers {
			if a.MasteryAfter == nil {
				t.Errorf("round %d: event %d was never applied", round, a.Sequence)
			}
		}
	}
}

func TestReplay_AppliesNewCalibration(t *testing.T) {
	svc, s := newTestService(t, DefaultOptions())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Submit(ctx, Submission{UserID: "u1", SessionID: "s1", SkillID: "add", Correct: true}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	old, _ := s.MasteryRepo().Get(ctx, "u1", "add")

	params := bkt.Params{Transit: 0.01, Slip: 0.1, Guess: 0.25}
	if err := svc.SetParams(ctx, "add", params, 0.1); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if _, err := svc.Replay(ctx, "u1"); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	rec, _ := s.MasteryRepo().Get(ctx, "u1", "add")
	steps, err := Simulate(params, 0.1, bkt.DefaultSignalConfig(), []bkt.Observation{bkt.Correct(), bkt.Correct(), bkt.Correct()})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	want := steps[len(steps)-1].Result.State.Probability
	if !approx(rec.Probability, want, 1e-12) {
		t.Errorf("replayed probability = %v, want %v", rec.Probability, want)
	}
	if rec.Probability >= old.Probability {
		t.Errorf("slower calibration should lower mastery: %v >= %v", rec.Probability, old.Probability)
	}
	if rec.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", rec.Attempts)
	}
}

func TestReplay_NoHistory(t *testing.T) {
	svc, _ := newTestService(t, DefaultOptions())
	recs, err := svc.Replay(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recs = %+v, want none", recs)
	}
}

func TestSimulate(t *testing.T) {
	steps, err := Simulate(bkt.DefaultParams, bkt.DefaultPrior, bkt.SignalConfig{},
		[]bkt.Observation{bkt.Correct(), bkt.Incorrect()})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	if !approx(steps[0].Result.State.Probability, 0.646, 1e-3) {
		t.Errorf("step 1 = %v, want ~0.646", steps[0].Result.State.Probability)
	}
	if steps[0].Transition == nil || steps[0].Transition.Trigger != TriggerFirstAttempt {
		t.Errorf("step 1 transition = %+v, want first-attempt", steps[0].Transition)
	}
	if steps[1].Transition != nil {
		t.Errorf("step 2 transition = %+v, want none", steps[1].Transition)
	}
	if steps[1].Result.State.Attempts != 2 || steps[1].State != StateLearning {
		t.Errorf("step 2 = %+v", steps[1])
	}

	if _, err := Simulate(bkt.DefaultParams, 2, bkt.SignalConfig{}, []bkt.Observation{bkt.Correct()}); err == nil {
		t.Error("expected an error for prior 2")
	}
}

func TestNextState(t *testing.T) {
	tests := []struct {
		cur     MasteryState
		p       float64
		want    MasteryState
		trigger string
	}{
		{StateNew, 0.5, StateLearning, TriggerFirstAttempt},
		{StateNew, 0.96, StateMastered, TriggerMasteryReached},
		{StateLearning, 0.9, StateLearning, ""},
		{StateLearning, 0.95, StateMastered, TriggerMasteryReached},
		{StateMastered, 0.85, StateMastered, ""},
		{StateMastered, 0.79, StateRusty, TriggerMasteryLost},
		{StateRusty, 0.9, StateRusty, ""},
		{StateRusty, 0.97, StateMastered, TriggerRecoveryComplete},
	}
	for _, tt := range tests {
		got, trigger := nextState(tt.cur, tt.p)
		if got != tt.want || trigger != tt.trigger {
			t.Errorf("nextState(%s, %v) = %s/%q, want %s/%q", tt.cur, tt.p, got, trigger, tt.want, tt.trigger)
		}
	}
}

func TestDisplayLabel(t *testing.T) {
	if got := DisplayLabel(StateRusty); got != "needs review" {
		t.Errorf("DisplayLabel(rusty) = %q", got)
	}
	if got := DisplayLabel(StateNew); got != "not started" {
		t.Errorf("DisplayLabel(new) = %q", got)
	}
}
