package mastery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/abhisek/skilltrace/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T, opts Options) (*Service, *store.Store) {
	t.Helper()
	s := openTestStore(t)
	return NewService(s, opts), s
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSubmit_CorrectFromDefaultPrior(t *testing.T) {
	svc, s := newTestService(t, DefaultOptions())
	ctx := context.Background()

	res, err := svc.Submit(ctx, Submission{UserID: "u1", SessionID: "s1", SkillID: "add", Correct: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.MasteryErr != nil {
		t.Fatalf("MasteryErr = %v", res.MasteryErr)
	}
	if res.Mastery.Before != bkt.DefaultPrior {
		t.Errorf("Before = %v, want %v", res.Mastery.Before, bkt.DefaultPrior)
	}
	if !approx(res.Mastery.After, 0.646, 1e-3) {
		t.Errorf("After = %v, want ~0.646", res.Mastery.After)
	}
	if res.Mastery.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Mastery.Attempts)
	}
	if res.Mastery.Trend != bkt.TrendUp {
		t.Errorf("Trend = %v, want up", res.Mastery.Trend)
	}

	rec, err := s.MasteryRepo().Get(ctx, "u1", "add")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a mastery record")
	}
	if rec.Probability != res.Mastery.After {
		t.Errorf("stored probability = %v, want %v", rec.Probability, res.Mastery.After)
	}
	if rec.CorrectCount != 1 {
		t.Errorf("CorrectCount = %d, want 1", rec.CorrectCount)
	}

	answers, err := s.EventRepo().AnswersForUser(ctx, "u1", store.QueryOpts{})
	if err != nil {
		t.Fatalf("AnswersForUser: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(answers))
	}
	if answers[0].MasteryAfter == nil || *answers[0].MasteryAfter != res.Mastery.After {
		t.Errorf("event MasteryAfter = %v, want %v", answers[0].MasteryAfter, res.Mastery.After)
	}
}

func TestSubmit_RequiresIdentifiers(t *testing.T) {
	svc, _ := newTestService(t, DefaultOptions())

	tests := []struct {
		name string
		sub  Submission
	}{
		{"no user", Submission{SessionID: "s", SkillID: "k"}},
		{"no session", Submission{UserID: "u", SkillID: "k"}},
		{"no skill", Submission{UserID: "u", SessionID: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.sub)
			if !errors.Is(err, ErrInvalidSubmission) {
				t.Errorf("err = %v, want ErrInvalidSubmission", err)
			}
		})
	}
}

func TestSubmit_InvalidCalibrationStillRecordsAnswer(t *testing.T) {
	opts := DefaultOptions()
	opts.Overrides = map[string]SkillOverride{
		"bad-prior":  {Params: bkt.DefaultParams, Prior: 1.5},
		"bad-params": {Params: bkt.Params{Transit: 0, Slip: 0.1, Guess: 0.2}, Prior: 0.3},
	}
	svc, s := newTestService(t, opts)
	ctx := context.Background()

	for _, skill := range []string{"bad-prior", "bad-params"} {
		res, err := svc.Submit(ctx, Submission{UserID: "u1", SessionID: "s1", SkillID: skill, Correct: true})
		if err != nil {
			t.Fatalf("%s: Submit returned %v, want nil", skill, err)
		}
		if res.Mastery != nil {
			t.Errorf("%s: Mastery = %+v, want nil", skill, res.Mastery)
		}
		if !errors.Is(res.MasteryErr, bkt.ErrInvalidParameter) {
			t.Errorf("%s: MasteryErr = %v, want ErrInvalidParameter", skill, res.MasteryErr)
		}
		rec, err := s.MasteryRepo().Get(ctx, "u1", skill)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec != nil {
			t.Errorf("%s: mastery record written despite failed update", skill)
		}
	}

	answers, err := s.EventRepo().AnswersForUser(ctx, "u1", store.QueryOpts{})
	if err != nil {
		t.Fatalf("AnswersForUser: %v", err)
	}
	if len(answers) != 2 {
		t.Errorf("answers = %d, want 2", len(answers))
	}
}

func TestSubmit_ConcurrentAnswersAllCount(t *testing.T) {
	svc, s := newTestService(t, DefaultOptions())
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Submit(ctx, Submission{UserID: "u1", SessionID: "s1", SkillID: "add", Correct: i%3 != 0})
			if err != nil {
				errs <- err
				return
			}
			if res.MasteryErr != nil {
				errs <- res.MasteryErr
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent submit: %v", err)
	}

	rec, err := s.MasteryRepo().Get(ctx, "u1", "add")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Attempts != n {
		t.Errorf("Attempts = %d, want %d", rec.Attempts, n)
	}
	if rec.Probability < bkt.Epsilon || rec.Probability > 1-bkt.Epsilon {
		t.Errorf("Probability = %v out of bounds", rec.Probability)
	}
}

func TestSubmit_LifecycleTransitions(t *testing.T) {
	opts := DefaultOptions()
	opts.Params = bkt.Params{Transit: 0.5, Slip: 0.05, Guess: 0.05}
	svc, s := newTestService(t, opts)
	ctx := context.Background()

	submit := func(correct bool) *Update {
		t.Helper()
		res, err := svc.Submit(ctx, Submission{UserID: "u1", SessionID: "s1", SkillID: "mul", Correct: correct})
		if err != nil || res.MasteryErr != nil {
			t.Fatalf("Submit: %v / %v", err, res.MasteryErr)
		}
		return res.Mastery
	}

	upd := submit(true)
	if upd.Transition == nil || upd.Transition.Trigger != TriggerFirstAttempt {
		t.Fatalf("first transition = %+v, want first-attempt", upd.Transition)
	}
	if upd.Transition.To != StateLearning {
		t.Errorf("To = %s, want learning", upd.Transition.To)
	}

	upd = submit(true)
	if upd.Transition == nil || upd.Transition.To != StateMastered {
		t.Fatalf("second transition = %+v, want mastered", upd.Transition)
	}
	rec, _ := s.MasteryRepo().Get(ctx, "u1", "mul")
	if rec.MasteredAt == nil {
		t.Error("MasteredAt not set on reaching mastery")
	}

	var lost bool
	for i := 0; i < 10 && !lost; i++ {
		upd = submit(false)
		if upd.Transition != nil {
			if upd.Transition.Trigger != TriggerMasteryLost || upd.Transition.To != StateRusty {
				t.Fatalf("transition = %+v, want mastery-lost", upd.Transition)
			}
			lost = true
		}
	}
	if !lost {
		t.Fatal("skill never became rusty after repeated incorrect answers")
	}

	var recovered bool
	for i := 0; i < 10 && !recovered; i++ {
		upd = submit(true)
		recovered = upd.Transition != nil && upd.Transition.Trigger == TriggerRecoveryComplete
	}
	if !recovered {
		t.Fatal("skill never recovered after repeated correct answers")
	}
}

func TestResolveParams_Precedence(t *testing.T) {
	opts := DefaultOptions()
	override := bkt.Params{Transit: 0.2, Slip: 0.15, Guess: 0.3}
	opts.Overrides = map[string]SkillOverride{"frac": {Params: override, Prior: 0.4}}
	svc, _ := newTestService(t, opts)
	ctx := context.Background()

	p, prior, err := svc.ResolveParams(ctx, "other")
	if err != nil {
		t.Fatalf("ResolveParams: %v", err)
	}
	if p != bkt.DefaultParams || prior != bkt.DefaultPrior {
		t.Errorf("default = %+v/%v, want %+v/%v", p, prior, bkt.DefaultParams, bkt.DefaultPrior)
	}

	p, prior, _ = svc.ResolveParams(ctx, "frac")
	if p != override || prior != 0.4 {
		t.Errorf("override = %+v/%v, want %+v/0.4", p, prior, override)
	}

	stored := bkt.Params{Transit: 0.3, Slip: 0.05, Guess: 0.1}
	if err := svc.SetParams(ctx, "frac", stored, 0.2); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	p, prior, _ = svc.ResolveParams(ctx, "frac")
	if p != stored || prior != 0.2 {
		t.Errorf("stored = %+v/%v, want %+v/0.2", p, prior, stored)
	}
}

func TestResolveParams_OverrideIgnoresCase(t *testing.T) {
	opts := DefaultOptions()
	override := bkt.Params{Transit: 0.5, Slip: 0.1, Guess: 0.2}
	opts.Overrides = map[string]SkillOverride{"Fractions": {Params: override, Prior: 0.9}}
	svc, _ := newTestService(t, opts)

	for _, id := range []string{"Fractions", "fractions", "FRACTIONS"} {
		p, prior, err := svc.ResolveParams(context.Background(), id)
		if err != nil {
			t.Fatalf("ResolveParams(%q): %v", id, err)
		}
		if p != override || prior != 0.9 {
			t.Errorf("ResolveParams(%q) = %+v/%v, want %+v/0.9", id, p, prior, override)
		}
	}
}

func TestSetParams_RejectsInvalid(t *testing.T) {
	svc, s := newTestService(t, DefaultOptions())
	ctx := context.Background()

	if err := svc.SetParams(ctx, "k", bkt.Params{Transit: 1, Slip: 0.1, Guess: 0.2}, 0.3); !errors.Is(err, bkt.ErrInvalidParameter) {
		t.Errorf("transit=1: err = %v, want ErrInvalidParameter", err)
	}
	if err := svc.SetParams(ctx, "k", bkt.DefaultParams, -0.1); !errors.Is(err, bkt.ErrInvalidParameter) {
		t.Errorf("prior=-0.1: err = %v, want ErrInvalidParameter", err)
	}
	if err := svc.SetParams(ctx, "", bkt.DefaultParams, 0.3); !errors.Is(err, ErrInvalidSubmission) {
		t.Errorf("empty skill: err = %v, want ErrInvalidSubmission", err)
	}

	recs, err := s.ParamsRepo().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("stored %d calibrations, want 0", len(recs))
	}

	// Non-standard calibrations are accepted with a warning.
	if err := svc.SetParams(ctx, "k", bkt.Params{Transit: 0.1, Slip: 0.6, Guess: 0.5}, 0.3); err != nil {
		t.Errorf("non-standard params: %v", err)
	}
}

func TestMasteries(t *testing.T) {
	svc, _ := newTestService(t, DefaultOptions())
	ctx := context.Background()

	for _, skill := range []string{"sub", "add", "sub"} {
		if _, err := svc.Submit(ctx, Submission{UserID: "u1", SessionID: "s1", SkillID: skill, Correct: true}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	views, err := svc.Masteries(ctx, "u1")
	if err != nil {
		t.Fatalf("Masteries: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[0].SkillID != "add" || views[1].SkillID != "sub" {
		t.Errorf("order = %s,%s, want add,sub", views[0].SkillID, views[1].SkillID)
	}
	if views[1].Attempts != 2 || views[1].Accuracy() != 1 {
		t.Errorf("sub attempts/accuracy = %d/%v, want 2/1", views[1].Attempts, views[1].Accuracy())
	}
	want := bkt.PredictCorrect(views[0].Probability, bkt.DefaultParams)
	if views[0].PredictCorrect != want {
		t.Errorf("PredictCorrect = %v, want %v", views[0].PredictCorrect, want)
	}
	if views[0].Percent() != 64.6 {
		t.Errorf("Percent = %v, want 64.6", views[0].Percent())
	}
}
