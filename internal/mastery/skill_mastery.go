package mastery

import (
	"time"

	"github.com/abhisek/skilltrace/internal/bkt"
	"github.com/abhisek/skilltrace/internal/store"
)

// SkillView is a user's mastery of one skill, ready for display.
type SkillView struct {
	SkillID      string
	State        MasteryState
	Probability  float64
	Attempts     int
	CorrectCount int
	MasteredAt   *time.Time
	// PredictCorrect is the chance the next answer is correct.
	PredictCorrect float64
}

// Accuracy returns the raw fraction of correct answers.
func (v SkillView) Accuracy() float64 {
	if v.Attempts == 0 {
		return 0.0
	}
	return float64(v.CorrectCount) / float64(v.Attempts)
}

// Percent returns the mastery probability as a percentage rounded to 0.1.
func (v SkillView) Percent() float64 {
	return round1(v.Probability * 100)
}

func newSkillView(rec store.SkillMasteryRecord, params bkt.Params) SkillView {
	return SkillView{
		SkillID:        rec.SkillID,
		State:          MasteryState(rec.State),
		Probability:    rec.Probability,
		Attempts:       rec.Attempts,
		CorrectCount:   rec.CorrectCount,
		MasteredAt:     rec.MasteredAt,
		PredictCorrect: bkt.PredictCorrect(rec.Probability, params),
	}
}
