package mastery

// MasteryState represents a skill's position in the mastery lifecycle.
type MasteryState string

const (
	StateNew      MasteryState = "new"
	StateLearning MasteryState = "learning"
	StateMastered MasteryState = "mastered"
	StateRusty    MasteryState = "rusty"
)

const (
	// MasteredThreshold is the probability at which a skill counts as mastered.
	MasteredThreshold = 0.95

	// RustyThreshold is the probability below which a mastered skill is
	// considered lost. The gap to MasteredThreshold keeps a single wrong
	// answer from flapping the label.
	RustyThreshold = 0.80
)

// Transition triggers.
const (
	TriggerFirstAttempt     = "first-attempt"
	TriggerMasteryReached   = "mastery-reached"
	TriggerMasteryLost      = "mastery-lost"
	TriggerRecoveryComplete = "recovery-complete"
)

// StateTransition records a lifecycle change for display and logging.
type StateTransition struct {
	SkillID string
	From    MasteryState
	To      MasteryState
	Trigger string
}

// nextState derives the lifecycle label after an update moved the estimate
// to p. The trigger is empty when the label does not change.
func nextState(cur MasteryState, p float64) (MasteryState, string) {
	switch cur {
	case StateNew, "":
		if p >= MasteredThreshold {
			return StateMastered, TriggerMasteryReached
		}
		return StateLearning, TriggerFirstAttempt
	case StateLearning:
		if p >= MasteredThreshold {
			return StateMastered, TriggerMasteryReached
		}
	case StateMastered:
		if p < RustyThreshold {
			return StateRusty, TriggerMasteryLost
		}
	case StateRusty:
		if p >= MasteredThreshold {
			return StateMastered, TriggerRecoveryComplete
		}
	}
	return cur, ""
}
