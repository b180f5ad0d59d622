package mastery

import "math"

// DisplayLabel maps a lifecycle state into the label shown next to a skill.
func DisplayLabel(state MasteryState) string {
	switch state {
	case StateNew:
		return "not started"
	case StateLearning:
		return "learning"
	case StateMastered:
		return "mastered"
	case StateRusty:
		return "needs review"
	default:
		return string(state)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
