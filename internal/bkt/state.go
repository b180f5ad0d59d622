package bkt

// Epsilon bounds the mastery probability away from 0 and 1. An estimate of
// exactly 0 or 1 could never be revised by further evidence.
const Epsilon = 1e-4

// State is the mastery estimate for one (user, skill) pair.
type State struct {
	Probability float64 `json:"probability"`
	Attempts    int     `json:"attempts"`
}

// NewState returns the initial state for a skill that has not been attempted.
func NewState(prior float64) State {
	return State{Probability: prior}
}

// Trend names the regime an update moved the estimate toward.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// TrendOf classifies the move from before to after.
func TrendOf(before, after float64) Trend {
	const tol = 1e-9
	switch {
	case after > before+tol:
		return TrendUp
	case after < before-tol:
		return TrendDown
	default:
		return TrendFlat
	}
}

// Clamp bounds p into [Epsilon, 1-Epsilon].
func Clamp(p float64) float64 {
	if p < Epsilon {
		return Epsilon
	}
	if p > 1-Epsilon {
		return 1 - Epsilon
	}
	return p
}
