package bkt

import "math"

// DefaultPrior is the mastery probability assigned to a skill the first
// time it is attempted.
const DefaultPrior = 0.3

// Params are the per-skill calibration constants of the model.
type Params struct {
	// Transit is the probability of moving from not-mastered to mastered
	// between two observations.
	Transit float64 `json:"p_transit" yaml:"p_transit" mapstructure:"p_transit"`
	// Slip is the probability of answering incorrectly despite mastery.
	Slip float64 `json:"p_slip" yaml:"p_slip" mapstructure:"p_slip"`
	// Guess is the probability of answering correctly without mastery.
	Guess float64 `json:"p_guess" yaml:"p_guess" mapstructure:"p_guess"`
}

// DefaultParams is the global calibration used when a skill has none.
var DefaultParams = Params{Transit: 0.1, Slip: 0.1, Guess: 0.25}

// Validate checks that every parameter lies in the open interval (0, 1).
func (p Params) Validate() error {
	if err := openUnit("p_transit", p.Transit); err != nil {
		return err
	}
	if err := openUnit("p_slip", p.Slip); err != nil {
		return err
	}
	return openUnit("p_guess", p.Guess)
}

// Standard reports whether Slip+Guess < 1, the regime in which a correct
// answer is evidence for mastery. It is advisory and never enforced.
func (p Params) Standard() bool {
	return p.Slip+p.Guess < 1
}

// ValidatePrior checks that a prior probability lies in [0, 1].
func ValidatePrior(prior float64) error {
	if math.IsNaN(prior) || prior < 0 || prior > 1 {
		return invalid("prior", prior, "must be in [0, 1]")
	}
	return nil
}

func openUnit(field string, v float64) error {
	if math.IsNaN(v) || v <= 0 || v >= 1 {
		return invalid(field, v, "must be in (0, 1)")
	}
	return nil
}
