package mastery

import "github.com/abhisek/skilltrace/internal/bkt"

// SimStep is one step of a simulated answer sequence.
type SimStep struct {
	Observation bkt.Observation
	Result      bkt.Result
	State       MasteryState
	Transition  *StateTransition
}

// Simulate runs obs through the estimator from a fresh skill without
// touching storage. It is useful for checking a calibration by hand.
func Simulate(params bkt.Params, prior float64, sig bkt.SignalConfig, obs []bkt.Observation) ([]SimStep, error) {
	st := bkt.NewState(prior)
	label := StateNew

	steps := make([]SimStep, 0, len(obs))
	for _, o := range obs {
		res, err := bkt.Update(st, o, params, sig)
		if err != nil {
			return nil, err
		}
		step := SimStep{Observation: o, Result: res}

		next, trigger := nextState(label, res.State.Probability)
		if trigger != "" {
			step.Transition = &StateTransition{From: label, To: next, Trigger: trigger}
		}
		label = next
		step.State = label

		steps = append(steps, step)
		st = res.State
	}
	return steps, nil
}
