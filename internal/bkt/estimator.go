package bkt

// degenerateTol is the denominator magnitude below which the evidence step
// falls back to the prior.
const degenerateTol = 1e-12

// Result is the outcome of a single Update.
type Result struct {
	// State is the posterior to persist.
	State State `json:"state"`
	// Evidence is the posterior after the Bayes step alone.
	Evidence float64 `json:"evidence"`
	// Learned is Evidence after the learning transition, before nudge and clamp.
	Learned float64 `json:"learned"`
	// Nudge is the secondary-signal adjustment actually applied.
	Nudge float64 `json:"nudge"`
	// Degenerate is set when the evidence denominator was zero and the
	// prior was carried through unchanged.
	Degenerate bool `json:"degenerate"`
}

// Update folds obs into prior and returns the posterior state.
//
// It fails with an *InvalidParameterError when params, the prior, the
// signal config or the observation are outside their domain; in that case
// the returned Result is the zero value. For valid input it never fails.
func Update(prior State, obs Observation, params Params, sig SignalConfig) (Result, error) {
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	if err := ValidatePrior(prior.Probability); err != nil {
		return Result{}, err
	}
	if prior.Attempts < 0 {
		return Result{}, invalid("attempts", float64(prior.Attempts), "must be >= 0")
	}
	if err := sig.Validate(); err != nil {
		return Result{}, err
	}
	if err := obs.validate(); err != nil {
		return Result{}, err
	}

	p := prior.Probability
	evidence, degenerate := Evidence(p, obs.Correct, params)
	learned := Learn(evidence, params.Transit)

	nudged := learned + sig.nudge(obs)
	if obs.Correct {
		// A correct answer never ends below where evidence and learning put
		// it, nor below the prior.
		nudged = max(nudged, min(p, learned))
	} else {
		nudged = min(nudged, max(p, learned))
	}

	return Result{
		State: State{
			Probability: Clamp(nudged),
			Attempts:    prior.Attempts + 1,
		},
		Evidence:   evidence,
		Learned:    learned,
		Nudge:      nudged - learned,
		Degenerate: degenerate,
	}, nil
}

// Evidence applies Bayes' rule for one observed outcome. If the
// denominator vanishes the prior is returned unchanged with degenerate set.
func Evidence(prior float64, correct bool, params Params) (posterior float64, degenerate bool) {
	var likeMastered, likeUnmastered float64
	if correct {
		likeMastered = 1 - params.Slip
		likeUnmastered = params.Guess
	} else {
		likeMastered = params.Slip
		likeUnmastered = 1 - params.Guess
	}

	num := prior * likeMastered
	den := num + (1-prior)*likeUnmastered
	if den < degenerateTol {
		return prior, true
	}
	return num / den, false
}

// Learn applies the learning transition. Mastery is never lost here.
func Learn(posterior, transit float64) float64 {
	return posterior + (1-posterior)*transit
}

// PredictCorrect is the probability that the next answer is correct given
// mastery probability p.
func PredictCorrect(p float64, params Params) float64 {
	return p*(1-params.Slip) + (1-p)*params.Guess
}
