package bkt

// Observation is a single answered question for a skill.
type Observation struct {
	Correct bool `json:"is_correct"`
	// TimeSpent is the response time in seconds, if known.
	TimeSpent *float64 `json:"time_spent_seconds,omitempty"`
	// Confidence is the learner's self-reported confidence (1-5), if asked.
	Confidence *int `json:"confidence_score,omitempty"`
}

// Correct returns an Observation for a correct answer with no secondary signals.
func Correct() Observation { return Observation{Correct: true} }

// Incorrect returns an Observation for an incorrect answer with no secondary signals.
func Incorrect() Observation { return Observation{Correct: false} }

// WithTime returns a copy of o carrying a response time in seconds.
func (o Observation) WithTime(seconds float64) Observation {
	o.TimeSpent = &seconds
	return o
}

// WithConfidence returns a copy of o carrying a confidence score.
func (o Observation) WithConfidence(score int) Observation {
	o.Confidence = &score
	return o
}

func (o Observation) validate() error {
	if o.TimeSpent != nil && *o.TimeSpent < 0 {
		return invalid("time_spent_seconds", *o.TimeSpent, "must be >= 0")
	}
	if o.Confidence != nil && (*o.Confidence < 1 || *o.Confidence > 5) {
		return invalid("confidence_score", float64(*o.Confidence), "must be in 1..5")
	}
	return nil
}
