package bkt

// MaxNudgeLimit caps the secondary-signal adjustment regardless of configuration.
const MaxNudgeLimit = 0.02

// SignalConfig tunes the response-time and confidence nudge. The zero value
// disables it.
type SignalConfig struct {
	// FastSeconds: responses quicker than this are treated as rushed.
	FastSeconds float64 `json:"fast_seconds" yaml:"fast_seconds" mapstructure:"fast_seconds"`
	// SlowSeconds: responses slower than this are treated as a struggle.
	SlowSeconds float64 `json:"slow_seconds" yaml:"slow_seconds" mapstructure:"slow_seconds"`
	// MaxNudge bounds the total adjustment; values above MaxNudgeLimit are capped.
	MaxNudge float64 `json:"max_nudge" yaml:"max_nudge" mapstructure:"max_nudge"`
}

// DefaultSignalConfig returns the thresholds used when none are configured.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		FastSeconds: 5,
		SlowSeconds: 300,
		MaxNudge:    MaxNudgeLimit,
	}
}

// Enabled reports whether secondary signals may adjust the estimate.
func (c SignalConfig) Enabled() bool {
	return c.MaxNudge > 0
}

// Validate checks the thresholds when nudging is enabled.
func (c SignalConfig) Validate() error {
	if c.MaxNudge < 0 {
		return invalid("max_nudge", c.MaxNudge, "must be >= 0")
	}
	if !c.Enabled() {
		return nil
	}
	if c.FastSeconds < 0 {
		return invalid("fast_seconds", c.FastSeconds, "must be >= 0")
	}
	if c.SlowSeconds <= c.FastSeconds {
		return invalid("slow_seconds", c.SlowSeconds, "must be greater than fast_seconds")
	}
	return nil
}

func (c SignalConfig) limit() float64 {
	if c.MaxNudge > MaxNudgeLimit {
		return MaxNudgeLimit
	}
	return c.MaxNudge
}

// nudge computes the bounded secondary-signal adjustment for obs. The
// result always lies in [-limit, +limit]; direction constraints relative to
// the prior are applied by Update.
func (c SignalConfig) nudge(obs Observation) float64 {
	if !c.Enabled() {
		return 0
	}
	limit := c.limit()
	half := limit / 2

	var n float64
	if obs.TimeSpent != nil {
		n += half * c.timeSignal(*obs.TimeSpent, obs.Correct)
	}
	if obs.Confidence != nil {
		n += half * confidenceSignal(*obs.Confidence, obs.Correct)
	}
	return clampRange(n, -limit, limit)
}

// timeSignal returns a value in [-1, 1].
func (c SignalConfig) timeSignal(seconds float64, correct bool) float64 {
	switch {
	case seconds < c.FastSeconds:
		extremity := (c.FastSeconds - seconds) / c.FastSeconds
		if correct {
			// Too quick to have worked it out: looks like a guess.
			return -extremity
		}
		// Rushed: looks like a slip rather than missing knowledge.
		return extremity
	case seconds > c.SlowSeconds:
		if !correct {
			return 0
		}
		return -clampRange((seconds-c.SlowSeconds)/c.SlowSeconds, 0, 1)
	default:
		return 0
	}
}

// confidenceSignal returns a value in [-1, 1].
func confidenceSignal(score int, correct bool) float64 {
	if correct {
		switch score {
		case 1:
			return -1
		case 2:
			return -0.5
		case 5:
			return 0.5
		}
		return 0
	}
	switch score {
	case 5:
		return -1
	case 4:
		return -0.5
	}
	return 0
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
