package headingholder

import (
	"fmt"
	"math"
)

const (
	// Gains as tuned on the competition chassis.  P opposes the measured rate;
	// I is tiny and only trims steady-state bias.
	DefaultP         = -0.6
	DefaultI         = 0.000001
	DefaultThreshold = 0.2
	DefaultPeriod    = 0.02

	// IntegralLimit bounds the accumulated rate error (degrees) so a runaway
	// sensor can't overflow it.
	IntegralLimit = 1e6
)

type State int

const (
	// PassThrough means the operator is twisting the stick; their rotation
	// is used as-is.
	PassThrough State = iota
	// Holding means the operator isn't twisting; we substitute a correction
	// computed from the measured yaw rate.
	Holding
)

func (s State) String() string {
	switch s {
	case PassThrough:
		return "pass-through"
	case Holding:
		return "holding"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type Gains struct {
	P         float64
	I         float64
	Threshold float64
	// Period is the fixed control period in seconds.  It's supplied by the
	// host loop rather than measured so that loop jitter doesn't leak into
	// the integral.
	Period float64
}

func DefaultGains() Gains {
	return Gains{
		P:         DefaultP,
		I:         DefaultI,
		Threshold: DefaultThreshold,
		Period:    DefaultPeriod,
	}
}

// Holder is a P/I corrector that holds heading while the operator isn't
// commanding rotation.  The target is zero yaw rate, so the error is simply
// the measured rate.  There's no D term.
type Holder struct {
	gains Gains

	state     State
	iRateErr  float64
	lastOut   float64
	lastError float64
}

func New(gains Gains) *Holder {
	return &Holder{gains: gains}
}

// Update runs one control tick.  rotation is the operator's rotation input
// and rateDegPerS the measured yaw rate.  The output isn't clamped; the
// wheel speed normaliser deals with that after kinematics.
func (h *Holder) Update(rotation, rateDegPerS float64) float64 {
	if math.Abs(rotation) > h.gains.Threshold {
		// Integral is frozen, not decayed, while the operator twists.
		h.state = PassThrough
		h.lastError = 0
		h.lastOut = rotation
		return rotation
	}

	h.state = Holding
	rateError := rateDegPerS
	h.iRateErr = clampIntegral(h.iRateErr + rateError*h.gains.Period)
	h.lastError = rateError
	h.lastOut = h.gains.P*rateError + h.gains.I*h.iRateErr
	return h.lastOut
}

func clampIntegral(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-IntegralLimit, math.Min(IntegralLimit, v))
}

// Reset clears the integral and returns to PassThrough.  Called on every
// mode entry so bias from a previous run can't carry over.
func (h *Holder) Reset() {
	h.state = PassThrough
	h.iRateErr = 0
	h.lastOut = 0
	h.lastError = 0
}

func (h *Holder) State() State {
	return h.state
}

func (h *Holder) Integral() float64 {
	return h.iRateErr
}

func (h *Holder) Gains() Gains {
	return h.gains
}

// Diagnostics is a read-only snapshot of the last update.
type Diagnostics struct {
	State    State
	Error    float64
	Integral float64
	P        float64
	I        float64
	Output   float64
}

func (h *Holder) Diagnostics() Diagnostics {
	return Diagnostics{
		State:    h.state,
		Error:    h.lastError,
		Integral: h.iRateErr,
		P:        h.gains.P * h.lastError,
		I:        h.gains.I * h.iRateErr,
		Output:   h.lastOut,
	}
}

func (d Diagnostics) String() string {
	return fmt.Sprintf("%v Error: %.2f Int: %.4f P: %.3f I: %.6f -> %.3f",
		d.State, d.Error, d.Integral, d.P, d.I, d.Output)
}
