package joystick

import (
	"math"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
)

// Mapping says which controls drive the chassis.
type Mapping struct {
	TranslateX uint8 `yaml:"translate_x"`
	TranslateY uint8 `yaml:"translate_y"`
	Twist      uint8 `yaml:"twist"`
	// InvertTwist flips the twist axis for sticks that report clockwise as
	// negative.
	InvertTwist bool `yaml:"invert_twist"`

	Toggle        uint8 `yaml:"toggle"`
	ResetHeading  uint8 `yaml:"reset_heading"`
	ResetEncoders uint8 `yaml:"reset_encoders"`
}

func DefaultMapping() Mapping {
	return Mapping{
		TranslateX:    AxisLStickX,
		TranslateY:    AxisLStickY,
		Twist:         AxisRStickX,
		Toggle:        ButtonTriangle,
		ResetHeading:  ButtonCircle,
		ResetEncoders: ButtonCross,
	}
}

// State is the latest value of every axis and button, built up from the
// event stream.
type State struct {
	axes    [MaxAxis]int16
	buttons [MaxAxis]bool
}

// Apply folds an event into the state.  Out-of-range controls are ignored.
func (s *State) Apply(e *Event) {
	if e == nil || int(e.Number) >= MaxAxis {
		return
	}
	switch e.Type {
	case EventTypeAxis:
		s.axes[e.Number] = e.Value
	case EventTypeButton:
		s.buttons[e.Number] = e.Value != 0
	}
}

// Axis returns axis n scaled to [-1, 1].
func (s *State) Axis(n uint8) float64 {
	if int(n) >= MaxAxis {
		return 0
	}
	v := float64(s.axes[n]) / math.MaxInt16
	return math.Max(-1, math.Min(1, v))
}

func (s *State) Button(n uint8) bool {
	if int(n) >= MaxAxis {
		return false
	}
	return s.buttons[n]
}

// Stick converts the current state into a chassis sample.  Direction is in
// degrees with 0 = stick pushed forward and anticlockwise positive, matching
// the chassis frame; magnitude is the stick's deflection clamped to 1 since
// the corners of a square gate read beyond the unit circle.
func (s *State) Stick(m Mapping) chassis.StickSample {
	// Flip to chassis axes: forward is stick-up, left is stick-left.
	fwd := -s.Axis(m.TranslateY)
	left := -s.Axis(m.TranslateX)

	twist := -s.Axis(m.Twist)
	if m.InvertTwist {
		twist = -twist
	}

	sample := chassis.StickSample{
		Magnitude:    math.Min(1, math.Hypot(fwd, left)),
		Rotation:     twist,
		Toggle:       s.Button(m.Toggle),
		ResetHeading: s.Button(m.ResetHeading),
	}
	if sample.Magnitude > 0 {
		sample.DirectionDeg = math.Atan2(left, fwd) * 180 / math.Pi
	}
	return sample
}
