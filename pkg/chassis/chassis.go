// Package chassis turns operator stick intent and a heading reading into
// three kiwi-drive wheel commands, once per control tick.
package chassis

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/deadzone"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/headingholder"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

var (
	ErrSensorUnavailable = errors.New("heading sensor unavailable")
	ErrInvalidConfig     = errors.New("invalid chassis configuration")
)

// StickSample is one tick's worth of operator input.
type StickSample struct {
	// DirectionDeg is the stick direction; 0 is stick-forward, any finite
	// value is accepted and wrapped.
	DirectionDeg float64
	// Magnitude in [0, 1].
	Magnitude float64
	// Rotation (twist) in [-1, 1].
	Rotation float64

	// Toggle is the momentary enable/disable button.
	Toggle bool
	// ResetHeading re-zeroes the heading reference for as long as it's held.
	ResetHeading bool
}

func (s StickSample) String() string {
	return fmt.Sprintf("dir=%.1f mag=%.2f rot=%.2f toggle=%v reset=%v",
		s.DirectionDeg, s.Magnitude, s.Rotation, s.Toggle, s.ResetHeading)
}

// HeadingSample is a snapshot from the heading sensor.  AngleDeg is
// cumulative and may be well outside [0, 360).
type HeadingSample struct {
	AngleDeg    float64
	RateDegPerS float64
}

func (h HeadingSample) String() string {
	return fmt.Sprintf("heading=%.1f rate=%.1f", h.AngleDeg, h.RateDegPerS)
}

type HeadingSensor interface {
	Read() (HeadingSample, error)
	// Reset zeroes the heading reference.
	Reset() error
}

type RotationCentre struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Config is the immutable tuning for a Controller.  It's read at construction
// and on Reconfigure, never mid-tick.
type Config struct {
	TranslationDeadzone float64 `yaml:"translation_deadzone"`
	RotationDeadzone    float64 `yaml:"rotation_deadzone"`
	HeadingHoldP        float64 `yaml:"heading_hold_p"`
	HeadingHoldI        float64 `yaml:"heading_hold_i"`
	ControlPeriodS      float64 `yaml:"control_period_s"`

	WheelLayout    kinematics.LayoutKind `yaml:"wheel_layout"`
	WheelAnglesDeg []float64             `yaml:"wheel_angles_deg,flow"`
	RotationCentre RotationCentre        `yaml:"rotation_centre"`

	// HeadingHold enables the gyro corrector; with it off the rotation
	// channel just gets the rotation dead zone.
	HeadingHold bool `yaml:"heading_hold"`
	// Headless makes the stick field-relative.
	Headless bool `yaml:"headless"`
	// EnableOnReset arms the chassis on mode entry instead of waiting for the
	// toggle button.
	EnableOnReset bool `yaml:"enable_on_reset"`
	// RotationExpo shapes operator rotation; 1 is linear.
	RotationExpo float64 `yaml:"rotation_expo"`
}

func DefaultConfig() Config {
	return Config{
		TranslationDeadzone: deadzone.DefaultTranslation,
		RotationDeadzone:    deadzone.DefaultRotation,
		HeadingHoldP:        headingholder.DefaultP,
		HeadingHoldI:        headingholder.DefaultI,
		ControlPeriodS:      headingholder.DefaultPeriod,
		WheelLayout:         kinematics.LayoutSimple,
		WheelAnglesDeg:      append([]float64(nil), kinematics.DefaultWheelAngles[:]...),
		HeadingHold:         true,
		Headless:            true,
		RotationExpo:        1,
	}
}

func (c Config) Validate() error {
	type field struct {
		name  string
		value float64
	}
	finite := []field{
		{"translation_deadzone", c.TranslationDeadzone},
		{"rotation_deadzone", c.RotationDeadzone},
		{"heading_hold_p", c.HeadingHoldP},
		{"heading_hold_i", c.HeadingHoldI},
		{"control_period_s", c.ControlPeriodS},
		{"rotation_expo", c.RotationExpo},
		{"rotation_centre.x", c.RotationCentre.X},
		{"rotation_centre.y", c.RotationCentre.Y},
	}
	for i, a := range c.WheelAnglesDeg {
		finite = append(finite, field{fmt.Sprintf("wheel_angles_deg[%d]", i), a})
	}
	for _, f := range finite {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return errors.Wrapf(ErrInvalidConfig, "%s is not finite", f.name)
		}
	}
	if c.TranslationDeadzone < 0 || c.TranslationDeadzone >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "translation_deadzone %v outside [0, 1)", c.TranslationDeadzone)
	}
	if c.RotationDeadzone < 0 || c.RotationDeadzone >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "rotation_deadzone %v outside [0, 1)", c.RotationDeadzone)
	}
	if c.ControlPeriodS <= 0 || c.ControlPeriodS > 1 {
		return errors.Wrapf(ErrInvalidConfig, "control_period_s %v outside (0, 1]", c.ControlPeriodS)
	}
	if c.RotationExpo < 1 {
		return errors.Wrapf(ErrInvalidConfig, "rotation_expo %v below 1", c.RotationExpo)
	}
	if _, err := c.model(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

func (c Config) model() (kinematics.Model, error) {
	if len(c.WheelAnglesDeg) != kinematics.NumWheels {
		return nil, errors.Errorf("need %d wheel angles, got %d", kinematics.NumWheels, len(c.WheelAnglesDeg))
	}
	var angles [kinematics.NumWheels]float64
	copy(angles[:], c.WheelAnglesDeg)
	return kinematics.NewModel(c.WheelLayout, angles, r3.Vec{X: c.RotationCentre.X, Y: c.RotationCentre.Y})
}

func (c Config) Gains() headingholder.Gains {
	return headingholder.Gains{
		P:         c.HeadingHoldP,
		I:         c.HeadingHoldI,
		Threshold: c.RotationDeadzone,
		Period:    c.ControlPeriodS,
	}
}

func (c Config) Deadzones() deadzone.Thresholds {
	return deadzone.Thresholds{
		Translation: c.TranslationDeadzone,
		Rotation:    c.RotationDeadzone,
	}
}
