package chassis

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/drivemode"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/headingholder"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/headless"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

// Telemetry is a read-only snapshot of the values computed on the last tick.
type Telemetry struct {
	Mode           drivemode.Mode
	Stick          StickSample
	Heading        HeadingSample
	Intent         kinematics.Intent
	Hold           headingholder.Diagnostics
	Command        kinematics.WheelCommand
	InvalidSamples uint64
	SensorFailures uint64
}

// Controller owns all the state that persists between ticks: the heading-hold
// integral, the enabled flag and the toggle latch.  It isn't safe for
// concurrent use; the host calls it from one loop.
type Controller struct {
	cfg    Config
	sensor HeadingSensor
	logger golog.Logger

	model  kinematics.Model
	holder *headingholder.Holder
	mode   *drivemode.Controller

	telemetry Telemetry
}

func New(cfg Config, sensor HeadingSensor, logger golog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = golog.Global()
	}
	model, err := cfg.model()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return &Controller{
		cfg:    cfg,
		sensor: sensor,
		logger: logger,
		model:  model,
		holder: headingholder.New(cfg.Gains()),
		mode:   drivemode.New(),
	}, nil
}

func (c *Controller) Config() Config {
	return c.cfg
}

// Reset re-arms the controller for a new operating mode: outputs disabled
// (unless EnableOnReset), integral cleared, toggle latch cleared and the
// heading reference re-zeroed.
func (c *Controller) Reset() error {
	c.holder.Reset()
	c.mode.Reset()
	c.zero()
	if err := c.resetHeading(); err != nil {
		c.logger.Warnw("Heading reset failed on mode entry; staying disabled", "error", err)
		return err
	}
	if c.cfg.EnableOnReset {
		c.mode.Set(true)
		c.telemetry.Mode = drivemode.Enabled
	}
	c.logger.Infow("Chassis reset", "mode", c.mode.Mode())
	return nil
}

// Reconfigure swaps in a new config and resets.  An invalid config is
// rejected and the old one stays in force.
func (c *Controller) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	model, err := cfg.model()
	if err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	c.cfg = cfg
	c.model = model
	c.holder = headingholder.New(cfg.Gains())
	return c.Reset()
}

// SetEnabled overrides the mode state machine.  Enabling re-arms exactly as a
// toggle press would.
func (c *Controller) SetEnabled(enabled bool) error {
	if !c.mode.Set(enabled) {
		return nil
	}
	if !enabled {
		c.onDisable("override")
		return nil
	}
	return c.onEnable("override")
}

func (c *Controller) IsEnabled() bool {
	return c.mode.Enabled()
}

func (c *Controller) Telemetry() Telemetry {
	return c.telemetry
}

// Run reads the heading sensor once and runs a tick.  If the sensor can't
// provide a reading the chassis fails safe: it drops to Disabled and returns
// zeros along with an error wrapping ErrSensorUnavailable.
func (c *Controller) Run(stick StickSample) (kinematics.WheelCommand, error) {
	if c.sensor == nil {
		return c.failSafe(stick, errors.New("no heading sensor configured"))
	}
	heading, err := c.sensor.Read()
	if err != nil {
		return c.failSafe(stick, err)
	}
	return c.tick(stick, heading)
}

// Tick computes one control period's wheel commands from a stick sample and
// a heading snapshot.  A heading-reset failure while arming leaves the
// chassis disabled; use Run to see the error.
func (c *Controller) Tick(stick StickSample, heading HeadingSample) kinematics.WheelCommand {
	cmd, _ := c.tick(stick, heading)
	return cmd
}

func (c *Controller) tick(stick StickSample, heading HeadingSample) (kinematics.WheelCommand, error) {
	stick = c.sanitiseStick(stick)
	heading = c.sanitiseHeading(heading)

	var err error
	headingZeroed := false
	if mode, changed := c.mode.Update(stick.Toggle); changed {
		if mode == drivemode.Enabled {
			err = c.onEnable("toggle")
			headingZeroed = err == nil
		} else {
			c.onDisable("toggle")
		}
	}
	if stick.ResetHeading && err == nil {
		if err = c.resetHeading(); err != nil {
			c.mode.Set(false)
			c.onDisable("heading reset failed")
		} else {
			headingZeroed = true
		}
	}
	if headingZeroed {
		// The snapshot predates the reset.
		heading.AngleDeg = 0
	}

	c.telemetry.Stick = stick
	c.telemetry.Heading = heading
	if !c.mode.Enabled() {
		return c.zero(), err
	}

	dz := c.cfg.Deadzones()
	magnitude := dz.FilterTranslation(stick.Magnitude)
	var in kinematics.Intent
	if c.cfg.Headless {
		in.X, in.Y = headless.Transform(stick.DirectionDeg, magnitude, heading.AngleDeg)
	} else {
		in.X, in.Y = headless.Robot(stick.DirectionDeg, magnitude)
	}

	if c.cfg.HeadingHold {
		in.Rotation = c.holder.Update(stick.Rotation, heading.RateDegPerS)
		if c.holder.State() == headingholder.PassThrough {
			in.Rotation = applyExpo(in.Rotation, c.cfg.RotationExpo)
		}
	} else {
		in.Rotation = applyExpo(dz.FilterRotation(stick.Rotation), c.cfg.RotationExpo)
	}

	cmd := kinematics.Normalize(c.model.Inverse(in))
	c.telemetry.Mode = c.mode.Mode()
	c.telemetry.Intent = in
	c.telemetry.Hold = c.holder.Diagnostics()
	c.telemetry.Command = cmd
	return cmd, err
}

// Drive runs an already chassis-relative intent straight through the
// kinematics, bypassing stick handling and heading hold.  Used for scripted
// movement and diagnostics.
func (c *Controller) Drive(in kinematics.Intent) kinematics.WheelCommand {
	in.X = c.clamp(in.X, -1, 1)
	in.Y = c.clamp(in.Y, -1, 1)
	in.Rotation = c.clamp(in.Rotation, -1, 1)
	if !c.mode.Enabled() {
		return c.zero()
	}
	cmd := kinematics.Normalize(c.model.Inverse(in))
	c.telemetry.Mode = c.mode.Mode()
	c.telemetry.Intent = in
	c.telemetry.Command = cmd
	return cmd
}

func (c *Controller) failSafe(stick StickSample, cause error) (kinematics.WheelCommand, error) {
	c.telemetry.SensorFailures++
	// Keep tracking the toggle so a press held through the outage doesn't
	// fire when the sensor comes back.
	wasEnabled := c.mode.Enabled()
	c.mode.Update(stick.Toggle)
	c.mode.Set(false)
	if wasEnabled {
		c.logger.Warnw("Heading sensor unavailable; disabling chassis", "error", cause)
	}
	c.holder.Reset()
	return c.zero(), errors.Wrapf(ErrSensorUnavailable, "%v", cause)
}

func (c *Controller) onEnable(reason string) error {
	c.holder.Reset()
	if err := c.resetHeading(); err != nil {
		c.mode.Set(false)
		c.logger.Warnw("Heading reset failed; chassis stays disabled", "reason", reason, "error", err)
		return err
	}
	c.logger.Infow("Chassis enabled", "reason", reason)
	return nil
}

func (c *Controller) onDisable(reason string) {
	c.holder.Reset()
	c.zero()
	c.logger.Infow("Chassis disabled", "reason", reason)
}

func (c *Controller) resetHeading() error {
	if c.sensor == nil {
		return nil
	}
	if err := c.sensor.Reset(); err != nil {
		return errors.Wrapf(ErrSensorUnavailable, "reset: %v", err)
	}
	return nil
}

func (c *Controller) zero() kinematics.WheelCommand {
	c.telemetry.Mode = c.mode.Mode()
	c.telemetry.Intent = kinematics.Intent{}
	c.telemetry.Hold = c.holder.Diagnostics()
	c.telemetry.Command = kinematics.WheelCommand{}
	return kinematics.WheelCommand{}
}

func (c *Controller) sanitiseStick(s StickSample) StickSample {
	if math.IsNaN(s.DirectionDeg) || math.IsInf(s.DirectionDeg, 0) {
		c.telemetry.InvalidSamples++
		s.DirectionDeg = 0
	}
	s.Magnitude = c.clamp(s.Magnitude, 0, 1)
	s.Rotation = c.clamp(s.Rotation, -1, 1)
	return s
}

func (c *Controller) sanitiseHeading(h HeadingSample) HeadingSample {
	if math.IsNaN(h.AngleDeg) || math.IsInf(h.AngleDeg, 0) {
		c.telemetry.InvalidSamples++
		h.AngleDeg = 0
	}
	if math.IsNaN(h.RateDegPerS) || math.IsInf(h.RateDegPerS, 0) {
		c.telemetry.InvalidSamples++
		h.RateDegPerS = 0
	}
	return h
}

// clamp forces v into [lo, hi], substituting 0 for NaN.  Anything it has to
// fix counts as an invalid sample.
func (c *Controller) clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		c.telemetry.InvalidSamples++
		return 0
	case v < lo:
		c.telemetry.InvalidSamples++
		return lo
	case v > hi:
		c.telemetry.InvalidSamples++
		return hi
	}
	return v
}

func applyExpo(value float64, expo float64) float64 {
	if expo == 1 {
		return value
	}
	absVal := math.Abs(value)
	absExpo := math.Pow(absVal, expo)
	signedExpo := math.Copysign(absExpo, value)
	return signedExpo
}
