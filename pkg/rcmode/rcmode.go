// Package rcmode is the joystick teleop mode: it feeds stick samples to the
// chassis controller once per control period and writes out the result.
package rcmode

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/joystick"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/tunable"
)

// Log telemetry every this many ticks (twice a second at 20ms).
const telemetryEvery = 25

type Options struct {
	// HeadingHold runs the gyro corrector.  Without it the rotation channel
	// is a plain dead-zoned twist.
	HeadingHold bool
}

type RCMode struct {
	name         string
	startupSound string
	opts         Options

	hw      hardware.Interface
	ctrl    *chassis.Controller
	mapping joystick.Mapping
	sounds  config.SoundConfig
	logger  golog.Logger

	tunables *tunable.Tunables
	p, i     *tunable.Tunable

	cancel         context.CancelFunc
	stopWG         sync.WaitGroup
	joystickEvents chan *joystick.Event

	// Only touched by the loop goroutine once it's running.
	stick      joystick.State
	ticks      uint64
	wasEnabled bool
	lastErr    error
}

func New(name, startupSound string, hw hardware.Interface, ctrl *chassis.Controller, cfg config.File, opts Options, logger golog.Logger) *RCMode {
	m := &RCMode{
		name:           name,
		startupSound:   startupSound,
		opts:           opts,
		hw:             hw,
		ctrl:           ctrl,
		mapping:        cfg.Joystick.Mapping,
		sounds:         cfg.Sounds,
		logger:         logger,
		tunables:       tunable.New(logger),
		joystickEvents: make(chan *joystick.Event),
	}
	m.p = m.tunables.Create("heading_hold_p", cfg.Chassis.HeadingHoldP, cfg.Tuning.PStep)
	m.i = m.tunables.Create("heading_hold_i", cfg.Chassis.HeadingHoldI, cfg.Tuning.IStep)
	return m
}

func (m *RCMode) Name() string {
	return m.name
}

func (m *RCMode) StartupSound() string {
	return m.startupSound
}

func (m *RCMode) Start(ctx context.Context) {
	m.enter()
	m.stopWG.Add(1)
	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	go m.loop(loopCtx)
}

func (m *RCMode) Stop() {
	m.cancel()
	m.stopWG.Wait()
	if err := m.ctrl.SetEnabled(false); err != nil {
		m.logger.Warnw("Failed to disable chassis", "error", err)
	}
	m.hw.StopMotors()
}

func (m *RCMode) OnJoystickEvent(event *joystick.Event) {
	m.joystickEvents <- event
}

// enter applies this mode's options and the current tunables, which also
// re-arms the controller.
func (m *RCMode) enter() {
	cfg := m.ctrl.Config()
	cfg.HeadingHold = m.opts.HeadingHold
	cfg.HeadingHoldP = m.p.Get()
	cfg.HeadingHoldI = m.i.Get()
	if err := m.ctrl.Reconfigure(cfg); err != nil {
		m.logger.Warnw("Failed to apply mode config; keeping previous", "error", err)
		if err := m.ctrl.Reset(); err != nil {
			m.logger.Warnw("Chassis reset failed", "error", err)
		}
	}
	m.stick = joystick.State{}
	m.ticks = 0
	m.wasEnabled = m.ctrl.IsEnabled()
	m.lastErr = nil
	m.logger.Infow("Mode entered", "mode", m.name, "heading_hold", cfg.HeadingHold,
		"p", cfg.HeadingHoldP, "i", cfg.HeadingHoldI, "enabled", m.wasEnabled)
}

func (m *RCMode) loop(ctx context.Context) {
	defer m.stopWG.Done()

	period := time.Duration(m.ctrl.Config().ControlPeriodS * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.joystickEvents:
			m.handleEvent(event)
		case <-ticker.C:
			m.step()
		}
	}
}

func (m *RCMode) handleEvent(event *joystick.Event) {
	m.stick.Apply(event)
	if event.Value == 0 || event.Init {
		return
	}
	if event.Type == joystick.EventTypeButton && event.Number == m.mapping.ResetEncoders {
		if err := m.hw.Encoders().Reset(); err != nil {
			m.logger.Warnw("Encoder reset failed", "error", err)
		} else {
			m.logger.Infow("Encoders reset")
		}
		return
	}
	if event.Type != joystick.EventTypeAxis {
		return
	}
	// D-pad: left/right picks a gain, up/down adjusts it.  Changes apply on
	// the next mode entry.
	switch event.Number {
	case joystick.AxisDPadX:
		if event.Value < 0 {
			m.tunables.SelectPrev()
		} else {
			m.tunables.SelectNext()
		}
	case joystick.AxisDPadY:
		if event.Value < 0 {
			m.tunables.Current().Add(1)
		} else {
			m.tunables.Current().Add(-1)
		}
	}
}

// step runs one control tick.
func (m *RCMode) step() {
	sample := m.stick.Stick(m.mapping)
	cmd, err := m.ctrl.Run(sample)
	m.hw.SetWheelSpeeds(cmd)

	if err != nil && m.lastErr == nil {
		m.logger.Warnw("Chassis fault", "error", err)
		m.hw.PlaySound(m.sounds.Fault)
	}
	m.lastErr = err

	enabled := m.ctrl.IsEnabled()
	if enabled != m.wasEnabled {
		if enabled {
			m.hw.PlaySound(m.sounds.Enabled)
		} else if err == nil {
			m.hw.PlaySound(m.sounds.Disabled)
		}
		m.wasEnabled = enabled
	}

	m.ticks++
	if m.ticks%telemetryEvery == 0 {
		tel := m.ctrl.Telemetry()
		var encoders interface{}
		if reading, err := m.hw.Encoders().Read(); err != nil {
			encoders = err.Error()
		} else {
			encoders = reading
		}
		m.logger.Debugw("HH",
			"mode", tel.Mode,
			"stick", tel.Stick,
			"heading", tel.Heading,
			"intent", tel.Intent,
			"hold", tel.Hold,
			"cmd", tel.Command,
			"invalid", tel.InvalidSamples,
			"sensor_failures", tel.SensorFailures,
			"encoders", encoders,
		)
	}
}
