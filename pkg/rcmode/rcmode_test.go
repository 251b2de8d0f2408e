package rcmode

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/joystick"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

func newMode(t *testing.T, opts Options) (*RCMode, *hardware.Dummy, *chassis.Controller) {
	t.Helper()
	logger := golog.NewTestLogger(t)
	hw := hardware.NewDummy(logger)
	cfg := config.Default()
	ctrl, err := chassis.New(cfg.Chassis, hw.HeadingSensor(), logger)
	if err != nil {
		t.Fatalf("chassis.New failed: %v", err)
	}
	return New("Teleop", "/sounds/teleop.wav", hw, ctrl, cfg, opts, logger), hw, ctrl
}

func press(n uint8) *joystick.Event {
	return &joystick.Event{Type: joystick.EventTypeButton, Number: n, Value: 1}
}

func release(n uint8) *joystick.Event {
	return &joystick.Event{Type: joystick.EventTypeButton, Number: n}
}

func axis(n uint8, v int16) *joystick.Event {
	return &joystick.Event{Type: joystick.EventTypeAxis, Number: n, Value: v}
}

func expectCommand(t *testing.T, actual, expected kinematics.WheelCommand) {
	t.Helper()
	for i := range actual {
		if math.Abs(actual[i]-expected[i]) > 1e-3 {
			t.Fatalf("Got %v, expected %v", actual, expected)
		}
	}
}

func TestDisabledUntilToggled(t *testing.T) {
	m, hw, ctrl := newMode(t, Options{HeadingHold: true})
	m.enter()
	m.handleEvent(axis(joystick.AxisLStickY, -math.MaxInt16))
	m.step()
	if !hw.LastCommand().IsZero() {
		t.Fatalf("Drove before being enabled: %v", hw.LastCommand())
	}

	m.handleEvent(press(joystick.ButtonTriangle))
	m.step()
	if !ctrl.IsEnabled() {
		t.Fatalf("Triangle should enable")
	}
	expectCommand(t, hw.LastCommand(), kinematics.WheelCommand{-1, 0.5, 0.5})

	// Held: still enabled.
	m.step()
	if !ctrl.IsEnabled() {
		t.Fatalf("Holding the toggle shouldn't disable")
	}
	m.handleEvent(release(joystick.ButtonTriangle))
	m.step()
	m.handleEvent(press(joystick.ButtonTriangle))
	m.step()
	if ctrl.IsEnabled() || !hw.LastCommand().IsZero() {
		t.Fatalf("Second press should disable and zero")
	}

	sounds := hw.Sounds()
	if len(sounds) != 2 || sounds[0] != config.Default().Sounds.Enabled || sounds[1] != config.Default().Sounds.Disabled {
		t.Fatalf("Unexpected sounds %v", sounds)
	}
}

func TestSensorFaultDisables(t *testing.T) {
	m, hw, ctrl := newMode(t, Options{HeadingHold: true})
	m.enter()
	m.handleEvent(press(joystick.ButtonTriangle))
	m.step()

	hw.Sensor.Set(chassis.HeadingSample{}, errors.New("gone"))
	m.handleEvent(axis(joystick.AxisLStickY, -math.MaxInt16))
	m.step()
	m.step()
	if ctrl.IsEnabled() || !hw.LastCommand().IsZero() {
		t.Fatalf("Sensor fault should disable and zero")
	}
	faults := 0
	for _, s := range hw.Sounds() {
		if s == config.Default().Sounds.Fault {
			faults++
		}
	}
	if faults != 1 {
		t.Fatalf("Expected one fault sound, got %d", faults)
	}
}

func TestOptionsAndTunablesApplyOnEntry(t *testing.T) {
	m, _, ctrl := newMode(t, Options{HeadingHold: false})
	m.enter()
	if ctrl.Config().HeadingHold {
		t.Fatalf("Plain mode should turn heading hold off")
	}

	// D-pad up nudges P (the first tunable) up by one step.
	m.handleEvent(axis(joystick.AxisDPadY, -math.MaxInt16))
	m.handleEvent(axis(joystick.AxisDPadY, 0))
	if ctrl.Config().HeadingHoldP != config.Default().Chassis.HeadingHoldP {
		t.Fatalf("Tunables shouldn't apply mid-mode")
	}
	m.enter()
	expected := config.Default().Chassis.HeadingHoldP + config.Default().Tuning.PStep
	if math.Abs(ctrl.Config().HeadingHoldP-expected) > 1e-12 {
		t.Fatalf("Expected P %v after re-entry, got %v", expected, ctrl.Config().HeadingHoldP)
	}
}

func TestStartStop(t *testing.T) {
	m, hw, ctrl := newMode(t, Options{HeadingHold: true})
	m.Start(context.Background())
	m.OnJoystickEvent(press(joystick.ButtonTriangle))
	m.OnJoystickEvent(axis(joystick.AxisLStickY, -math.MaxInt16))

	deadline := time.Now().Add(2 * time.Second)
	for hw.LastCommand().IsZero() {
		if time.Now().After(deadline) {
			t.Fatalf("Mode never drove the wheels")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	if ctrl.IsEnabled() {
		t.Fatalf("Stop should disable the chassis")
	}
	if !hw.LastCommand().IsZero() {
		t.Fatalf("Stop should stop the motors")
	}
}

func TestEncoderResetButton(t *testing.T) {
	m, hw, _ := newMode(t, Options{HeadingHold: true})
	m.enter()
	hw.WheelEncoders.Set(hardware.EncoderReading{Counts: [3]int64{40, -40, 12}}, nil)

	m.handleEvent(&joystick.Event{Type: joystick.EventTypeButton, Number: joystick.ButtonCross, Value: 1, Init: true})
	if hw.WheelEncoders.Resets() != 0 {
		t.Fatalf("Start-up state events shouldn't reset the encoders")
	}
	m.handleEvent(press(joystick.ButtonCross))
	m.handleEvent(release(joystick.ButtonCross))
	if hw.WheelEncoders.Resets() != 1 {
		t.Fatalf("Expected one encoder reset, got %d", hw.WheelEncoders.Resets())
	}
	r, _ := hw.Encoders().Read()
	if r.Counts != ([3]int64{}) {
		t.Fatalf("Counts not cleared: %v", r.Counts)
	}
	if m.ctrl.IsEnabled() {
		t.Fatalf("Encoder reset shouldn't touch the enable state")
	}

	// Telemetry ticks report the encoders alongside the chassis state.
	for i := 0; i < telemetryEvery; i++ {
		m.step()
	}
}
