package pausemode

import (
	"context"
	"testing"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

func TestStartDisablesAndStops(t *testing.T) {
	logger := golog.NewTestLogger(t)
	hw := hardware.NewDummy(logger)
	ctrl, err := chassis.New(chassis.DefaultConfig(), hw.HeadingSensor(), logger)
	if err != nil {
		t.Fatalf("chassis.New failed: %v", err)
	}
	if err := ctrl.SetEnabled(true); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	hw.SetWheelSpeeds(kinematics.WheelCommand{0.5, 0.5, 0.5})

	m := New(hw, ctrl, logger)
	m.Start(context.Background())
	if ctrl.IsEnabled() {
		t.Errorf("Pause should disable the chassis")
	}
	if !hw.LastCommand().IsZero() {
		t.Errorf("Pause should stop the motors, got %v", hw.LastCommand())
	}
	m.Stop()
}
