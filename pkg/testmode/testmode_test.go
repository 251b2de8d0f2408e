package testmode

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
)

func TestStepsDriveWheels(t *testing.T) {
	logger := golog.NewTestLogger(t)
	hw := hardware.NewDummy(logger)
	ctrl, err := chassis.New(chassis.DefaultConfig(), hw.HeadingSensor(), logger)
	if err != nil {
		t.Fatalf("chassis.New failed: %v", err)
	}
	m := New(hw, ctrl, logger)

	m.Start(context.Background())
	deadline := time.Now().Add(time.Second)
	for len(hw.Commands()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Test mode never drove")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	first := hw.Commands()[0]
	if first.IsZero() || first.Peak() > 1 {
		t.Fatalf("Unexpected first command %v", first)
	}
	if !hw.LastCommand().IsZero() || ctrl.IsEnabled() {
		t.Fatalf("Stop should leave the chassis disabled and stopped")
	}
}

func TestSpinDrivesAllWheelsEqually(t *testing.T) {
	logger := golog.NewTestLogger(t)
	hw := hardware.NewDummy(logger)
	ctrl, _ := chassis.New(chassis.DefaultConfig(), hw.HeadingSensor(), logger)
	ctrl.SetEnabled(true)
	m := New(hw, ctrl, logger)
	cmd := m.runStep(Steps[4])
	if cmd[0] != 0.3 || cmd[1] != 0.3 || cmd[2] != 0.3 {
		t.Fatalf("Spin should drive every wheel at 0.3, got %v", cmd)
	}
}
