// Package testmode cycles the chassis through a fixed set of movements so the
// wheel wiring and directions can be checked by eye.
package testmode

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

const stepDuration = 2 * time.Second

type Step struct {
	Name   string
	Intent kinematics.Intent
}

// Steps is the diagnostic sequence, at gentle speed.
var Steps = []Step{
	{"forward", kinematics.Intent{X: 0.3}},
	{"stop", kinematics.Intent{}},
	{"left", kinematics.Intent{Y: 0.3}},
	{"stop", kinematics.Intent{}},
	{"spin anticlockwise", kinematics.Intent{Rotation: 0.3}},
	{"stop", kinematics.Intent{}},
}

func New(hw hardware.Interface, ctrl *chassis.Controller, logger golog.Logger) *TestMode {
	return &TestMode{
		hw:     hw,
		ctrl:   ctrl,
		logger: logger,
	}
}

type TestMode struct {
	hw     hardware.Interface
	ctrl   *chassis.Controller
	logger golog.Logger

	cancel context.CancelFunc
	stopWG sync.WaitGroup
}

func (t *TestMode) Name() string {
	return "Test mode"
}

func (t *TestMode) StartupSound() string {
	return "/sounds/testmode.wav"
}

func (t *TestMode) Start(ctx context.Context) {
	if err := t.ctrl.Reset(); err != nil {
		t.logger.Warnw("Chassis reset failed", "error", err)
	}
	if err := t.ctrl.SetEnabled(true); err != nil {
		t.logger.Warnw("Failed to enable chassis; wheels won't move", "error", err)
	}
	t.stopWG.Add(1)
	var loopCtx context.Context
	loopCtx, t.cancel = context.WithCancel(ctx)
	go t.loop(loopCtx)
}

func (t *TestMode) Stop() {
	t.cancel()
	t.stopWG.Wait()
	if err := t.ctrl.SetEnabled(false); err != nil {
		t.logger.Warnw("Failed to disable chassis", "error", err)
	}
	t.hw.StopMotors()
}

func (t *TestMode) loop(ctx context.Context) {
	defer t.stopWG.Done()
	for i := 0; ctx.Err() == nil; i++ {
		t.runStep(Steps[i%len(Steps)])
		select {
		case <-ctx.Done():
		case <-time.After(stepDuration):
		}
	}
}

func (t *TestMode) runStep(s Step) kinematics.WheelCommand {
	cmd := t.ctrl.Drive(s.Intent)
	t.logger.Infow("TestMode step", "step", s.Name, "intent", s.Intent, "cmd", cmd)
	t.hw.SetWheelSpeeds(cmd)
	return cmd
}
