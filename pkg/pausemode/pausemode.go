// Package pausemode holds the robot still: chassis disabled, motors zeroed.
package pausemode

import (
	"context"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
)

type PauseMode struct {
	hw     hardware.Interface
	ctrl   *chassis.Controller
	logger golog.Logger
}

func New(hw hardware.Interface, ctrl *chassis.Controller, logger golog.Logger) *PauseMode {
	return &PauseMode{
		hw:     hw,
		ctrl:   ctrl,
		logger: logger,
	}
}

func (t *PauseMode) Name() string {
	return "Pause mode"
}

func (t *PauseMode) StartupSound() string {
	return "/sounds/pausemode.wav"
}

func (t *PauseMode) Start(ctx context.Context) {
	if err := t.ctrl.SetEnabled(false); err != nil {
		t.logger.Warnw("Failed to disable chassis", "error", err)
	}
	t.hw.StopMotors()
}

func (t *PauseMode) Stop() {
}
