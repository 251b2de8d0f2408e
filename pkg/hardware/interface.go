// Package hardware wires the heading sensor and motor controllers to the
// chassis controller.
package hardware

import (
	"context"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

type Interface interface {
	// Start brings up the device loops; it returns once they've initialised.
	Start(ctx context.Context) error

	// HeadingSensor returns the sensor to hand to the chassis controller.
	HeadingSensor() chassis.HeadingSensor

	// Encoders reports wheel movement.  Drivers without feedback return a
	// source whose Read fails with ErrNoEncoders.
	Encoders() EncoderSource

	// SetWheelSpeeds records the desired wheel duty cycles.  They're written
	// out by a background loop.
	SetWheelSpeeds(cmd kinematics.WheelCommand)
	StopMotors()

	PlaySound(path string)

	Shutdown()
}

// MotorDriver talks to the motor controllers.  It's only used from the
// motor loop's goroutine.
type MotorDriver interface {
	Name() string
	Open(ctx context.Context) error
	Write(ctx context.Context, cmd kinematics.WheelCommand) error
	Close() error
}
