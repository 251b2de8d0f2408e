package hardware

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/canmotor"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/pca9685"
)

// wheelSigns turns per-wheel inversion flags into multipliers.
func wheelSigns(inverted []bool) [kinematics.NumWheels]float64 {
	signs := [kinematics.NumWheels]float64{1, 1, 1}
	for i := range signs {
		if i < len(inverted) && inverted[i] {
			signs[i] = -1
		}
	}
	return signs
}

func applySigns(cmd kinematics.WheelCommand, signs [kinematics.NumWheels]float64) kinematics.WheelCommand {
	for i := range cmd {
		cmd[i] *= signs[i]
	}
	return cmd
}

// ServoValue maps a duty cycle in [-1, 1] onto a servo position in [0, 1],
// with 0.5 as neutral, which is what RC-style ESCs expect.
func ServoValue(duty float64) float64 {
	return 0.5 + 0.5*duty
}

// PWMDriver drives one ESC per wheel from PCA9685 servo outputs.
type PWMDriver struct {
	device   string
	channels [kinematics.NumWheels]int
	signs    [kinematics.NumWheels]float64
	open     func(device string) (pca9685.Interface, error)

	pwm pca9685.Interface
}

func NewPWMDriver(device string, channels []int, inverted []bool) (*PWMDriver, error) {
	if len(channels) != kinematics.NumWheels {
		return nil, errors.Errorf("need %d PWM channels, got %d", kinematics.NumWheels, len(channels))
	}
	d := &PWMDriver{
		device: device,
		signs:  wheelSigns(inverted),
		open: func(device string) (pca9685.Interface, error) {
			return pca9685.New(device)
		},
	}
	copy(d.channels[:], channels)
	return d, nil
}

func (d *PWMDriver) Name() string {
	return "pca9685"
}

func (d *PWMDriver) Open(ctx context.Context) error {
	pwm, err := d.open(d.device)
	if err != nil {
		return err
	}
	if err := pwm.Configure(); err != nil {
		pwm.Close()
		return err
	}
	d.pwm = pwm
	return nil
}

func (d *PWMDriver) Write(ctx context.Context, cmd kinematics.WheelCommand) error {
	if d.pwm == nil {
		return errors.New("PWM driver not open")
	}
	cmd = applySigns(cmd, d.signs)
	for i, duty := range cmd {
		if err := d.pwm.SetServo(d.channels[i], ServoValue(duty)); err != nil {
			return err
		}
	}
	return nil
}

func (d *PWMDriver) Close() error {
	if d.pwm == nil {
		return nil
	}
	err := d.pwm.Close()
	d.pwm = nil
	return err
}

// CANDriver sends duty frames to CAN motor controllers.
type CANDriver struct {
	iface  string
	ids    [kinematics.NumWheels]uint32
	signs  [kinematics.NumWheels]float64
	logger golog.Logger
	dial   func(ctx context.Context) (*canmotor.Sink, error)

	sink *canmotor.Sink
}

func NewCANDriver(iface string, ids []uint32, inverted []bool, logger golog.Logger) (*CANDriver, error) {
	if len(ids) != kinematics.NumWheels {
		return nil, errors.Errorf("need %d CAN IDs, got %d", kinematics.NumWheels, len(ids))
	}
	d := &CANDriver{
		iface:  iface,
		signs:  wheelSigns(inverted),
		logger: logger,
	}
	copy(d.ids[:], ids)
	d.dial = func(ctx context.Context) (*canmotor.Sink, error) {
		return canmotor.Dial(ctx, d.iface, d.ids, d.logger)
	}
	return d, nil
}

func (d *CANDriver) Name() string {
	return "can"
}

func (d *CANDriver) Open(ctx context.Context) error {
	sink, err := d.dial(ctx)
	if err != nil {
		return err
	}
	d.sink = sink
	return nil
}

func (d *CANDriver) Write(ctx context.Context, cmd kinematics.WheelCommand) error {
	if d.sink == nil {
		return errors.New("CAN driver not open")
	}
	return d.sink.SetWheelSpeeds(ctx, applySigns(cmd, d.signs))
}

func (d *CANDriver) Close() error {
	if d.sink == nil {
		return nil
	}
	err := d.sink.Close()
	d.sink = nil
	return err
}
