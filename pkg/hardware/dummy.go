package hardware

import (
	"context"
	"sync"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

// Dummy stands in for the robot when running on a dev box.  It logs and
// remembers what it's asked to do.
type Dummy struct {
	logger        golog.Logger
	Sensor        *DummySensor
	WheelEncoders *DummyEncoders

	lock     sync.Mutex
	commands []kinematics.WheelCommand
	sounds   []string
}

func NewDummy(logger golog.Logger) *Dummy {
	return &Dummy{
		logger:        logger,
		Sensor:        &DummySensor{},
		WheelEncoders: &DummyEncoders{},
	}
}

var _ Interface = (*Dummy)(nil)

func (d *Dummy) Start(ctx context.Context) error {
	d.logger.Infow("DHW: Start")
	return nil
}

func (d *Dummy) HeadingSensor() chassis.HeadingSensor {
	return d.Sensor
}

func (d *Dummy) Encoders() EncoderSource {
	return d.WheelEncoders
}

func (d *Dummy) SetWheelSpeeds(cmd kinematics.WheelCommand) {
	d.logger.Debugw("DHW: SetWheelSpeeds", "cmd", cmd)
	d.lock.Lock()
	defer d.lock.Unlock()
	d.commands = append(d.commands, cmd)
}

func (d *Dummy) StopMotors() {
	d.logger.Infow("DHW: StopMotors")
	d.SetWheelSpeeds(kinematics.WheelCommand{})
}

func (d *Dummy) PlaySound(path string) {
	d.logger.Infow("DHW: PlaySound", "path", path)
	d.lock.Lock()
	defer d.lock.Unlock()
	d.sounds = append(d.sounds, path)
}

func (d *Dummy) Shutdown() {
	d.logger.Infow("DHW: Shutdown")
	d.StopMotors()
}

// Commands returns every wheel command written so far.
func (d *Dummy) Commands() []kinematics.WheelCommand {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]kinematics.WheelCommand(nil), d.commands...)
}

// LastCommand returns the most recent wheel command, or zeros.
func (d *Dummy) LastCommand() kinematics.WheelCommand {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.commands) == 0 {
		return kinematics.WheelCommand{}
	}
	return d.commands[len(d.commands)-1]
}

func (d *Dummy) Sounds() []string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]string(nil), d.sounds...)
}

// DummySensor reports whatever it's been set to.  Reset zeroes the angle.
type DummySensor struct {
	lock   sync.Mutex
	sample chassis.HeadingSample
	err    error
	resets int
}

func (s *DummySensor) Set(sample chassis.HeadingSample, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sample = sample
	s.err = err
}

func (s *DummySensor) Read() (chassis.HeadingSample, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sample, s.err
}

func (s *DummySensor) Reset() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sample.AngleDeg = 0
	s.resets++
	return nil
}

func (s *DummySensor) Resets() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.resets
}

// DummyEncoders reports whatever it's been set to.  Reset zeroes the counts.
type DummyEncoders struct {
	lock    sync.Mutex
	reading EncoderReading
	err     error
	resets  int
}

func (e *DummyEncoders) Set(reading EncoderReading, err error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.reading = reading
	e.err = err
}

func (e *DummyEncoders) Read() (EncoderReading, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.reading, e.err
}

func (e *DummyEncoders) Reset() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.reading.Counts = [kinematics.NumWheels]int64{}
	e.resets++
	return nil
}

func (e *DummyEncoders) Resets() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.resets
}

// DummyDriver is a MotorDriver that only logs.
type DummyDriver struct {
	logger golog.Logger
	last   kinematics.WheelCommand
}

func (d *DummyDriver) Name() string {
	return "dummy"
}

func (d *DummyDriver) Open(ctx context.Context) error {
	return nil
}

func (d *DummyDriver) Write(ctx context.Context, cmd kinematics.WheelCommand) error {
	if cmd != d.last {
		d.logger.Debugw("Wheel speeds", "cmd", cmd)
		d.last = cmd
	}
	return nil
}

func (d *DummyDriver) Close() error {
	return nil
}
