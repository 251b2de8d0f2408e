package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/bno08x"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/canmotor"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/imu"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/sound"
)

type Hardware struct {
	logger golog.Logger
	player *sound.Player

	motors *MotorLoop
	sensor chassis.HeadingSensor
	// startSensor runs the sensor's background loop, if it has one.
	startSensor func(ctx context.Context, initDone *sync.WaitGroup)

	encoders      EncoderSource
	startEncoders func(ctx context.Context)

	cancel  context.CancelFunc
	loopsWG sync.WaitGroup
}

var _ Interface = (*Hardware)(nil)

// New opens the devices named in cfg.  Nothing runs until Start.
func New(cfg config.File, logger golog.Logger) (*Hardware, error) {
	h := &Hardware{
		logger: logger,
	}

	staleAfter := time.Duration(cfg.Heading.StaleAfterMS) * time.Millisecond
	switch cfg.Heading.Source {
	case config.SourceGyroI2C, config.SourceGyroSPI:
		var dev *imu.IMU
		var err error
		if cfg.Heading.Source == config.SourceGyroI2C {
			dev, err = imu.NewI2C(cfg.Heading.Device, logger.Named("gyro"))
		} else {
			dev, err = imu.NewSPI(cfg.Heading.Device, logger.Named("gyro"))
		}
		if err != nil {
			return nil, err
		}
		heading := imu.NewHeading(dev, logger.Named("gyro"))
		h.sensor = NewGyroSensor(heading, staleAfter, cfg.Heading.Invert)
		h.startSensor = heading.Loop
	case config.SourceBNO08x:
		b := bno08x.New(cfg.Heading.Device, logger.Named("bno08x"))
		h.sensor = NewBNOSensor(b, staleAfter, cfg.Heading.Invert)
		h.startSensor = func(ctx context.Context, initDone *sync.WaitGroup) {
			initDone.Done()
			b.LoopReadingReports(ctx)
		}
	case config.SourceDummy:
		h.sensor = &DummySensor{}
	default:
		return nil, errors.Wrapf(chassis.ErrInvalidConfig, "unknown heading source %q", cfg.Heading.Source)
	}

	var driver MotorDriver
	var err error
	m := cfg.Motors
	switch m.Driver {
	case config.DriverPCA9685:
		driver, err = NewPWMDriver(m.Device, m.Channels, m.Inverted)
	case config.DriverCAN:
		driver, err = NewCANDriver(m.Device, m.CANIDs, m.Inverted, logger.Named("can"))
	case config.DriverDummy:
		driver = &DummyDriver{logger: logger.Named("motors")}
	default:
		err = errors.Wrapf(chassis.ErrInvalidConfig, "unknown motor driver %q", m.Driver)
	}
	if err != nil {
		return nil, err
	}
	h.motors = NewMotorLoop(driver, logger.Named("motors"))

	h.encoders = NoEncoders{}
	if m.Driver == config.DriverCAN && len(m.EncoderIDs) == kinematics.NumWheels {
		var ids [kinematics.NumWheels]uint32
		copy(ids[:], m.EncoderIDs)
		encLogger := logger.Named("encoders")
		enc := canmotor.NewEncoders(ids, encLogger)
		h.encoders = NewCANEncoders(enc, encoderStaleAfter, m.Inverted)
		h.startEncoders = func(ctx context.Context) {
			for ctx.Err() == nil {
				err := enc.Listen(ctx, m.Device)
				if ctx.Err() != nil {
					return
				}
				encLogger.Warnw("Encoder listener stopped; will retry", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
	return h, nil
}

func (h *Hardware) Start(ctx context.Context) error {
	if h.cancel != nil {
		return errors.New("hardware already started")
	}
	var loopCtx context.Context
	loopCtx, h.cancel = context.WithCancel(ctx)
	h.player = sound.NewPlayer(h.logger.Named("sound"))

	var initDone sync.WaitGroup
	if h.startSensor != nil {
		initDone.Add(1)
		h.loopsWG.Add(1)
		go func() {
			defer h.loopsWG.Done()
			h.startSensor(loopCtx, &initDone)
		}()
	}
	initDone.Add(1)
	h.loopsWG.Add(1)
	go func() {
		defer h.loopsWG.Done()
		h.motors.Loop(loopCtx, &initDone)
	}()
	if h.startEncoders != nil {
		h.loopsWG.Add(1)
		go func() {
			defer h.loopsWG.Done()
			h.startEncoders(loopCtx)
		}()
	}
	initDone.Wait()
	h.logger.Infow("Hardware started")
	return nil
}

func (h *Hardware) HeadingSensor() chassis.HeadingSensor {
	return h.sensor
}

func (h *Hardware) Encoders() EncoderSource {
	return h.encoders
}

func (h *Hardware) SetWheelSpeeds(cmd kinematics.WheelCommand) {
	h.motors.SetWheelSpeeds(cmd)
}

func (h *Hardware) StopMotors() {
	h.motors.SetWheelSpeeds(kinematics.WheelCommand{})
	// Give the loop a chance to write it out.
	time.Sleep(2 * motorLoopPeriod)
}

func (h *Hardware) PlaySound(path string) {
	if h.player == nil {
		return
	}
	h.player.Play(path)
}

func (h *Hardware) Shutdown() {
	h.StopMotors()
	if h.cancel != nil {
		h.cancel()
		h.loopsWG.Wait()
	}
	if h.player != nil {
		h.player.Close()
	}
	h.logger.Infow("Hardware shut down")
}
