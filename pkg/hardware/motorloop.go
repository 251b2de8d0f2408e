package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

const (
	motorLoopPeriod = 10 * time.Millisecond
	// Motor controllers time out if they don't hear from us; refresh even
	// when nothing has changed.
	motorRefreshInterval = 100 * time.Millisecond
	motorRetryDelay      = 100 * time.Millisecond
)

// MotorLoop owns the motor driver.  Callers set the desired speeds; the loop
// writes them out, and reopens the driver if it fails.
type MotorLoop struct {
	driver MotorDriver
	logger golog.Logger

	lock sync.Mutex
	// Desired values.  Stored off in case we need to re-initialise the hardware.
	desired kinematics.WheelCommand
	written uint64
}

func NewMotorLoop(driver MotorDriver, logger golog.Logger) *MotorLoop {
	return &MotorLoop{
		driver: driver,
		logger: logger,
	}
}

func (m *MotorLoop) SetWheelSpeeds(cmd kinematics.WheelCommand) {
	m.lock.Lock()
	m.desired = cmd
	m.lock.Unlock()
}

func (m *MotorLoop) Desired() kinematics.WheelCommand {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.desired
}

// Writes returns the number of successful writes, for tests and diagnostics.
func (m *MotorLoop) Writes() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.written
}

func (m *MotorLoop) Loop(ctx context.Context, initDone *sync.WaitGroup) {
	m.logger.Infow("Motor loop started", "driver", m.driver.Name())
	for {
		m.loopUntilSomethingBadHappens(ctx, initDone)
		initDone = nil
		if ctx.Err() != nil {
			return
		}
		m.logger.Warnw("Motor driver failed; trying to recover", "driver", m.driver.Name())
		select {
		case <-ctx.Done():
			return
		case <-time.After(motorRetryDelay):
		}
	}
}

func (m *MotorLoop) loopUntilSomethingBadHappens(ctx context.Context, initDone *sync.WaitGroup) {
	defer func() {
		if initDone != nil {
			initDone.Done()
		}
	}()

	if err := m.driver.Open(ctx); err != nil {
		m.logger.Errorw("Failed to open motor driver", "error", err)
		return
	}
	defer func() {
		// Always leave the motors stopped.
		stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := m.driver.Write(stopCtx, kinematics.WheelCommand{}); err != nil {
			m.logger.Warnw("Failed to stop motors", "error", err)
		}
		if err := m.driver.Close(); err != nil {
			m.logger.Warnw("Failed to close motor driver", "error", err)
		}
	}()

	if initDone != nil {
		initDone.Done()
		initDone = nil
	}

	ticker := time.NewTicker(motorLoopPeriod)
	defer ticker.Stop()

	var last kinematics.WheelCommand
	var lastWrite time.Time
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cmd := m.Desired()
		if !first && cmd == last && time.Since(lastWrite) < motorRefreshInterval {
			continue
		}
		if err := m.driver.Write(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Errorw("Failed to update motor speeds", "error", err)
			return
		}
		m.lock.Lock()
		m.written++
		m.lock.Unlock()
		last, lastWrite, first = cmd, time.Now(), false
	}
}
