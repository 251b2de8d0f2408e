package imu

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
)

// Heading integrates the yaw gyro into a cumulative heading.  Both angle and
// rate are anticlockwise-positive, looking down on the robot.
type Heading struct {
	dev    Interface
	logger golog.Logger

	lock        sync.Mutex
	angleDeg    float64
	rateDegPerS float64
	lastSample  time.Time
	lastErr     error
}

func NewHeading(dev Interface, logger golog.Logger) *Heading {
	return &Heading{
		dev:    dev,
		logger: logger,
	}
}

// Poll drains the FIFO and integrates every sample in it.
func (h *Heading) Poll() error {
	samples, err := h.dev.ReadFIFO()

	h.lock.Lock()
	defer h.lock.Unlock()
	h.lastErr = err
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	dt := SampleInterval.Seconds()
	scale := h.dev.DegreesPerLSB()
	var sum float64
	for _, s := range samples {
		rate := float64(s) * scale
		h.angleDeg += rate * dt
		sum += rate
	}
	h.rateDegPerS = sum / float64(len(samples))
	h.lastSample = time.Now()
	return nil
}

// Loop polls until ctx is cancelled.  initDone, if non-nil, is released
// after the gyro has been configured.
func (h *Heading) Loop(ctx context.Context, initDone *sync.WaitGroup) {
	defer func() {
		if initDone != nil {
			initDone.Done()
		}
	}()

	if err := h.dev.Configure(); err != nil {
		h.logger.Errorw("Gyro configuration failed", "error", err)
		h.lock.Lock()
		h.lastErr = err
		h.lock.Unlock()
		return
	}
	if initDone != nil {
		initDone.Done()
		initDone = nil
	}

	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := h.Poll()
		if err != nil && !failing {
			h.logger.Warnw("Gyro read failing", "error", err)
		} else if err == nil && failing {
			h.logger.Infow("Gyro recovered")
		}
		failing = err != nil
	}
}

// Current returns the integrated heading, the most recent rate, the time of
// the last sample and the error from the last poll.
func (h *Heading) Current() (angleDeg, rateDegPerS float64, t time.Time, err error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.angleDeg, h.rateDegPerS, h.lastSample, h.lastErr
}

// Reset zeroes the heading.
func (h *Heading) Reset() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.angleDeg = 0
}
