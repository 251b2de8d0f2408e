package hardware

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/bno08x"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
)

var ErrStaleReading = errors.New("heading reading is stale")

// gyroHeading is the part of imu.Heading we use.
type gyroHeading interface {
	Current() (angleDeg, rateDegPerS float64, t time.Time, err error)
	Reset()
}

// GyroSensor adapts the integrated gyro heading to chassis.HeadingSensor.
type GyroSensor struct {
	heading    gyroHeading
	staleAfter time.Duration
	sign       float64
}

func NewGyroSensor(h gyroHeading, staleAfter time.Duration, invert bool) *GyroSensor {
	return &GyroSensor{
		heading:    h,
		staleAfter: staleAfter,
		sign:       signOf(invert),
	}
}

func (g *GyroSensor) Read() (chassis.HeadingSample, error) {
	angle, rate, t, err := g.heading.Current()
	if err != nil {
		return chassis.HeadingSample{}, errors.Wrap(err, "gyro")
	}
	if err := checkFresh(t, g.staleAfter); err != nil {
		return chassis.HeadingSample{}, err
	}
	return chassis.HeadingSample{
		AngleDeg:    g.sign * angle,
		RateDegPerS: g.sign * rate,
	}, nil
}

func (g *GyroSensor) Reset() error {
	g.heading.Reset()
	return nil
}

// BNOSensor adapts the BNO08x report stream to chassis.HeadingSensor.
type BNOSensor struct {
	imu        bno08x.Interface
	staleAfter time.Duration
	sign       float64

	lock    sync.Mutex
	tracker bno08x.Tracker
}

func NewBNOSensor(imu bno08x.Interface, staleAfter time.Duration, invert bool) *BNOSensor {
	return &BNOSensor{
		imu:        imu,
		staleAfter: staleAfter,
		sign:       signOf(invert),
	}
}

func (b *BNOSensor) Read() (chassis.HeadingSample, error) {
	report := b.imu.CurrentReport()
	if err := checkFresh(report.Time, b.staleAfter); err != nil {
		return chassis.HeadingSample{}, err
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	angle, rate := b.tracker.Update(report)
	return chassis.HeadingSample{
		AngleDeg:    b.sign * angle,
		RateDegPerS: b.sign * rate,
	}, nil
}

func (b *BNOSensor) Reset() error {
	report := b.imu.CurrentReport()
	if err := checkFresh(report.Time, b.staleAfter); err != nil {
		return err
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.tracker.Update(report)
	b.tracker.Reset()
	return nil
}

func checkFresh(t time.Time, staleAfter time.Duration) error {
	if t.IsZero() {
		return errors.Wrap(ErrStaleReading, "no reading yet")
	}
	if age := time.Since(t); age > staleAfter {
		return errors.Wrapf(ErrStaleReading, "last reading %v old", age.Round(time.Millisecond))
	}
	return nil
}

func signOf(invert bool) float64 {
	if invert {
		return -1
	}
	return 1
}
