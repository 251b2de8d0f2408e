package hardware

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/bno08x"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/pca9685"
)

type fakeDriver struct {
	lock      sync.Mutex
	opens     int
	closes    int
	writes    []kinematics.WheelCommand
	failWrite int
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) Open(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.opens++
	return nil
}

func (f *fakeDriver) Write(ctx context.Context, cmd kinematics.WheelCommand) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.failWrite > 0 {
		f.failWrite--
		return errors.New("bus error")
	}
	f.writes = append(f.writes, cmd)
	return nil
}

func (f *fakeDriver) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closes++
	return nil
}

func (f *fakeDriver) snapshot() (opens, closes int, writes []kinematics.WheelCommand) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.opens, f.closes, append([]kinematics.WheelCommand(nil), f.writes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMotorLoopWritesDesiredAndStopsOnExit(t *testing.T) {
	d := &fakeDriver{}
	m := NewMotorLoop(d, golog.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	var initDone, loopDone sync.WaitGroup
	initDone.Add(1)
	loopDone.Add(1)
	go func() {
		defer loopDone.Done()
		m.Loop(ctx, &initDone)
	}()
	initDone.Wait()

	cmd := kinematics.WheelCommand{-1, 0.5, 0.5}
	m.SetWheelSpeeds(cmd)
	waitFor(t, "command written", func() bool {
		_, _, writes := d.snapshot()
		return len(writes) > 0 && writes[len(writes)-1] == cmd
	})

	cancel()
	loopDone.Wait()
	_, closes, writes := d.snapshot()
	if closes != 1 {
		t.Fatalf("Expected driver closed once, got %d", closes)
	}
	if !writes[len(writes)-1].IsZero() {
		t.Fatalf("Expected motors stopped on exit, last write %v", writes[len(writes)-1])
	}
}

func TestMotorLoopRecoversFromWriteFailure(t *testing.T) {
	d := &fakeDriver{failWrite: 1}
	m := NewMotorLoop(d, golog.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	var loopDone sync.WaitGroup
	loopDone.Add(1)
	go func() {
		defer loopDone.Done()
		m.Loop(ctx, nil)
	}()
	m.SetWheelSpeeds(kinematics.WheelCommand{0.2, 0.2, 0.2})
	waitFor(t, "reopen", func() bool {
		opens, _, _ := d.snapshot()
		return opens >= 2
	})
	waitFor(t, "write after recovery", func() bool {
		return m.Writes() > 0
	})
	cancel()
	loopDone.Wait()
}

func TestPWMDriverMapsDutyToServo(t *testing.T) {
	d, err := NewPWMDriver("/dev/null", []int{4, 5, 6}, []bool{false, true, false})
	if err != nil {
		t.Fatalf("NewPWMDriver failed: %v", err)
	}
	dummy := pca9685.Dummy()
	d.open = func(string) (pca9685.Interface, error) { return dummy, nil }
	if err := d.Write(context.Background(), kinematics.WheelCommand{}); err == nil {
		t.Fatalf("Write before Open should fail")
	}
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := d.Write(context.Background(), kinematics.WheelCommand{-1, 0.5, 0}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	for port, expected := range map[int]float64{4: 0, 5: 0.25, 6: 0.5} {
		if got := dummy.Get(port); math.Abs(got-expected) > 1e-9 {
			t.Errorf("Port %d: got %v, expected %v", port, got, expected)
		}
	}
}

func TestDriversNeedThreeWheels(t *testing.T) {
	if _, err := NewPWMDriver("x", []int{1, 2}, nil); err == nil {
		t.Errorf("Expected error for two PWM channels")
	}
	if _, err := NewCANDriver("vcan0", []uint32{1}, nil, golog.NewTestLogger(t)); err == nil {
		t.Errorf("Expected error for one CAN ID")
	}
}

type fakeGyro struct {
	angle, rate float64
	t           time.Time
	err         error
	resets      int
}

func (f *fakeGyro) Current() (float64, float64, time.Time, error) {
	return f.angle, f.rate, f.t, f.err
}

func (f *fakeGyro) Reset() {
	f.resets++
	f.angle = 0
}

func TestGyroSensor(t *testing.T) {
	g := &fakeGyro{angle: 30, rate: 5, t: time.Now()}
	s := NewGyroSensor(g, 100*time.Millisecond, true)
	sample, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if sample.AngleDeg != -30 || sample.RateDegPerS != -5 {
		t.Fatalf("Expected inverted sample, got %v", sample)
	}

	g.t = time.Now().Add(-time.Second)
	if _, err := s.Read(); errors.Cause(err) != ErrStaleReading {
		t.Fatalf("Expected stale error, got %v", err)
	}
	g.t = time.Time{}
	if _, err := s.Read(); errors.Cause(err) != ErrStaleReading {
		t.Fatalf("Expected stale error before first reading, got %v", err)
	}
	g.err = errors.New("bus")
	if _, err := s.Read(); err == nil {
		t.Fatalf("Expected gyro error")
	}
	if err := s.Reset(); err != nil || g.resets != 1 {
		t.Fatalf("Reset not passed through: %v %d", err, g.resets)
	}
}

type fakeBNO struct {
	report bno08x.IMUReport
}

func (f *fakeBNO) CurrentReport() bno08x.IMUReport {
	return f.report
}

func (f *fakeBNO) WaitForReportAfter(t time.Time, timeout time.Duration) (bno08x.IMUReport, error) {
	return f.report, nil
}

func TestBNOSensor(t *testing.T) {
	b := &fakeBNO{}
	s := NewBNOSensor(b, time.Second, false)
	if _, err := s.Read(); errors.Cause(err) != ErrStaleReading {
		t.Fatalf("Expected stale error with no reports, got %v", err)
	}
	if err := s.Reset(); err == nil {
		t.Fatalf("Reset should fail with no reports")
	}

	now := time.Now()
	b.report = bno08x.IMUReport{Index: 1, Time: now, Yaw: 17000}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	b.report = bno08x.IMUReport{Index: 2, Time: now.Add(10 * time.Millisecond), Yaw: -17000}
	sample, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if math.Abs(sample.AngleDeg-20) > 1e-9 {
		t.Fatalf("Expected 20 degrees across the wrap, got %v", sample.AngleDeg)
	}
}

func TestNewWithDummies(t *testing.T) {
	cfg := config.Default()
	cfg.Heading.Source = config.SourceDummy
	cfg.Motors.Driver = config.DriverDummy
	h, err := New(cfg, golog.NewTestLogger(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := h.HeadingSensor().(*DummySensor); !ok {
		t.Fatalf("Expected dummy sensor, got %T", h.HeadingSensor())
	}
	cfg.Heading.Source = "compass"
	if _, err := New(cfg, golog.NewTestLogger(t)); !errors.Is(err, chassis.ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestDummyRecords(t *testing.T) {
	d := NewDummy(golog.NewTestLogger(t))
	d.SetWheelSpeeds(kinematics.WheelCommand{1, 0, 0})
	d.PlaySound("/sounds/x.wav")
	if d.LastCommand() != (kinematics.WheelCommand{1, 0, 0}) || len(d.Sounds()) != 1 {
		t.Fatalf("Dummy didn't record: %v %v", d.Commands(), d.Sounds())
	}
	d.Shutdown()
	if !d.LastCommand().IsZero() {
		t.Fatalf("Shutdown should stop the motors")
	}
}
