// Package pca9685 drives the 16-channel PCA9685 PWM chip over I2C.  The
// wheel ESCs take standard servo pulses from it.
package pca9685

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const (
	DefaultAddr = 0x40

	NumPorts = 16

	RegMode1 = 0x00
	RegMode2 = 0x01

	// Each PWM output has two 16-bit (low byte first) registers.
	// First register is the on time, second is the off time.
	RegLEDBase = 0x06

	RegPreScale = 0xfe // Pre-scaler for PWM frequency.

	PWMPeriod = 20 * time.Millisecond

	ServoMinPulseDuration = 1000 * time.Microsecond
	ServoMaxPulseDuration = 2000 * time.Microsecond

	PWMMax = 4095

	ServoMinPWM = float64(PWMMax * ServoMinPulseDuration / PWMPeriod)
	ServoMaxPWM = float64(PWMMax * ServoMaxPulseDuration / PWMPeriod)
)

var ErrBadPort = errors.New("PWM port out of range")

type Interface interface {
	Configure() error
	// SetServo sets a servo pulse; 0 is the shortest pulse, 1 the longest
	// and 0.5 is neutral.
	SetServo(port int, value float64) error
	SetPWM(port int, value float64) error
	Close() error
}

type register interface {
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type PCA9685 struct {
	dev register
}

var _ Interface = (*PCA9685)(nil)
var _ Interface = (*DummyPWM)(nil)

func New(deviceFile string) (*PCA9685, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, DefaultAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open PCA9685 on %s", deviceFile)
	}
	return &PCA9685{
		dev: dev,
	}, nil
}

func (p *PCA9685) Configure() error {
	for _, w := range []struct {
		reg byte
		val byte
	}{
		{RegMode1, 0x11},    // Sleep.
		{RegPreScale, 0x79}, // 50Hz.
		{RegMode1, 0x01},    // Reset.
	} {
		if err := p.dev.WriteReg(w.reg, []byte{w.val}); err != nil {
			return errors.Wrapf(err, "failed to configure PCA9685 register 0x%x", w.reg)
		}
	}
	// Required delay after reset.
	time.Sleep(1 * time.Millisecond)
	return errors.Wrap(p.dev.WriteReg(RegMode1, []byte{0x81}), "failed to enable PCA9685")
}

// ServoPulse maps value in [0, 1] to a PWM count between the servo min and
// max pulse widths.
func ServoPulse(value float64) uint16 {
	return uint16(ServoMinPWM + clamp01(value)*(ServoMaxPWM-ServoMinPWM))
}

func (p *PCA9685) SetServo(port int, value float64) error {
	return p.write(port, ServoPulse(value))
}

func (p *PCA9685) SetPWM(port int, value float64) error {
	return p.write(port, uint16(PWMMax*clamp01(value)))
}

func (p *PCA9685) write(port int, pwmValue uint16) error {
	if port < 0 || port >= NumPorts {
		return errors.Wrapf(ErrBadPort, "port %d", port)
	}
	addr := RegLEDBase + port*4
	err := p.dev.WriteReg(byte(addr), []byte{0, 0, byte(pwmValue & 0xff), byte(pwmValue >> 8)})
	return errors.Wrapf(err, "failed to set PWM port %d", port)
}

func (p *PCA9685) Close() error {
	return p.dev.Close()
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}

// Dummy returns an Interface that just remembers the last value written to
// each port.
func Dummy() *DummyPWM {
	return &DummyPWM{Servo: map[int]float64{}}
}

type DummyPWM struct {
	lock  sync.Mutex
	Servo map[int]float64
}

func (*DummyPWM) Configure() error {
	return nil
}

func (d *DummyPWM) SetServo(port int, value float64) error {
	if port < 0 || port >= NumPorts {
		return errors.Wrapf(ErrBadPort, "port %d", port)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.Servo[port] = clamp01(value)
	return nil
}

func (d *DummyPWM) SetPWM(port int, value float64) error {
	return d.SetServo(port, value)
}

func (d *DummyPWM) Get(port int) float64 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.Servo[port]
}

func (*DummyPWM) Close() error {
	return nil
}
