// Package imu drives an MPU-6000/9250 family gyro over I2C or SPI.  Only the
// Z (yaw) gyro is used.
package imu

import (
	"math"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const (
	IMUAddr = 0x68

	RegSampleRateDiv = 25
	RegConfig        = 26
	RegGyroConf      = 27
	RegGyroZOffset   = 23 // 16 bits
	RegFIFOEnable    = 35
	RegGyroZ         = 71 // 16 bits
	RegUserCtl       = 106
	RegFIFOCount     = 114 // 16 bits
	RegFIFORW        = 116 // n-bytes

	GyroRange = 2 // 1000 dps

	// With the DLPF on the gyro runs at 1kHz; we divide by 10.
	SampleRateDivider = 9
	SampleInterval    = time.Millisecond * (SampleRateDivider + 1)

	fifoBufSize = 512
)

type Interface interface {
	Configure() error
	Calibrate() error
	ReadGyroZ() (int16, error)
	// ReadFIFO returns whatever samples have accumulated, possibly none.  It
	// never waits for new ones.
	ReadFIFO() ([]int16, error)
	ResetFIFO() error
	DegreesPerLSB() float64
}

type port interface {
	// ReadReg reads len(buf) bytes from the device.
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) (err error)
}

type IMU struct {
	dev        port
	disableI2C bool
	logger     golog.Logger
}

func NewI2C(deviceFile string, logger golog.Logger) (*IMU, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, IMUAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open gyro on %s", deviceFile)
	}
	return &IMU{
		dev:    dev,
		logger: logger,
	}, nil
}

func NewSPI(deviceFile string, logger golog.Logger) (*IMU, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph init failed")
	}

	// Use spireg SPI port registry to find the SPI bus.
	p, err := spireg.Open(deviceFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SPI port %s", deviceFile)
	}

	// Convert the spi.Port into a spi.Conn so it can be used for communication.
	c, err := p.Connect(physic.KiloHertz*1000, spi.Mode3, 8)
	if err != nil {
		return nil, errors.Wrap(err, "SPI connect failed")
	}

	return &IMU{
		dev:        &SPIAdapter{c: c},
		disableI2C: true,
		logger:     logger,
	}, nil
}

type SPIAdapter struct {
	c spi.Conn

	r, w []byte
}

const W = 0x00
const R = 0x80

func (s *SPIAdapter) ReadReg(reg byte, buf []byte) error {
	// The read and write buffers need to be as long as the whole transaction.
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = R | reg
	err := s.c.Tx(s.w[:bufLen], s.r[:bufLen])
	if err != nil {
		return err
	}
	// The response starts after the address byte.
	copy(buf, s.r[1:bufLen])
	return nil
}

func (s *SPIAdapter) WriteReg(reg byte, buf []byte) (err error) {
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = W | reg
	copy(s.w[1:], buf)
	return s.c.Tx(s.w[:bufLen], s.r[:bufLen])
}

func (s *SPIAdapter) ensureBuf(l int) {
	if len(s.r) < l {
		s.w = make([]byte, l)
		s.r = make([]byte, l)
		return
	}
	for i := 0; i < l; i++ {
		s.w[i] = 0
		s.r[i] = 0
	}
}

func (m *IMU) Configure() error {
	if m.disableI2C {
		if err := m.dev.WriteReg(RegUserCtl, []byte{0x10}); err != nil {
			return errors.Wrap(err, "failed to disable I2C")
		}
	}
	for _, w := range []struct {
		reg  byte
		val  byte
		what string
	}{
		{RegGyroConf, GyroRange << 3, "gyro range"},
		{RegConfig, 1, "DLPF"},
		{RegSampleRateDiv, SampleRateDivider, "sample rate"},
		{RegFIFOEnable, 1 << 4, "FIFO enable"},
	} {
		if err := m.dev.WriteReg(w.reg, []byte{w.val}); err != nil {
			return errors.Wrapf(err, "failed to set %s", w.what)
		}
	}
	return m.ResetFIFO()
}

func (m *IMU) DegreesPerLSB() float64 {
	return 1000.0 / math.MaxInt16
}

// Calibrate averages the gyro at rest and writes the result to the offset
// registers.  The robot must be still.
func (m *IMU) Calibrate() error {
	m.logger.Infow("Calibrating gyro")
	if err := m.dev.WriteReg(RegGyroZOffset, []byte{0, 0}); err != nil {
		return errors.Wrap(err, "failed to clear gyro offset")
	}

	for i := 0; i < 100; i++ {
		if _, err := m.ReadGyroZ(); err != nil {
			return err
		}
	}

	var sum float64
	const n = 1000
	for i := 0; i < n; i++ {
		z, err := m.ReadGyroZ()
		if err != nil {
			return err
		}
		sum -= float64(z)
	}
	offset := sum / n
	// Offset registers are in 4x the 250dps LSB.
	scaledOffset := int16(offset / 4 * math.Pow(2, GyroRange))
	m.logger.Infow("Gyro calibrated", "offset", offset, "register", scaledOffset)
	err := m.dev.WriteReg(RegGyroZOffset, []byte{byte(scaledOffset >> 8), byte(scaledOffset)})
	return errors.Wrap(err, "failed to write gyro offset")
}

func (m *IMU) ReadGyroZ() (int16, error) {
	return m.read16(RegGyroZ)
}

func (m *IMU) ResetFIFO() error {
	return errors.Wrap(m.dev.WriteReg(RegUserCtl, []byte{1<<6 | 1<<2}), "FIFO reset failed")
}

func (m *IMU) ReadFIFO() ([]int16, error) {
	count, err := m.read16(RegFIFOCount)
	if err != nil {
		return nil, err
	}
	count &= 0xfff
	if count == 0 {
		return nil, nil
	}
	if count > fifoBufSize {
		// Overflowed; the data is garbage.
		if err := m.ResetFIFO(); err != nil {
			return nil, err
		}
		return nil, errors.Errorf("gyro FIFO overflow (%d bytes)", count)
	}
	// Only read whole samples.
	count &^= 1
	var buf [fifoBufSize]byte
	if err := m.dev.ReadReg(RegFIFORW, buf[:count]); err != nil {
		return nil, errors.Wrap(err, "FIFO read failed")
	}
	result := make([]int16, count/2)
	for i := range result {
		result[i] = int16(buf[i*2])<<8 | int16(buf[i*2+1])
	}
	return result, nil
}

func (m *IMU) read16(reg byte) (int16, error) {
	var buf [2]byte
	if err := m.dev.ReadReg(reg, buf[:]); err != nil {
		return 0, errors.Wrapf(err, "failed to read register %d", reg)
	}
	return int16(buf[0])<<8 | int16(buf[1]), nil
}
