package hardware

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/canmotor"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

var ErrNoEncoders = errors.New("no wheel encoders configured")

// The controllers send status at 50Hz or more.
const encoderStaleAfter = 250 * time.Millisecond

// EncoderReading holds each wheel's count since the last reset and its rate,
// wheel 1 first.
type EncoderReading struct {
	Counts    [kinematics.NumWheels]int64
	RatesPerS [kinematics.NumWheels]float64
}

func (r EncoderReading) String() string {
	return fmt.Sprintf("1: %d %.0f/s 2: %d %.0f/s 3: %d %.0f/s",
		r.Counts[0], r.RatesPerS[0], r.Counts[1], r.RatesPerS[1], r.Counts[2], r.RatesPerS[2])
}

type EncoderSource interface {
	Read() (EncoderReading, error)
	Reset() error
}

// NoEncoders is the source for drivers that can't report wheel movement.
type NoEncoders struct{}

func (NoEncoders) Read() (EncoderReading, error) {
	return EncoderReading{}, ErrNoEncoders
}

func (NoEncoders) Reset() error {
	return nil
}

type canEncoders interface {
	Snapshot() (counts [kinematics.NumWheels]int64, ratesPerS [kinematics.NumWheels]float64, oldest time.Time)
	Reset()
}

var _ canEncoders = (*canmotor.Encoders)(nil)

// CANEncoders adapts the motor controllers' status frames.  Inverted wheels
// have their counts flipped to match their duty cycles.
type CANEncoders struct {
	enc        canEncoders
	staleAfter time.Duration
	signs      [kinematics.NumWheels]float64
}

func NewCANEncoders(enc canEncoders, staleAfter time.Duration, inverted []bool) *CANEncoders {
	return &CANEncoders{
		enc:        enc,
		staleAfter: staleAfter,
		signs:      wheelSigns(inverted),
	}
}

func (c *CANEncoders) Read() (EncoderReading, error) {
	counts, rates, oldest := c.enc.Snapshot()
	if err := checkFresh(oldest, c.staleAfter); err != nil {
		return EncoderReading{}, err
	}
	var r EncoderReading
	for i := range counts {
		r.Counts[i] = int64(c.signs[i]) * counts[i]
		r.RatesPerS[i] = c.signs[i] * rates[i]
	}
	return r, nil
}

func (c *CANEncoders) Reset() error {
	c.enc.Reset()
	return nil
}
