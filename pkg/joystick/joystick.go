// Package joystick reads a Linux js device and folds its events into the
// operator's drive intent.
//
// Button numbers are as reported by the hid-sony driver for a DualShock 4; see
// the Button* constants.  Axes report -32767..32767 with up and left negative.
// L2/R2 show up both as buttons and as axes 2 and 5.
package joystick

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

type EventType uint8

const (
	EventTypeButton = 1
	EventTypeAxis   = 2
)

const (
	ButtonSquare   = 3
	ButtonCross    = 0
	ButtonCircle   = 1
	ButtonTriangle = 2
	ButtonL1       = 4
	ButtonR1       = 5
	ButtonL2       = 6
	ButtonR2       = 7
	ButtonShare    = 8
	ButtonOptions  = 9
	ButtonLStick   = 11
	ButtonRStick   = 12
	ButtonPS       = 10

	AxisLStickX = 0
	AxisLStickY = 1
	AxisL2      = 2
	AxisRStickX = 3
	AxisRStickY = 4
	AxisR2      = 5
	AxisDPadX   = 6
	AxisDPadY   = 7

	// MaxAxis is the number of axes/buttons we track.
	MaxAxis = 16
)

func (e EventType) String() string {
	switch e {
	case EventTypeAxis:
		return "axis"
	case EventTypeButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

type Joystick struct {
	device *os.File

	deviceEpoch    uint32
	wallclockEpoch time.Time
}

type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

type Event struct {
	Time   time.Time
	Value  int16
	Type   EventType
	Number uint8
	// Init is set for the synthetic events the driver sends on open to
	// report the initial state.
	Init bool
}

func (e *Event) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

func NewJoystick(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open joystick %s", device)
	}
	return &Joystick{
		device: f,
	}, nil
}

func (j *Joystick) ReadEvent() (*Event, error) {
	var rawEvent rawEvent
	err := binary.Read(j.device, binary.LittleEndian, &rawEvent)
	if err != nil {
		return nil, errors.Wrap(err, "joystick read failed")
	}

	if j.deviceEpoch == 0 {
		j.deviceEpoch = rawEvent.Time
		j.wallclockEpoch = time.Now()
	}

	return &Event{
		Time:   j.wallclockEpoch.Add(time.Duration(rawEvent.Time-j.deviceEpoch) * time.Millisecond),
		Value:  rawEvent.Value,
		Type:   EventType(rawEvent.Type & 0x7f),
		Number: rawEvent.Number,
		Init:   rawEvent.Type&0x80 != 0,
	}, nil
}

func (j *Joystick) Close() error {
	return j.device.Close()
}
