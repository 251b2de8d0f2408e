// Package canmotor sends wheel duty cycles to CAN-connected motor
// controllers, one frame per wheel.
package canmotor

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

// DefaultIDs are the standard frame IDs of the wheel 1..3 controllers.
var DefaultIDs = [kinematics.NumWheels]uint32{0x101, 0x102, 0x103}

// DutyFrameLen is the payload size of a duty frame.
const DutyFrameLen = 2

// Transmitter is satisfied by *socketcan.Transmitter.
type Transmitter interface {
	TransmitFrame(ctx context.Context, frame can.Frame) error
}

// EncodeDuty builds a duty-cycle frame: duty in [-1, 1], clamped, scaled to
// a little-endian int16 (full scale 32767).
func EncodeDuty(id uint32, duty float64) can.Frame {
	if math.IsNaN(duty) {
		duty = 0
	}
	duty = math.Max(-1, math.Min(1, duty))
	frame := can.Frame{
		ID:     id,
		Length: DutyFrameLen,
	}
	binary.LittleEndian.PutUint16(frame.Data[:DutyFrameLen], uint16(int16(math.Round(duty*math.MaxInt16))))
	return frame
}

// DecodeDuty is the inverse of EncodeDuty, for logging and tests.
func DecodeDuty(frame can.Frame) (float64, error) {
	if frame.Length != DutyFrameLen {
		return 0, errors.Errorf("duty frame 0x%x has length %d", frame.ID, frame.Length)
	}
	raw := int16(binary.LittleEndian.Uint16(frame.Data[:DutyFrameLen]))
	return float64(raw) / math.MaxInt16, nil
}

type Sink struct {
	tx     Transmitter
	closer io.Closer
	ids    [kinematics.NumWheels]uint32
	logger golog.Logger
}

func New(tx Transmitter, closer io.Closer, ids [kinematics.NumWheels]uint32, logger golog.Logger) *Sink {
	return &Sink{
		tx:     tx,
		closer: closer,
		ids:    ids,
		logger: logger,
	}
}

// Dial opens a SocketCAN interface such as "can0" or "vcan0".
func Dial(ctx context.Context, iface string, ids [kinematics.NumWheels]uint32, logger golog.Logger) (*Sink, error) {
	for _, id := range ids {
		if id > can.MaxID {
			return nil, errors.Errorf("CAN ID 0x%x out of range", id)
		}
	}
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, errors.Wrapf(err, "socketcan dial %s", iface)
	}
	logger.Infow("Opened CAN motor bus", "iface", iface, "ids", ids)
	return New(socketcan.NewTransmitter(conn), conn, ids, logger), nil
}

// SetWheelSpeeds sends one frame per wheel.  It stops at the first failure.
func (s *Sink) SetWheelSpeeds(ctx context.Context, cmd kinematics.WheelCommand) error {
	for i, duty := range cmd {
		frame := EncodeDuty(s.ids[i], duty)
		if err := s.tx.TransmitFrame(ctx, frame); err != nil {
			return errors.Wrapf(err, "failed to send wheel %d duty", i+1)
		}
	}
	return nil
}

func (s *Sink) Stop(ctx context.Context) error {
	return s.SetWheelSpeeds(ctx, kinematics.WheelCommand{})
}

func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
