package canmotor

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

// DefaultEncoderIDs are the status frame IDs the wheel 1..3 controllers
// report their encoders on.
var DefaultEncoderIDs = [kinematics.NumWheels]uint32{0x181, 0x182, 0x183}

// EncoderFrameLen is the payload size of an encoder status frame: a
// little-endian int32 count followed by an int32 rate in counts/s.
const EncoderFrameLen = 8

// Receiver is satisfied by *socketcan.Receiver.
type Receiver interface {
	Receive() bool
	Frame() can.Frame
	Err() error
}

func EncodeEncoder(id uint32, count, ratePerS int32) can.Frame {
	frame := can.Frame{
		ID:     id,
		Length: EncoderFrameLen,
	}
	binary.LittleEndian.PutUint32(frame.Data[0:4], uint32(count))
	binary.LittleEndian.PutUint32(frame.Data[4:8], uint32(ratePerS))
	return frame
}

func DecodeEncoder(frame can.Frame) (count, ratePerS int32, err error) {
	if frame.Length != EncoderFrameLen {
		return 0, 0, errors.Errorf("encoder frame 0x%x has length %d", frame.ID, frame.Length)
	}
	count = int32(binary.LittleEndian.Uint32(frame.Data[0:4]))
	ratePerS = int32(binary.LittleEndian.Uint32(frame.Data[4:8]))
	return count, ratePerS, nil
}

// Encoders tracks the latest encoder status of each wheel.  Counts are
// relative to the last Reset.
type Encoders struct {
	ids    [kinematics.NumWheels]uint32
	logger golog.Logger

	lock      sync.Mutex
	raw       [kinematics.NumWheels]int32
	offset    [kinematics.NumWheels]int32
	rates     [kinematics.NumWheels]float64
	seen      [kinematics.NumWheels]time.Time
	badFrames uint64
}

func NewEncoders(ids [kinematics.NumWheels]uint32, logger golog.Logger) *Encoders {
	return &Encoders{
		ids:    ids,
		logger: logger,
	}
}

// HandleFrame records a status frame.  It returns false for frames that
// aren't ours or don't decode.
func (e *Encoders) HandleFrame(frame can.Frame, now time.Time) bool {
	for i, id := range e.ids {
		if frame.ID != id || frame.IsExtended {
			continue
		}
		count, rate, err := DecodeEncoder(frame)
		e.lock.Lock()
		defer e.lock.Unlock()
		if err != nil {
			e.badFrames++
			if e.badFrames == 1 {
				e.logger.Warnw("Bad encoder frame", "error", err)
			}
			return false
		}
		e.raw[i] = count
		e.rates[i] = float64(rate)
		e.seen[i] = now
		return true
	}
	return false
}

// Snapshot returns the counts since the last Reset, the rates and the time
// of the oldest wheel's last report (zero until all three have reported).
func (e *Encoders) Snapshot() (counts [kinematics.NumWheels]int64, ratesPerS [kinematics.NumWheels]float64, oldest time.Time) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for i := range counts {
		// Wrapping subtraction so a counter rollover doesn't jump.
		counts[i] = int64(e.raw[i] - e.offset[i])
	}
	for _, t := range e.seen {
		if t.IsZero() {
			return counts, e.rates, time.Time{}
		}
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	return counts, e.rates, oldest
}

// Reset zeroes the counts.
func (e *Encoders) Reset() {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.offset = e.raw
}

// ReadFrames feeds frames from rx until it stops.
func (e *Encoders) ReadFrames(rx Receiver) error {
	for rx.Receive() {
		e.HandleFrame(rx.Frame(), time.Now())
	}
	return rx.Err()
}

// Listen opens its own socket on iface and reads status frames until ctx is
// cancelled.
func (e *Encoders) Listen(ctx context.Context, iface string) error {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return errors.Wrapf(err, "socketcan dial %s", iface)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		// Unblock the receive when we're cancelled.
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()
	e.logger.Infow("Listening for encoder status", "iface", iface, "ids", e.ids)
	err = e.ReadFrames(socketcan.NewReceiver(conn))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrap(err, "encoder receive failed")
}
