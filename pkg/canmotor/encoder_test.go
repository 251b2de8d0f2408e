package canmotor

import (
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.einride.tech/can"
)

type fakeReceiver struct {
	frames []can.Frame
	next   can.Frame
}

func (f *fakeReceiver) Receive() bool {
	if len(f.frames) == 0 {
		return false
	}
	f.next, f.frames = f.frames[0], f.frames[1:]
	return true
}

func (f *fakeReceiver) Frame() can.Frame {
	return f.next
}

func (f *fakeReceiver) Err() error {
	return nil
}

func TestEncoderFrameRoundTrip(t *testing.T) {
	count, rate, err := DecodeEncoder(EncodeEncoder(0x181, -123456, math.MaxInt32))
	if err != nil {
		t.Fatalf("DecodeEncoder failed: %v", err)
	}
	if count != -123456 || rate != math.MaxInt32 {
		t.Fatalf("Got count %d rate %d", count, rate)
	}
	if _, _, err := DecodeEncoder(EncodeDuty(0x181, 0.5)); err == nil {
		t.Fatalf("Expected a duty frame to be rejected")
	}
}

func TestEncodersTrackAndReset(t *testing.T) {
	e := NewEncoders(DefaultEncoderIDs, golog.NewTestLogger(t))
	rx := &fakeReceiver{frames: []can.Frame{
		EncodeEncoder(0x181, 100, 10),
		EncodeEncoder(0x182, -50, -5),
		EncodeEncoder(0x999, 7, 7),
	}}
	if err := e.ReadFrames(rx); err != nil {
		t.Fatalf("ReadFrames failed: %v", err)
	}
	counts, rates, oldest := e.Snapshot()
	if !oldest.IsZero() {
		t.Errorf("Wheel 3 hasn't reported; expected zero time")
	}
	if counts != [3]int64{100, -50, 0} || rates != [3]float64{10, -5, 0} {
		t.Errorf("Unexpected counts %v rates %v", counts, rates)
	}

	now := time.Now()
	e.HandleFrame(EncodeEncoder(0x183, 1, 0), now)
	if _, _, oldest := e.Snapshot(); oldest.IsZero() || oldest.After(now) {
		t.Errorf("Expected a report time once all wheels reported, got %v", oldest)
	}

	e.Reset()
	e.HandleFrame(EncodeEncoder(0x181, 130, 10), now)
	counts, _, _ = e.Snapshot()
	if counts != [3]int64{30, 0, 0} {
		t.Errorf("Counts after reset: %v", counts)
	}
}

func TestEncodersSurviveRollover(t *testing.T) {
	e := NewEncoders(DefaultEncoderIDs, golog.NewTestLogger(t))
	e.HandleFrame(EncodeEncoder(0x181, math.MaxInt32-5, 0), time.Now())
	e.Reset()
	e.HandleFrame(EncodeEncoder(0x181, math.MinInt32+4, 0), time.Now())
	counts, _, _ := e.Snapshot()
	if counts[0] != 10 {
		t.Fatalf("Expected 10 counts across the rollover, got %d", counts[0])
	}
}
