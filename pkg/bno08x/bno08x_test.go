package bno08x

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

func makePacket(index uint8, yaw, pitch, roll int16) []byte {
	buf := make([]byte, PacketLen)
	buf[0], buf[1] = 0xaa, 0xaa
	buf[2] = index
	binary.LittleEndian.PutUint16(buf[3:5], uint16(yaw))
	binary.LittleEndian.PutUint16(buf[5:7], uint16(pitch))
	binary.LittleEndian.PutUint16(buf[7:9], uint16(roll))
	var sum uint8
	for _, b := range buf[2 : PacketLen-1] {
		sum += b
	}
	buf[PacketLen-1] = sum
	return buf
}

func TestParsePacket(t *testing.T) {
	r, err := ParsePacket(makePacket(7, -9000, 150, -25))
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if r.Index != 7 || r.Yaw != -9000 || r.Pitch != 150 || r.Roll != -25 {
		t.Fatalf("Unexpected report %v", r)
	}
	if r.YawDegrees() != -90 {
		t.Fatalf("Expected -90 degrees, got %v", r.YawDegrees())
	}
}

func TestParsePacketRejectsBadPackets(t *testing.T) {
	if _, err := ParsePacket(makePacket(1, 0, 0, 0)[:10]); err != ErrShortPacket {
		t.Errorf("Expected ErrShortPacket, got %v", err)
	}
	p := makePacket(1, 0, 0, 0)
	p[0] = 0
	if _, err := ParsePacket(p); err != ErrBadHeader {
		t.Errorf("Expected ErrBadHeader, got %v", err)
	}
	p = makePacket(1, 100, 0, 0)
	p[4]++
	if _, err := ParsePacket(p); errors.Cause(err) != ErrBadChecksum {
		t.Errorf("Expected ErrBadChecksum, got %v", err)
	}
}

func TestReadReportsResyncs(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x01, 0xaa, 0x02})
	stream.Write(makePacket(1, 100, 0, 0))
	bad := makePacket(2, 200, 0, 0)
	bad[PacketLen-1]++
	stream.Write(bad)
	stream.Write(makePacket(3, 300, 0, 0))

	b := New("", golog.NewTestLogger(t))
	err := b.readReports(context.Background(), &stream)
	if err == nil {
		t.Fatalf("Expected EOF error at end of stream")
	}
	r := b.CurrentReport()
	if r.Index != 3 || r.Yaw != 300 || r.Time.IsZero() {
		t.Fatalf("Expected the last good report, got %v", r)
	}
}

func TestWaitForReportTimesOut(t *testing.T) {
	b := New("", golog.NewTestLogger(t))
	_, err := b.WaitForReportAfter(time.Now(), 20*time.Millisecond)
	if errors.Cause(err) != ErrNoReport {
		t.Fatalf("Expected ErrNoReport, got %v", err)
	}
}

func TestTrackerUnwraps(t *testing.T) {
	var tr Tracker
	start := time.Now()
	yaws := []float64{170, 179, -175, -160, 170, 100}
	var got float64
	for i, y := range yaws {
		got, _ = tr.Update(IMUReport{
			Index: uint8(i),
			Time:  start.Add(time.Duration(i) * ReportInterval),
			Yaw:   int16(y * 100),
		})
	}
	// 170 -> 179 -> 185 -> 200 -> 170 (the short way back) -> 100.
	if math.Abs(got-(-70)) > 1e-9 {
		t.Fatalf("Expected cumulative -70, got %v", got)
	}
	_, rate := tr.Current()
	if math.Abs(rate-(-7000)) > 1e-6 {
		t.Fatalf("Expected -7000dps, got %v", rate)
	}
}

func TestTrackerIgnoresRepeatsAndResets(t *testing.T) {
	var tr Tracker
	now := time.Now()
	tr.Update(IMUReport{Index: 1, Time: now, Yaw: 0})
	r := IMUReport{Index: 2, Time: now.Add(ReportInterval), Yaw: 1000}
	tr.Update(r)
	tr.Update(r)
	if a, _ := tr.Current(); math.Abs(a-10) > 1e-9 {
		t.Fatalf("Repeated report counted twice: %v", a)
	}
	tr.Reset()
	if a, _ := tr.Current(); a != 0 {
		t.Fatalf("Reset should zero, got %v", a)
	}
	a, _ := tr.Update(IMUReport{Index: 3, Time: now.Add(2 * ReportInterval), Yaw: 1500})
	if math.Abs(a-5) > 1e-9 {
		t.Fatalf("Expected 5 after reset, got %v", a)
	}
}
