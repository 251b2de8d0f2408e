// Package bno08x reads the BNO08x's UART-RVC report stream.
package bno08x

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const DefaultDevice = "/dev/ttyAMA0"

const ReportFrequency = 100
const ReportInterval = time.Second / ReportFrequency

const PacketLen = 19

var (
	ErrBadHeader   = errors.New("packet doesn't start with sync bytes")
	ErrBadChecksum = errors.New("bad packet checksum")
	ErrShortPacket = errors.New("short packet")
	ErrNoReport    = errors.New("no report from BNO08x")
)

var syncBytes = []byte{0xaa, 0xaa}

type IMUReport struct {
	Time   time.Time
	Index  uint8
	Yaw    int16
	Pitch  int16
	Roll   int16
	XAccel int16
	YAccel int16
	ZAccel int16
}

func (i IMUReport) String() string {
	return fmt.Sprintf("[%02x] Y:%7.2f P:%7.2f R:%7.2f X:%7.2f Y:%7.2f Z:%7.2f",
		i.Index, float64(i.Yaw)/100.0, float64(i.Pitch)/100.0, float64(i.Roll)/100.0,
		float64(i.XAccel)/100.0, float64(i.YAccel)/100.0, float64(i.ZAccel)/100.0)
}

// YawDegrees is in (-180, 180], anticlockwise-positive.
func (i IMUReport) YawDegrees() float64 {
	return float64(i.Yaw) / 100.0
}

// ParsePacket decodes one RVC packet: two sync bytes, index, six
// little-endian int16s, three reserved bytes and a checksum over everything
// between the sync bytes and itself.  Time is left zero.
func ParsePacket(buf []byte) (IMUReport, error) {
	var report IMUReport
	if len(buf) < PacketLen {
		return report, ErrShortPacket
	}
	if !bytes.Equal(buf[:2], syncBytes) {
		return report, ErrBadHeader
	}
	var checksum uint8
	for _, b := range buf[2 : PacketLen-1] {
		checksum += b
	}
	if buf[PacketLen-1] != checksum {
		return report, errors.Wrapf(ErrBadChecksum, "%x != %x", buf[PacketLen-1], checksum)
	}
	report.Index = buf[2]
	report.Yaw = int16(binary.LittleEndian.Uint16(buf[3:5]))
	report.Pitch = int16(binary.LittleEndian.Uint16(buf[5:7]))
	report.Roll = int16(binary.LittleEndian.Uint16(buf[7:9]))
	report.XAccel = int16(binary.LittleEndian.Uint16(buf[9:11]))
	report.YAccel = int16(binary.LittleEndian.Uint16(buf[11:13]))
	report.ZAccel = int16(binary.LittleEndian.Uint16(buf[13:15]))
	return report, nil
}

type Interface interface {
	CurrentReport() IMUReport
	WaitForReportAfter(t time.Time, timeout time.Duration) (IMUReport, error)
}

type BNO08X struct {
	device string
	logger golog.Logger

	lock       sync.Mutex
	cond       *sync.Cond
	lastReport IMUReport
}

var _ Interface = (*BNO08X)(nil)

func New(device string, logger golog.Logger) *BNO08X {
	if device == "" {
		device = DefaultDevice
	}
	b := &BNO08X{
		device: device,
		logger: logger,
	}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *BNO08X) CurrentReport() IMUReport {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastReport
}

func (b *BNO08X) WaitForReportAfter(t time.Time, timeout time.Duration) (IMUReport, error) {
	deadline := time.Now().Add(timeout)
	// Make sure we wake to notice the timeout even if the serial loop has
	// stalled.
	timer := time.AfterFunc(timeout, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.cond.Broadcast()
	})
	defer timer.Stop()

	b.lock.Lock()
	defer b.lock.Unlock()
	for b.lastReport.Time.Before(t) {
		if !time.Now().Before(deadline) {
			return b.lastReport, errors.Wrapf(ErrNoReport, "waited %v", timeout)
		}
		b.cond.Wait()
	}
	return b.lastReport, nil
}

// LoopReadingReports opens the serial port and reads reports until ctx is
// cancelled, reopening the port after failures.
func (b *BNO08X) LoopReadingReports(ctx context.Context) {
	defer b.cond.Broadcast()
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warnw("BNO08X loop stopped; will retry", "error", err)
		time.Sleep(100 * time.Millisecond)
		b.cond.Broadcast()
	}
}

func (b *BNO08X) openAndLoop(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: 115200,
	}
	s, err := serial.Open(b.device, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", b.device)
	}
	defer s.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		// Unblock the read when we're cancelled.
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()
	return b.readReports(ctx, s)
}

func (b *BNO08X) readReports(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	buf := make([]byte, PacketLen)
	for {
		if err := resync(ctx, br); err != nil {
			return err
		}
		b.logger.Debugw("BNO08X in sync with packet stream")
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := io.ReadFull(br, buf); err != nil {
				return errors.Wrap(err, "failed to read from serial")
			}
			report, err := ParsePacket(buf)
			if err != nil {
				b.logger.Debugw("BNO08X lost sync", "error", err)
				break
			}
			report.Time = time.Now()
			b.setReport(report)
		}
	}
}

// resync discards bytes until the next pair of sync bytes.
func resync(ctx context.Context, br *bufio.Reader) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf, err := br.Peek(2)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		if bytes.Equal(buf, syncBytes) {
			return nil
		}
		if _, err := br.Discard(1); err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
	}
}

func (b *BNO08X) setReport(report IMUReport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.lastReport = report
	b.cond.Broadcast()
}
