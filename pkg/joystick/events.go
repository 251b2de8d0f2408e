package joystick

import (
	"context"
	"os"
	"time"

	"github.com/edaniels/golog"
)

const DefaultDevice = "/dev/input/js0"

// DeviceFromEnv returns $JOYSTICK_DEVICE, falling back to fallback and then to
// DefaultDevice.
func DeviceFromEnv(fallback string) string {
	if d := os.Getenv("JOYSTICK_DEVICE"); d != "" {
		return d
	}
	if fallback != "" {
		return fallback
	}
	return DefaultDevice
}

// WaitAndOpen blocks until the joystick can be opened (it's common for the
// controller to be paired after boot), then starts a goroutine feeding its
// events into the returned channel.  The channel is closed when reading
// fails or ctx is cancelled.
func WaitAndOpen(ctx context.Context, device string, logger golog.Logger) (<-chan *Event, error) {
	firstLog := true
	for {
		j, err := NewJoystick(device)
		if err == nil {
			logger.Infow("Opened joystick", "device", device)
			events := make(chan *Event, 1)
			go func() {
				err := LoopReadingEvents(ctx, j, events, logger)
				logger.Warnw("Joystick stopped", "error", err)
			}()
			return events, nil
		}
		if firstLog {
			logger.Infow("Waiting for joystick", "error", err)
			firstLog = false
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// LoopReadingEvents reads until error or cancellation, then closes both the
// device and the channel.
func LoopReadingEvents(ctx context.Context, j *Joystick, events chan<- *Event, logger golog.Logger) error {
	defer close(events)
	defer j.Close()
	for ctx.Err() == nil {
		event, err := j.ReadEvent()
		if err != nil {
			return err
		}
		logger.Debugw("Joystick event", "event", event)
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}
