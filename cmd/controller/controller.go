package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/joystick"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/pausemode"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/rcmode"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/testmode"
)

type Mode interface {
	Name() string
	StartupSound() string
	Start(ctx context.Context)
	Stop()
}

type JoystickUser interface {
	OnJoystickEvent(event *joystick.Event)
}

func main() {
	logger := golog.NewDevelopmentLogger("kiwi")
	fmt.Println("---- Kiwi ----")
	logger.Infow("Starting", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())

	// Hook Ctrl-C etc.
	registerSignalHandlers(cancel, logger)

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath, logger.Named("config"))
	if err != nil {
		logger.Errorw("Bad config file; running with defaults", "path", cfgPath, "error", err)
	}
	if err := cfg.WriteInUse(cfgPath); err != nil {
		logger.Warnw("Failed to record in-use config", "error", err)
	}

	// Initialise the hardware.
	hw, err := hardware.New(cfg, logger.Named("hw"))
	if err != nil {
		logger.Fatalw("Failed to initialise hardware", "error", err)
	}
	defer func() {
		logger.Infow("Zeroing motors for shut down")
		hw.Shutdown()
		time.Sleep(100 * time.Millisecond)
	}()
	if err := hw.Start(ctx); err != nil {
		logger.Errorw("Failed to start hardware", "error", err)
		return
	}

	ctrl, err := chassis.New(cfg.Chassis, hw.HeadingSensor(), logger.Named("chassis"))
	if err != nil {
		logger.Errorw("Failed to create chassis controller", "error", err)
		return
	}

	// Wait for the joystick; a background goroutine reads from it.
	joystickEvents, err := joystick.WaitAndOpen(ctx,
		joystick.DeviceFromEnv(cfg.Joystick.Device), logger.Named("joystick"))
	if err != nil {
		logger.Infow("Gave up waiting for joystick", "error", err)
		return
	}

	hw.PlaySound(cfg.Sounds.Startup)

	allModes := []Mode{
		rcmode.New("Teleop", "/sounds/teleop.wav", hw, ctrl, cfg,
			rcmode.Options{HeadingHold: true}, logger.Named("teleop")),
		rcmode.New("Plain drive", "/sounds/plaindrive.wav", hw, ctrl, cfg,
			rcmode.Options{HeadingHold: false}, logger.Named("plain")),
		testmode.New(hw, ctrl, logger.Named("testmode")),
		pausemode.New(hw, ctrl, logger.Named("pause")),
	}
	var activeMode Mode = allModes[0]
	fmt.Printf("----- %s -----\n", activeMode.Name())
	activeMode.Start(ctx)
	activeModeIdx := 0

	switchMode := func(delta int) {
		logger.Infow("Mode switch", "delta", delta)
		activeMode.Stop()
		hw.StopMotors()
		activeModeIdx += delta
		activeModeIdx = (activeModeIdx + len(allModes)) % len(allModes)
		activeMode = allModes[activeModeIdx]
		fmt.Printf("----- %s -----\n", activeMode.Name())

		hw.PlaySound(activeMode.StartupSound())

		activeMode.Start(ctx)
		logger.Infow("Mode switch done", "mode", activeMode.Name())
	}

	logger.Infow("Waiting for events...")
	watchdog := time.NewTicker(5 * time.Second)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infow("Context done, stopping active mode and shutting down")
			activeMode.Stop()
			return
		case event, ok := <-joystickEvents:
			if !ok {
				logger.Errorw("Joystick events channel closed!")
				activeMode.Stop()
				cancel()
				return
			}
			// Intercept Options/Share to implement mode switching.
			if event.Type == joystick.EventTypeButton && event.Value == 1 && !event.Init {
				if event.Number == joystick.ButtonOptions {
					switchMode(1)
					continue
				} else if event.Number == joystick.ButtonShare {
					switchMode(-1)
					continue
				}
			}
			// Pass other joystick events through if this mode requires them.
			if ju, ok := activeMode.(JoystickUser); ok {
				done := make(chan struct{})
				go func() {
					defer close(done)
					ju.OnJoystickEvent(event)
				}()
				timeout := time.NewTimer(1 * time.Second)
				select {
				case <-done:
					timeout.Stop()
				case <-timeout.C:
					// Modes are supposed to just queue the event to their
					// own goroutine.  If they block this long, they've
					// probably deadlocked.
					hw.StopMotors()
					panic("Deadlock? Active mode blocked OnJoystickEvent for >1s")
				}
			}
		case <-watchdog.C:
			t := ctrl.Telemetry()
			logger.Debugw("Main loop still running", "mode", activeMode.Name(), "chassis", t.Mode,
				"heading", t.Heading, "sensorFailures", t.SensorFailures)
		}
	}
}

func registerSignalHandlers(cancelFunc context.CancelFunc, logger golog.Logger) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		logger.Infow("Signal", "signal", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
