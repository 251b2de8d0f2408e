package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

const usage = `Commands:
  e          enable the chassis
  s          disable the chassis and stop
  d X Y R    drive with chassis-relative intent (each in [-1, 1])
  q          quit`

// Drives the wheels from typed commands, bypassing the joystick and heading
// hold.  Useful for checking wheel wiring on the bench.
func main() {
	logger := golog.NewDevelopmentLogger("directctl")

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hook Ctrl-C etc.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		cancel()
		time.Sleep(500 * time.Millisecond)
		os.Exit(0)
	}()

	cfg, err := config.Load(config.Path(), logger)
	if err != nil {
		logger.Warnw("Bad config file; using defaults", "error", err)
	}
	hw, err := hardware.New(cfg, logger.Named("hw"))
	if err != nil {
		logger.Fatalw("Failed to initialise hardware", "error", err)
	}
	defer hw.Shutdown()
	if err := hw.Start(ctx); err != nil {
		logger.Fatalw("Failed to start hardware", "error", err)
	}
	ctrl, err := chassis.New(cfg.Chassis, hw.HeadingSensor(), logger.Named("chassis"))
	if err != nil {
		logger.Fatalw("Failed to create chassis controller", "error", err)
	}

	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for ctx.Err() == nil && scanner.Scan() {
		if !runCommand(strings.TrimSpace(scanner.Text()), ctrl, hw) {
			break
		}
	}
}

func runCommand(line string, ctrl *chassis.Controller, hw hardware.Interface) bool {
	if line == "" {
		return true
	}
	switch line[0] {
	case 'q':
		hw.StopMotors()
		return false
	case 'e':
		if err := ctrl.SetEnabled(true); err != nil {
			fmt.Printf("Enable failed: %v\n", err)
		}
	case 's':
		if err := ctrl.SetEnabled(false); err != nil {
			fmt.Printf("Disable failed: %v\n", err)
		}
		hw.StopMotors()
	case 'd':
		var in kinematics.Intent
		if _, err := fmt.Sscanf(line, "d %f %f %f", &in.X, &in.Y, &in.Rotation); err != nil {
			fmt.Printf("Bad drive command: %v\n", err)
			return true
		}
		cmd := ctrl.Drive(in)
		fmt.Printf("%v -> %v (enabled=%v)\n", in, cmd, ctrl.IsEnabled())
		hw.SetWheelSpeeds(cmd)
	default:
		fmt.Println(usage)
	}
	return true
}
