package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/joystick"
)

// Prints the raw joystick events and the stick sample the chassis
// controller would see for each one.
func main() {
	logger := golog.NewDevelopmentLogger("joytests")

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())

	// Hook Ctrl-C etc.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		cancel()
	}()

	cfg, err := config.Load(config.Path(), logger)
	if err != nil {
		logger.Warnw("Bad config file; using defaults", "error", err)
	}

	events, err := joystick.WaitAndOpen(ctx, joystick.DeviceFromEnv(cfg.Joystick.Device), logger)
	if err != nil {
		return
	}
	var state joystick.State
	for je := range events {
		state.Apply(je)
		fmt.Printf("%v -> %v\n", je, state.Stick(cfg.Joystick.Mapping))
	}
}
