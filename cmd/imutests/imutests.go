package main

import (
	"context"
	"fmt"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/hardware"
)

// Prints the configured heading sensor's readings.  Motors are forced to the
// dummy driver so nothing moves.
func main() {
	logger := golog.NewDevelopmentLogger("imutests")
	cfg, err := config.Load(config.Path(), logger)
	if err != nil {
		logger.Warnw("Bad config file; using defaults", "error", err)
	}
	cfg.Motors.Driver = config.DriverDummy

	hw, err := hardware.New(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to initialise hardware", "error", err)
	}
	defer hw.Shutdown()
	if err := hw.Start(context.Background()); err != nil {
		logger.Fatalw("Failed to start hardware", "error", err)
	}

	sensor := hw.HeadingSensor()
	if err := sensor.Reset(); err != nil {
		logger.Warnw("Heading reset failed", "error", err)
	}
	for {
		sample, err := sensor.Read()
		if err != nil {
			fmt.Printf("Read failed: %v\n", err)
		} else {
			fmt.Printf("%v\n", sample)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
