package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/config"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/imu"
)

func main() {
	logger := golog.NewDevelopmentLogger("gyrocal")
	fmt.Println("---- Gyro calibration ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	cfg, err := config.Load(config.Path(), logger)
	if err != nil {
		logger.Warnw("Bad config file; using defaults", "error", err)
	}

	var dev *imu.IMU
	switch cfg.Heading.Source {
	case config.SourceGyroI2C:
		dev, err = imu.NewI2C(cfg.Heading.Device, logger)
	case config.SourceGyroSPI:
		dev, err = imu.NewSPI(cfg.Heading.Device, logger)
	default:
		logger.Fatalw("Configured heading source isn't a gyro", "source", cfg.Heading.Source)
	}
	if err != nil {
		logger.Fatalw("Failed to open gyro", "error", err)
	}
	if err := dev.Configure(); err != nil {
		logger.Fatalw("Failed to configure gyro", "error", err)
	}
	if err := dev.Calibrate(); err != nil {
		logger.Fatalw("Calibration failed", "error", err)
	}

	// Watch the drift for a while; it should stay near zero with the robot
	// at rest.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	heading := imu.NewHeading(dev, logger)
	go heading.Loop(ctx, nil)
	for ctx.Err() == nil {
		time.Sleep(500 * time.Millisecond)
		a, r, _, err := heading.Current()
		fmt.Printf("Heading %7.2f deg  rate %7.2f deg/s  err %v\n", a, r, err)
	}
}
