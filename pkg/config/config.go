// Package config loads the robot's YAML configuration file.
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/joystick"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/sound"
)

const DefaultPath = "/cfg/kiwi.yaml"

// Heading sensor sources.
const (
	SourceGyroI2C = "gyro-i2c"
	SourceGyroSPI = "gyro-spi"
	SourceBNO08x  = "bno08x"
	SourceDummy   = "dummy"
)

// Motor drivers.
const (
	DriverPCA9685 = "pca9685"
	DriverCAN     = "can"
	DriverDummy   = "dummy"
)

type File struct {
	Chassis  chassis.Config `yaml:"chassis"`
	Joystick JoystickConfig `yaml:"joystick"`
	Heading  HeadingConfig  `yaml:"heading"`
	Motors   MotorConfig    `yaml:"motors"`
	Sounds   SoundConfig    `yaml:"sounds"`
	Tuning   TuningConfig   `yaml:"tuning"`
}

type JoystickConfig struct {
	Device  string           `yaml:"device"`
	Mapping joystick.Mapping `yaml:"mapping"`
}

type HeadingConfig struct {
	Source string `yaml:"source"`
	// Device is the I2C bus, SPI port or serial device, depending on source.
	Device string `yaml:"device"`
	// Invert flips the sensor's sign, for sensors mounted upside down.
	Invert bool `yaml:"invert"`
	// StaleAfterMS is how old a reading can get before the sensor counts as
	// unavailable.
	StaleAfterMS int `yaml:"stale_after_ms"`
}

type MotorConfig struct {
	Driver string `yaml:"driver"`
	// Device is the I2C bus for the PCA9685 or the SocketCAN interface.
	Device string `yaml:"device"`
	// Channels are the PCA9685 ports of wheels 1..3.
	Channels []int `yaml:"channels,flow"`
	// CANIDs are the frame IDs of wheels 1..3.
	CANIDs []uint32 `yaml:"can_ids,flow"`
	// EncoderIDs are the status frame IDs the CAN controllers report wheel
	// encoders on.  Empty means no encoder feedback.
	EncoderIDs []uint32 `yaml:"encoder_ids,flow"`
	// Inverted flips individual wheels that are wired backwards.
	Inverted []bool `yaml:"inverted,flow"`
}

type SoundConfig struct {
	Startup  string `yaml:"startup"`
	Enabled  string `yaml:"enabled"`
	Disabled string `yaml:"disabled"`
	Fault    string `yaml:"fault"`
}

// TuningConfig sets the D-pad step sizes for the live-tunable gains.
type TuningConfig struct {
	PStep float64 `yaml:"p_step"`
	IStep float64 `yaml:"i_step"`
}

func Default() File {
	return File{
		Chassis: chassis.DefaultConfig(),
		Joystick: JoystickConfig{
			Device:  joystick.DefaultDevice,
			Mapping: joystick.DefaultMapping(),
		},
		Heading: HeadingConfig{
			Source:       SourceGyroSPI,
			Device:       "/dev/spidev0.0",
			StaleAfterMS: 100,
		},
		Motors: MotorConfig{
			Driver:     DriverPCA9685,
			Device:     "/dev/i2c-1",
			Channels:   []int{0, 1, 2},
			CANIDs:     []uint32{0x101, 0x102, 0x103},
			EncoderIDs: []uint32{0x181, 0x182, 0x183},
			Inverted:   []bool{false, false, false},
		},
		Sounds: SoundConfig{
			Startup:  sound.Startup,
			Enabled:  sound.Enabled,
			Disabled: sound.Disabled,
			Fault:    sound.Fault,
		},
		Tuning: TuningConfig{
			PStep: 0.05,
			IStep: 0.0000005,
		},
	}
}

// Path returns $KIWI_CONFIG or the default location.
func Path() string {
	if p := os.Getenv("KIWI_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults.  A missing file isn't an error: the
// robot runs on defaults.  A file that doesn't parse or validate is.
func Load(path string, logger golog.Logger) (File, error) {
	f := Default()
	raw, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Infow("No config file; using defaults", "path", path)
		return f, nil
	} else if err != nil {
		return f, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := Parse(raw, &f); err != nil {
		return Default(), errors.Wrapf(err, "config %s", path)
	}
	logger.Infow("Loaded config", "path", path)
	return f, nil
}

// Parse unmarshals raw over f and validates the result.  Unknown keys are
// rejected so that typos don't silently fall back to defaults.
func Parse(raw []byte, f *File) error {
	if err := yaml.UnmarshalStrict(raw, f); err != nil {
		return errors.Wrap(chassis.ErrInvalidConfig, err.Error())
	}
	return f.Validate()
}

func (f File) Validate() error {
	if err := f.Chassis.Validate(); err != nil {
		return err
	}
	switch f.Heading.Source {
	case SourceGyroI2C, SourceGyroSPI, SourceBNO08x, SourceDummy:
	default:
		return errors.Wrapf(chassis.ErrInvalidConfig, "unknown heading source %q", f.Heading.Source)
	}
	if f.Heading.StaleAfterMS <= 0 {
		return errors.Wrapf(chassis.ErrInvalidConfig, "heading stale_after_ms must be positive")
	}
	m := f.Motors
	switch m.Driver {
	case DriverPCA9685:
		if len(m.Channels) != kinematics.NumWheels {
			return errors.Wrapf(chassis.ErrInvalidConfig, "need %d motor channels, got %d", kinematics.NumWheels, len(m.Channels))
		}
	case DriverCAN:
		if len(m.CANIDs) != kinematics.NumWheels {
			return errors.Wrapf(chassis.ErrInvalidConfig, "need %d CAN IDs, got %d", kinematics.NumWheels, len(m.CANIDs))
		}
	case DriverDummy:
	default:
		return errors.Wrapf(chassis.ErrInvalidConfig, "unknown motor driver %q", m.Driver)
	}
	if len(m.EncoderIDs) != 0 && len(m.EncoderIDs) != kinematics.NumWheels {
		return errors.Wrapf(chassis.ErrInvalidConfig, "need %d encoder IDs, got %d", kinematics.NumWheels, len(m.EncoderIDs))
	}
	if len(m.Inverted) != 0 && len(m.Inverted) != kinematics.NumWheels {
		return errors.Wrapf(chassis.ErrInvalidConfig, "need %d inversion flags, got %d", kinematics.NumWheels, len(m.Inverted))
	}
	return nil
}

// InUsePath is where WriteInUse puts the effective config for path.
func InUsePath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-in-use" + ext
}

// WriteInUse writes the effective config next to the input so that it's
// easy to see what the robot actually ran with.
func (f File) WriteInUse(path string) error {
	raw, err := yaml.Marshal(&f)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	out := InUsePath(path)
	return errors.Wrapf(ioutil.WriteFile(out, raw, 0666), "failed to write %s", out)
}
