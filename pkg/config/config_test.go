package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/chassis"
	"github.com/tigerbot-team/kiwibot/go-controller/pkg/kinematics"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), golog.NewTestLogger(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Chassis.HeadingHoldP != chassis.DefaultConfig().HeadingHoldP {
		t.Fatalf("Expected defaults, got %+v", f.Chassis)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	f := Default()
	err := Parse([]byte(`
chassis:
  heading_hold_p: -0.4
  wheel_layout: geometric
  wheel_angles_deg: [0, 120, 240]
  rotation_centre: {x: 0.1, y: 0}
heading:
  source: bno08x
  device: /dev/ttyS0
motors:
  driver: can
  device: vcan0
  can_ids: [0x201, 0x202, 0x203]
`), &f)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Chassis.HeadingHoldP != -0.4 || f.Chassis.WheelLayout != kinematics.LayoutGeometric {
		t.Errorf("Chassis overrides not applied: %+v", f.Chassis)
	}
	if len(f.Chassis.WheelAnglesDeg) != 3 || f.Chassis.WheelAnglesDeg[1] != 120 {
		t.Errorf("Wheel angles not applied: %v", f.Chassis.WheelAnglesDeg)
	}
	if f.Chassis.RotationCentre.X != 0.1 {
		t.Errorf("Rotation centre not applied: %v", f.Chassis.RotationCentre)
	}
	if f.Chassis.TranslationDeadzone != 0.1 {
		t.Errorf("Unset values should keep their defaults: %v", f.Chassis.TranslationDeadzone)
	}
	if f.Heading.Source != SourceBNO08x || f.Motors.CANIDs[2] != 0x203 {
		t.Errorf("Device overrides not applied: %+v %+v", f.Heading, f.Motors)
	}
}

func TestParseRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"unknown key":       "chassis:\n  heading_hold_q: 1\n",
		"bad deadzone":      "chassis:\n  translation_deadzone: 1.5\n",
		"two wheels":        "chassis:\n  wheel_angles_deg: [0, 90]\n",
		"same angle":        "chassis:\n  wheel_angles_deg: [0, 360, 120]\n",
		"bad layout":        "chassis:\n  wheel_layout: mecanum\n",
		"bad source":        "heading:\n  source: compass\n",
		"bad driver":        "motors:\n  driver: stepper\n",
		"missing channel":   "motors:\n  channels: [0, 1]\n",
		"bad stale timeout": "heading:\n  stale_after_ms: 0\n",
		"not yaml":          "chassis: [",
	} {
		f := Default()
		err := Parse([]byte(raw), &f)
		if !errors.Is(err, chassis.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadBadFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiwi.yaml")
	if err := ioutil.WriteFile(path, []byte("chassis:\n  control_period_s: 0\n"), 0666); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path, golog.NewTestLogger(t))
	if err == nil {
		t.Fatalf("Expected error")
	}
	if f.Chassis.ControlPeriodS != chassis.DefaultConfig().ControlPeriodS {
		t.Fatalf("Expected defaults alongside the error")
	}
}

func TestWriteInUseRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiwi.yaml")
	f := Default()
	f.Chassis.Headless = false
	if err := f.WriteInUse(path); err != nil {
		t.Fatalf("WriteInUse failed: %v", err)
	}
	out := filepath.Join(dir, "kiwi-in-use.yaml")
	if InUsePath(path) != out {
		t.Fatalf("Unexpected in-use path %s", InUsePath(path))
	}
	f2, err := Load(out, golog.NewTestLogger(t))
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if f2.Chassis.Headless {
		t.Fatalf("Round trip lost headless=false")
	}
}

func TestPathFromEnv(t *testing.T) {
	old, had := os.LookupEnv("KIWI_CONFIG")
	defer func() {
		if had {
			os.Setenv("KIWI_CONFIG", old)
		} else {
			os.Unsetenv("KIWI_CONFIG")
		}
	}()
	os.Unsetenv("KIWI_CONFIG")
	if Path() != DefaultPath {
		t.Fatalf("Expected default path, got %s", Path())
	}
	os.Setenv("KIWI_CONFIG", "/tmp/x.yaml")
	if Path() != "/tmp/x.yaml" {
		t.Fatalf("Expected env path, got %s", Path())
	}
}

func TestEncoderIDs(t *testing.T) {
	f := Default()
	if err := Parse([]byte("motors:\n  encoder_ids: []\n"), &f); err != nil {
		t.Fatalf("Empty encoder_ids should be allowed: %v", err)
	}
	if len(f.Motors.EncoderIDs) != 0 {
		t.Fatalf("Expected encoders disabled, got %v", f.Motors.EncoderIDs)
	}
	f = Default()
	if err := Parse([]byte("motors:\n  encoder_ids: [0x181]\n"), &f); !errors.Is(err, chassis.ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
}
