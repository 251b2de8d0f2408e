// Package kinematics maps a chassis-frame motion intent onto the three wheels
// of a kiwi drive.
package kinematics

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/headingholder/angle"
)

const NumWheels = 3

// Intent is the chassis-frame motion request.  Each component is nominally in
// [-1, 1].
type Intent struct {
	X        float64
	Y        float64
	Rotation float64
}

func (i Intent) String() string {
	return fmt.Sprintf("x=%.3f y=%.3f r=%.3f", i.X, i.Y, i.Rotation)
}

// WheelCommand holds one duty cycle per wheel, wheel 1 first.
type WheelCommand [NumWheels]float64

// Peak returns the largest absolute wheel command.
func (w WheelCommand) Peak() float64 {
	var m float64
	for _, s := range w {
		m = math.Max(m, math.Abs(s))
	}
	return m
}

func (w WheelCommand) IsZero() bool {
	return w == WheelCommand{}
}

func (w WheelCommand) String() string {
	return fmt.Sprintf("[%.3f %.3f %.3f]", w[0], w[1], w[2])
}

type LayoutKind string

const (
	// LayoutSimple adds the rotation term to every wheel unchanged.
	LayoutSimple LayoutKind = "simple"
	// LayoutGeometric weights each wheel's rotation term by its lever arm
	// about a (possibly offset) rotation centre.  Experimental.
	LayoutGeometric LayoutKind = "geometric"
)

// DefaultWheelAngles are the mounting angles, in degrees, of wheels 1..3
// measured anticlockwise from the chassis X axis.
var DefaultWheelAngles = [NumWheels]float64{90, -30, 210}

var zAxis = r3.Vec{Z: 1}

// Model is an inverse-kinematics strategy.
type Model interface {
	Inverse(Intent) WheelCommand
}

// Wheel is a wheel's mounting point on the unit circle and the direction it
// drives the chassis when spun forwards (the anticlockwise tangent).
type Wheel struct {
	Position  r3.Vec
	Direction r3.Vec
}

func WheelsAt(anglesDeg [NumWheels]float64) [NumWheels]Wheel {
	var wheels [NumWheels]Wheel
	for i, a := range anglesDeg {
		sin, cos := math.Sincos(angle.Radians(a))
		p := r3.Vec{X: cos, Y: sin}
		wheels[i] = Wheel{
			Position:  p,
			Direction: r3.Cross(zAxis, p),
		}
	}
	return wheels
}

func NewModel(kind LayoutKind, anglesDeg [NumWheels]float64, centre r3.Vec) (Model, error) {
	for i := 0; i < NumWheels; i++ {
		for j := i + 1; j < NumWheels; j++ {
			if angle.FromFloat(anglesDeg[i]-anglesDeg[j]).Float() == 0 {
				return nil, errors.Errorf("wheels %d and %d share mounting angle %v", i+1, j+1, anglesDeg[i])
			}
		}
	}
	wheels := WheelsAt(anglesDeg)
	switch kind {
	case LayoutSimple, "":
		return &Simple{Wheels: wheels}, nil
	case LayoutGeometric:
		return &Geometric{Wheels: wheels, Centre: r3.Vec{X: centre.X, Y: centre.Y}}, nil
	default:
		return nil, errors.Errorf("unknown wheel layout %q", kind)
	}
}

// Simple: each wheel gets its share of the translation plus the full rotation
// term.
type Simple struct {
	Wheels [NumWheels]Wheel
}

func (m *Simple) Inverse(in Intent) WheelCommand {
	v := r3.Vec{X: in.X, Y: in.Y}
	var out WheelCommand
	for i, w := range m.Wheels {
		out[i] = r3.Dot(w.Direction, v) + in.Rotation
	}
	return out
}

// Geometric scales each wheel's rotation term by the tangential component of
// its lever arm about Centre, in units of the chassis radius.  With Centre
// at the origin it reduces to Simple.
type Geometric struct {
	Wheels [NumWheels]Wheel
	Centre r3.Vec
}

func (m *Geometric) Inverse(in Intent) WheelCommand {
	v := r3.Vec{X: in.X, Y: in.Y}
	var out WheelCommand
	for i, w := range m.Wheels {
		arm := r3.Sub(w.Position, m.Centre)
		tangential := r3.Dot(r3.Cross(zAxis, arm), w.Direction)
		out[i] = r3.Dot(w.Direction, v) + in.Rotation*tangential
	}
	return out
}

// Normalize scales all three commands down together if any exceeds the
// actuator's unit range.  Commands already within range are returned as-is.
// A non-finite command has no meaningful direction and becomes a stop.
func Normalize(w WheelCommand) WheelCommand {
	peak := math.Max(1, w.Peak())
	if math.IsNaN(peak) || math.IsInf(peak, 0) {
		return WheelCommand{}
	}
	if peak == 1 {
		return w
	}
	for i := range w {
		w[i] /= peak
	}
	return w
}
