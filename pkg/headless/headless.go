// Package headless converts field-relative stick readings into the chassis
// frame.
package headless

import (
	"math"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/headingholder/angle"
)

// Transform rotates a polar stick reading (direction in degrees, magnitude)
// by the chassis heading and returns chassis-frame Cartesian components.
// headingDeg may be any finite value; it is wrapped with a single modulo.
func Transform(directionDeg, magnitude, headingDeg float64) (x, y float64) {
	theta := angle.Radians(angle.Normalize360(directionDeg - headingDeg))
	sin, cos := math.Sincos(theta)
	return magnitude * cos, magnitude * sin
}

// Robot is Transform with the heading pinned to 0, i.e. robot-relative
// steering.
func Robot(directionDeg, magnitude float64) (x, y float64) {
	return Transform(directionDeg, magnitude, 0)
}
