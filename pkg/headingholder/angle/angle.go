package angle

import "math"

// PlusMinus180 is an angle in degrees, stored as a value in range (180, 180].
// All operations clamp their output into range.
type PlusMinus180 struct {
	float64
}

func (a PlusMinus180) Add(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 + b.float64)
}

func (a PlusMinus180) Sub(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 - b.float64)
}

func (a PlusMinus180) AddFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 + f)
}

func (a PlusMinus180) SubFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 - f)
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

// FromFloat converts a float of any magnitude to a PlusMinus180 by calculating
// f mod 360 and shifting into range.
func FromFloat(f float64) PlusMinus180 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return PlusMinus180{}
	}
	d := math.Mod(f, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return PlusMinus180{d}
}

// Normalize360 maps an angle of any magnitude into [0, 360) with a single
// modulo.  Non-finite input maps to 0.
func Normalize360(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	d := math.Mod(f, 360)
	if d < 0 {
		d += 360
	}
	// -tiny + 360 rounds to 360 in float64.
	if d >= 360 {
		d = 0
	}
	return d
}

func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func Degrees(radians float64) float64 {
	return radians * 180 / math.Pi
}
