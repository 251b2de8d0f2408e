// Package deadzone rejects stick and sensor noise around zero.
package deadzone

import "math"

const (
	DefaultTranslation = 0.1
	// Rotation noise upsets heading hold more than translation noise does.
	DefaultRotation = 2 * DefaultTranslation
)

// Filter returns value unchanged if its magnitude is strictly above
// threshold, otherwise 0.
func Filter(value, threshold float64) float64 {
	if math.Abs(value) > threshold {
		return value
	}
	return 0
}

type Thresholds struct {
	Translation float64 `yaml:"translation"`
	Rotation    float64 `yaml:"rotation"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Translation: DefaultTranslation,
		Rotation:    DefaultRotation,
	}
}

func (t Thresholds) FilterTranslation(v float64) float64 {
	return Filter(v, t.Translation)
}

func (t Thresholds) FilterRotation(v float64) float64 {
	return Filter(v, t.Rotation)
}
