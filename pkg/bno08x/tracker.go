package bno08x

import (
	"time"

	"github.com/tigerbot-team/kiwibot/go-controller/pkg/headingholder/angle"
)

// Tracker turns the wrapped yaw in successive reports into a cumulative
// heading and a yaw rate.  Not safe for concurrent use.
type Tracker struct {
	started   bool
	lastYaw   angle.PlusMinus180
	lastTime  time.Time
	lastIndex uint8

	cumulative float64
	offset     float64
	rate       float64
}

// Update folds in a report.  A repeat of the previous report (same index
// and time) is ignored.
func (t *Tracker) Update(r IMUReport) (angleDeg, rateDegPerS float64) {
	yaw := angle.FromFloat(r.YawDegrees())
	if !t.started {
		t.started = true
		t.lastYaw = yaw
		t.lastTime = r.Time
		t.lastIndex = r.Index
		return t.Current()
	}
	if r.Index == t.lastIndex && r.Time.Equal(t.lastTime) {
		return t.Current()
	}

	// Reports arrive at 100Hz so the shortest way round is always right.
	delta := yaw.Sub(t.lastYaw).Float()
	t.cumulative += delta
	if dt := r.Time.Sub(t.lastTime).Seconds(); dt > 0 {
		t.rate = delta / dt
	}
	t.lastYaw = yaw
	t.lastTime = r.Time
	t.lastIndex = r.Index
	return t.Current()
}

func (t *Tracker) Current() (angleDeg, rateDegPerS float64) {
	return t.cumulative - t.offset, t.rate
}

// Reset makes the current heading the new zero.
func (t *Tracker) Reset() {
	t.offset = t.cumulative
}
