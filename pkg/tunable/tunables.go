// Package tunable holds gains that can be nudged from the D-pad while the
// robot is running.  Values are read by whoever owns them, typically at the
// start of the next mode entry.
package tunable

import (
	"math"
	"sync/atomic"

	"github.com/edaniels/golog"
)

type Tunable struct {
	Name string
	// Step is the amount one D-pad click adds or removes.
	Step float64

	bits   uint64
	logger golog.Logger
}

func (t *Tunable) Add(steps int) float64 {
	for {
		old := atomic.LoadUint64(&t.bits)
		newV := math.Float64frombits(old) + float64(steps)*t.Step
		if atomic.CompareAndSwapUint64(&t.bits, old, math.Float64bits(newV)) {
			t.logger.Infow("Tunable adjusted", "name", t.Name, "value", newV)
			return newV
		}
	}
}

func (t *Tunable) Set(v float64) {
	atomic.StoreUint64(&t.bits, math.Float64bits(v))
}

func (t *Tunable) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&t.bits))
}

type Tunables struct {
	All      []*Tunable
	selected int
	logger   golog.Logger
}

func New(logger golog.Logger) *Tunables {
	if logger == nil {
		logger = golog.Global()
	}
	return &Tunables{logger: logger}
}

func (t *Tunables) Create(name string, value, step float64) *Tunable {
	newTunable := &Tunable{
		Name:   name,
		Step:   step,
		logger: t.logger,
	}
	newTunable.Set(value)
	t.All = append(t.All, newTunable)
	return newTunable
}

func (t *Tunables) SelectNext() {
	if len(t.All) == 0 {
		return
	}
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	t.logSelected()
}

func (t *Tunables) SelectPrev() {
	if len(t.All) == 0 {
		return
	}
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	t.logSelected()
}

// Current returns the selected tunable, or nil if there are none.
func (t *Tunables) Current() *Tunable {
	if len(t.All) == 0 {
		return nil
	}
	return t.All[t.selected]
}

func (t *Tunables) logSelected() {
	c := t.Current()
	t.logger.Infow("Tunable selected", "name", c.Name, "value", c.Get())
}
