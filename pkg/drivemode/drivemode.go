// Package drivemode tracks whether the chassis is allowed to drive, toggled
// by a momentary button.
package drivemode

import "fmt"

type Mode int

const (
	Disabled Mode = iota
	Enabled
)

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Enabled:
		return "enabled"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Toggle fires once per press of a momentary input, however long it's held.
type Toggle struct {
	held bool
}

// Update reports whether this tick is a rising edge.
func (t *Toggle) Update(pressed bool) bool {
	fired := pressed && !t.held
	t.held = pressed
	return fired
}

// Reset forgets the previous input, so a button that's already held fires
// on the next tick.
func (t *Toggle) Reset() {
	t.held = false
}

type Controller struct {
	mode   Mode
	toggle Toggle
}

func New() *Controller {
	return &Controller{mode: Disabled}
}

// Update feeds one tick of the toggle input and returns the resulting mode and
// whether it changed.
func (c *Controller) Update(togglePressed bool) (Mode, bool) {
	if !c.toggle.Update(togglePressed) {
		return c.mode, false
	}
	if c.mode == Enabled {
		c.mode = Disabled
	} else {
		c.mode = Enabled
	}
	return c.mode, true
}

// Set forces the mode, returning true if it changed.
func (c *Controller) Set(enabled bool) bool {
	m := Disabled
	if enabled {
		m = Enabled
	}
	changed := m != c.mode
	c.mode = m
	return changed
}

func (c *Controller) Enabled() bool {
	return c.mode == Enabled
}

func (c *Controller) Mode() Mode {
	return c.mode
}

func (c *Controller) Reset() {
	c.mode = Disabled
	c.toggle.Reset()
}
