// Package button turns sampled GPIO input levels into held/released events.
package button

import "time"

// Kind is the edge a callback is registered for.
type Kind int

const (
	// Press fires once while the button is held for at least the threshold.
	Press Kind = iota
	// Release fires when the button is let go after being held for at least
	// the threshold.
	Release
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "PRESS"
	case Release:
		return "RELEASE"
	default:
		return "UNKNOWN"
	}
}

// Event is a debounced button transition.
type Event struct {
	Pin  int
	Kind Kind
	Held time.Duration // how long the button was (or has been) held
	Time time.Time
}

// Service registers held-button callbacks. Several callbacks may be chained
// on the same pin.
type Service interface {
	OnHeld(pin int, kind Kind, threshold time.Duration, cb func(Event)) error
}
