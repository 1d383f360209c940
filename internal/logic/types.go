// Package logic contains the device state logic of the node: the named output
// dispatcher, the binary state store and the button bridge.
// This package has NO hardware, MQTT or OS dependencies. Pins are reached
// through the small PinWriter interface and time arrives inside events.
package logic

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for an unknown output, device or param name.
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned when a write targets a param the cloud may only read.
var ErrReadOnly = errors.New("read-only param")

// HardwareInitError reports a pin or button that could not be set up at startup.
// For buttons the caller treats it as a soft failure and runs without the feature.
type HardwareInitError struct {
	Component string // e.g. "button", "output"
	Pin       int
	Err       error
}

func (e *HardwareInitError) Error() string {
	return fmt.Sprintf("%s init on pin %d: %v", e.Component, e.Pin, e.Err)
}

func (e *HardwareInitError) Unwrap() error {
	return e.Err
}

// PinWriter drives physical output levels. true = high.
type PinWriter interface {
	ConfigureOutput(pin int, level bool) error
	WriteLevel(pin int, level bool) error
}

// OutputSpec maps a logical output name to a physical pin.
type OutputSpec struct {
	Name      string
	Pin       int
	ActiveLow bool // logical ON drives the pin low
	Default   bool // logical state at startup
}

// Level returns the physical level for a logical state.
func (s OutputSpec) Level(on bool) bool {
	if s.ActiveLow {
		return !on
	}
	return on
}

// Notifier receives user-facing alerts.
type Notifier interface {
	RaiseAlert(message string) error
}
