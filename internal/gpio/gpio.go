// Package gpio provides GPIO pin access with hardware abstraction.
// The cdev backend uses the Linux GPIO character device, the periph backend
// uses periph.io host drivers, and the fake backend allows testing without
// hardware.
package gpio

import "fmt"

// PinWriter drives output pins. Levels are physical: true = high.
type PinWriter interface {
	// ConfigureOutput requests pin as an output driven to level.
	ConfigureOutput(pin int, level bool) error

	// WriteLevel sets the level of a configured output pin.
	WriteLevel(pin int, level bool) error
}

// LevelReader reads input pins. Levels are physical: true = high.
type LevelReader interface {
	// ConfigureInput requests pin as an input with a pull-up or pull-down bias.
	ConfigureInput(pin int, pullUp bool) error

	// ReadLevel returns the current level of a configured input pin.
	ReadLevel(pin int) (bool, error)
}

// Pins is a GPIO backend.
type Pins interface {
	PinWriter
	LevelReader

	// Close releases GPIO resources. Output pins are returned to inputs.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCdev   = "gpiocdev"
	BackendPeriph = "periph"
	BackendFake   = "fake"
)

// DefaultChip is the GPIO chip of the Raspberry Pi header.
const DefaultChip = "gpiochip0"

// Open returns the named backend.
func Open(backend, chip string) (Pins, error) {
	switch backend {
	case BackendCdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		return NewCdev(chip)
	case BackendPeriph:
		return NewPeriph()
	case BackendFake:
		return NewFakePins(), nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}
