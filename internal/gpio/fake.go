package gpio

import (
	"fmt"
	"sync"
)

// Write records one level written to an output pin.
type Write struct {
	Pin   int
	Level bool
}

// FakePins is a test double that keeps pin levels in memory and records
// every output write.
type FakePins struct {
	mu sync.Mutex

	// Levels holds the current level of every pin.
	Levels map[int]bool

	// Outputs and Inputs record how each pin was configured.
	// Inputs maps pin -> pull-up.
	Outputs map[int]bool
	Inputs  map[int]bool

	// Writes contains every WriteLevel call, in order.
	Writes []Write

	// FailPins makes Configure* fail for the listed pins.
	FailPins map[int]error

	// WriteError, if set, will be returned by WriteLevel.
	WriteError error

	// ReadError, if set, will be returned by ReadLevel.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePins creates an empty FakePins.
func NewFakePins() *FakePins {
	return &FakePins{
		Levels:   make(map[int]bool),
		Outputs:  make(map[int]bool),
		Inputs:   make(map[int]bool),
		FailPins: make(map[int]error),
	}
}

// ConfigureOutput records pin as an output at level.
func (f *FakePins) ConfigureOutput(pin int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailPins[pin]; err != nil {
		return err
	}
	f.Outputs[pin] = true
	delete(f.Inputs, pin)
	f.Levels[pin] = level
	return nil
}

// WriteLevel records the write.
func (f *FakePins) WriteLevel(pin int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if !f.Outputs[pin] {
		return fmt.Errorf("pin %d is not configured as output", pin)
	}
	f.Levels[pin] = level
	f.Writes = append(f.Writes, Write{Pin: pin, Level: level})
	return nil
}

// ConfigureInput records pin as an input. An unset input idles at the level
// its bias pulls it to.
func (f *FakePins) ConfigureInput(pin int, pullUp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailPins[pin]; err != nil {
		return err
	}
	f.Inputs[pin] = pullUp
	delete(f.Outputs, pin)
	if _, ok := f.Levels[pin]; !ok {
		f.Levels[pin] = pullUp
	}
	return nil
}

// ReadLevel returns the stored level.
func (f *FakePins) ReadLevel(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if _, ok := f.Inputs[pin]; !ok {
		if !f.Outputs[pin] {
			return false, fmt.Errorf("pin %d is not configured", pin)
		}
	}
	return f.Levels[pin], nil
}

// SetLevel simulates an external signal on pin.
func (f *FakePins) SetLevel(pin int, level bool) {
	f.mu.Lock()
	f.Levels[pin] = level
	f.mu.Unlock()
}

// Level returns the level of pin and whether it was ever set.
func (f *FakePins) Level(pin int) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Levels[pin]
	return v, ok
}

// WritesTo returns the writes recorded for pin.
func (f *FakePins) WritesTo(pin int) []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Write
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w)
		}
	}
	return out
}

// WriteCount returns the total number of writes.
func (f *FakePins) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded writes.
func (f *FakePins) Reset() {
	f.mu.Lock()
	f.Writes = nil
	f.Closed = false
	f.mu.Unlock()
}
