package logic

import (
	"fmt"
	"sort"
	"sync"
)

// Dispatcher translates logical output names into pin-level writes.
// The name table is fixed at construction. Safe for concurrent use.
type Dispatcher struct {
	mu     sync.Mutex
	pins   PinWriter
	specs  map[string]OutputSpec
	states map[string]bool
}

// NewDispatcher validates specs and returns a dispatcher over pins.
// Names and pins must be unique.
func NewDispatcher(pins PinWriter, specs []OutputSpec) (*Dispatcher, error) {
	d := &Dispatcher{
		pins:   pins,
		specs:  make(map[string]OutputSpec, len(specs)),
		states: make(map[string]bool, len(specs)),
	}
	usedPins := make(map[int]string, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("output on pin %d has no name", s.Pin)
		}
		if _, dup := d.specs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate output name %q", s.Name)
		}
		if other, dup := usedPins[s.Pin]; dup {
			return nil, fmt.Errorf("outputs %q and %q share pin %d", other, s.Name, s.Pin)
		}
		usedPins[s.Pin] = s.Name
		d.specs[s.Name] = s
		d.states[s.Name] = s.Default
	}
	return d, nil
}

// Init configures every output pin and drives it to its default state.
func (d *Dispatcher) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range d.sortedNames() {
		s := d.specs[name]
		if err := d.pins.ConfigureOutput(s.Pin, s.Level(s.Default)); err != nil {
			return &HardwareInitError{Component: "output " + name, Pin: s.Pin, Err: err}
		}
		d.states[name] = s.Default
	}
	return nil
}

// SetOutput drives the named output to desired. Unknown names return an
// error wrapping ErrNotFound and touch no pin.
func (d *Dispatcher) SetOutput(name string, desired bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.specs[name]
	if !ok {
		return fmt.Errorf("output %q: %w", name, ErrNotFound)
	}
	if err := d.pins.WriteLevel(s.Pin, s.Level(desired)); err != nil {
		return fmt.Errorf("write output %q (pin %d): %w", name, s.Pin, err)
	}
	d.states[name] = desired
	return nil
}

// Output returns the last commanded state of the named output.
func (d *Dispatcher) Output(name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	on, ok := d.states[name]
	if !ok {
		return false, fmt.Errorf("output %q: %w", name, ErrNotFound)
	}
	return on, nil
}

// Spec returns the registration of the named output.
func (d *Dispatcher) Spec(name string) (OutputSpec, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.specs[name]
	return s, ok
}

// Names returns the registered output names in sorted order.
func (d *Dispatcher) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedNames()
}

// Actuator returns a store actuator that drives the named output.
func (d *Dispatcher) Actuator(name string) Actuator {
	return func(on bool) error {
		return d.SetOutput(name, on)
	}
}

func (d *Dispatcher) sortedNames() []string {
	names := make([]string, 0, len(d.specs))
	for n := range d.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
