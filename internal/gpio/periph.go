package gpio

import (
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph drives pins through periph.io host drivers. Pins are addressed by
// BCM number ("GPIO17").
type Periph struct {
	mu      sync.Mutex
	pins    map[int]pgpio.PinIO
	outputs map[int]bool
}

// NewPeriph initialises periph.io host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &Periph{
		pins:    make(map[int]pgpio.PinIO),
		outputs: make(map[int]bool),
	}, nil
}

// resolve looks up a pin by number, caching the handle. Caller holds mu.
func (p *Periph) resolve(pin int) (pgpio.PinIO, error) {
	if pp, ok := p.pins[pin]; ok {
		return pp, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	pp := gpioreg.ByName(name)
	if pp == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", pin, name)
	}
	p.pins[pin] = pp
	return pp, nil
}

// ConfigureOutput sets pin as an output driven to level.
func (p *Periph) ConfigureOutput(pin int, level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pp, err := p.resolve(pin)
	if err != nil {
		return err
	}
	if err := pp.Out(toLevel(level)); err != nil {
		return fmt.Errorf("set pin %d as output: %w", pin, err)
	}
	p.outputs[pin] = true
	return nil
}

// WriteLevel sets the level of a configured output pin.
func (p *Periph) WriteLevel(pin int, level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pp, ok := p.pins[pin]
	if !ok || !p.outputs[pin] {
		return fmt.Errorf("pin %d is not configured as output", pin)
	}
	if err := pp.Out(toLevel(level)); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// ConfigureInput sets pin as a biased input.
func (p *Periph) ConfigureInput(pin int, pullUp bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pp, err := p.resolve(pin)
	if err != nil {
		return err
	}
	pull := pgpio.PullDown
	if pullUp {
		pull = pgpio.PullUp
	}
	if err := pp.In(pull, pgpio.NoEdge); err != nil {
		return fmt.Errorf("set pin %d as input: %w", pin, err)
	}
	delete(p.outputs, pin)
	return nil
}

// ReadLevel returns the raw level of pin.
func (p *Periph) ReadLevel(pin int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pp, ok := p.pins[pin]
	if !ok {
		return false, fmt.Errorf("pin %d is not configured", pin)
	}
	return pp.Read() == pgpio.High, nil
}

// Close returns every output to an input.
func (p *Periph) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for pin := range p.outputs {
		if err := p.pins[pin].In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("release pin %d: %w", pin, err))
		}
	}
	p.outputs = make(map[int]bool)
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func toLevel(level bool) pgpio.Level {
	if level {
		return pgpio.High
	}
	return pgpio.Low
}
