//go:build linux

package gpio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Cdev drives pins through the Linux GPIO character device.
type Cdev struct {
	mu      sync.Mutex
	chip    *gpiocdev.Chip
	lines   map[int]*gpiocdev.Line
	outputs map[int]bool
}

// NewCdev opens the named GPIO chip.
func NewCdev(chipName string) (*Cdev, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Cdev{
		chip:    chip,
		lines:   make(map[int]*gpiocdev.Line),
		outputs: make(map[int]bool),
	}, nil
}

// ConfigureOutput requests pin as an output driven to level.
func (c *Cdev) ConfigureOutput(pin int, level bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := toValue(level)
	if l, ok := c.lines[pin]; ok {
		if err := l.Reconfigure(gpiocdev.AsOutput(v)); err != nil {
			return fmt.Errorf("reconfigure pin %d as output: %w", pin, err)
		}
	} else {
		l, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(v))
		if err != nil {
			return fmt.Errorf("request output pin %d: %w", pin, err)
		}
		c.lines[pin] = l
	}
	c.outputs[pin] = true
	return nil
}

// WriteLevel sets the level of a configured output pin.
func (c *Cdev) WriteLevel(pin int, level bool) error {
	c.mu.Lock()
	l, ok := c.lines[pin]
	isOut := c.outputs[pin]
	c.mu.Unlock()

	if !ok || !isOut {
		return fmt.Errorf("pin %d is not configured as output", pin)
	}
	if err := l.SetValue(toValue(level)); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// ConfigureInput requests pin as a biased input.
func (c *Cdev) ConfigureInput(pin int, pullUp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bias gpiocdev.LineReqOption = gpiocdev.WithPullDown
	if pullUp {
		bias = gpiocdev.WithPullUp
	}
	if _, ok := c.lines[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	l, err := c.chip.RequestLine(pin, gpiocdev.AsInput, bias)
	if err != nil {
		return fmt.Errorf("request input pin %d: %w", pin, err)
	}
	c.lines[pin] = l
	return nil
}

// ReadLevel returns the raw level of pin.
func (c *Cdev) ReadLevel(pin int) (bool, error) {
	c.mu.Lock()
	l, ok := c.lines[pin]
	c.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("pin %d is not requested", pin)
	}
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// Close releases every line. Outputs are reconfigured as inputs first so
// relays are not left driven once the process exits.
func (c *Cdev) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	pins := make([]int, 0, len(c.lines))
	for pin := range c.lines {
		pins = append(pins, pin)
	}
	sort.Ints(pins)

	for _, pin := range pins {
		l := c.lines[pin]
		if c.outputs[pin] {
			if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
			}
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	c.lines = make(map[int]*gpiocdev.Line)
	c.outputs = make(map[int]bool)

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func toValue(level bool) int {
	if level {
		return 1
	}
	return 0
}
