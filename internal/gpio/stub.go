//go:build !linux

package gpio

import "errors"

// Cdev is not available on non-Linux platforms.
type Cdev struct{}

// NewCdev returns an error on non-Linux platforms.
func NewCdev(chipName string) (*Cdev, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

// ConfigureOutput is not implemented on non-Linux platforms.
func (c *Cdev) ConfigureOutput(pin int, level bool) error {
	return errors.New("gpio: not supported")
}

// WriteLevel is not implemented on non-Linux platforms.
func (c *Cdev) WriteLevel(pin int, level bool) error {
	return errors.New("gpio: not supported")
}

// ConfigureInput is not implemented on non-Linux platforms.
func (c *Cdev) ConfigureInput(pin int, pullUp bool) error {
	return errors.New("gpio: not supported")
}

// ReadLevel is not implemented on non-Linux platforms.
func (c *Cdev) ReadLevel(pin int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Close is a no-op on non-Linux platforms.
func (c *Cdev) Close() error {
	return nil
}
