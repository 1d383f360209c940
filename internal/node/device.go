package node

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/gpio-node/internal/logic"
	"github.com/sweeney/gpio-node/internal/status"
)

// device is one logical device exposed as cloud params.
type device interface {
	name() string
	kind() string
	params() []status.ParamState
	write(param string, value bool) error
	reset() error
}

// relayDevice maps each param to a named output. mu keeps each pin write
// and its report together so reports leave in pin order.
type relayDevice struct {
	mu       sync.Mutex
	n        *Node
	devName  string
	outputs  *logic.Dispatcher
	defaults map[string]bool
}

func (d *relayDevice) name() string { return d.devName }
func (d *relayDevice) kind() string { return "relay" }

func (d *relayDevice) params() []status.ParamState {
	var out []status.ParamState
	for _, name := range d.outputs.Names() {
		on, _ := d.outputs.Output(name)
		out = append(out, status.ParamState{Device: d.devName, Kind: d.kind(), Param: name, Value: on})
	}
	return out
}

// write drives the output and echoes the value back to the cloud.
func (d *relayDevice) write(param string, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.outputs.SetOutput(param, value); err != nil {
		return err
	}
	d.n.paramChanged(d.devName, param, value)
	return nil
}

func (d *relayDevice) reset() error {
	var errs []error
	for _, name := range d.outputs.Names() {
		if err := d.write(name, d.defaults[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// storeDevice is a single binary param backed by a Store. Switches are
// writable; sensors are driven only by their button.
type storeDevice struct {
	devName  string
	devKind  string
	param    string
	readOnly bool
	initial  bool
	store    *logic.Store
	bridge   *logic.Bridge
}

func (d *storeDevice) name() string { return d.devName }
func (d *storeDevice) kind() string { return d.devKind }

func (d *storeDevice) params() []status.ParamState {
	return []status.ParamState{{
		Device:   d.devName,
		Kind:     d.devKind,
		Param:    d.param,
		Value:    d.store.Get(),
		ReadOnly: d.readOnly,
	}}
}

func (d *storeDevice) write(param string, value bool) error {
	if param != d.param {
		return fmt.Errorf("param %q: %w", param, logic.ErrNotFound)
	}
	if d.readOnly {
		return fmt.Errorf("param %q: %w", param, logic.ErrReadOnly)
	}
	_, err := d.store.Set(value)
	return err
}

func (d *storeDevice) reset() error {
	_, err := d.store.Set(d.initial)
	return err
}
