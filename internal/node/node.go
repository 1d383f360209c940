// Package node owns the configured devices and wires them to the cloud
// channel, the button service and the status tracker.
package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-node/internal/button"
	"github.com/sweeney/gpio-node/internal/cloud"
	"github.com/sweeney/gpio-node/internal/config"
	"github.com/sweeney/gpio-node/internal/logic"
	"github.com/sweeney/gpio-node/internal/status"
)

// Deps are the collaborators of a Node.
type Deps struct {
	Pins    logic.PinWriter
	Buttons button.Service
	Channel cloud.Channel
	Tracker *status.Tracker
	Log     logrus.FieldLogger
	Now     func() time.Time
}

// polaritySetter is implemented by button services that read raw levels.
type polaritySetter interface {
	SetActiveLow(pin int, activeLow bool)
}

// Node is the running set of devices.
type Node struct {
	ch      cloud.Channel
	tracker *status.Tracker
	log     logrus.FieldLogger
	now     func() time.Time

	devices map[string]device
	order   []string
}

// New builds every configured device. Output init failures are fatal;
// button failures are logged and the device runs without its button.
func New(cfg config.Config, deps Deps) (*Node, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	n := &Node{
		ch:      deps.Channel,
		tracker: deps.Tracker,
		log:     deps.Log,
		now:     deps.Now,
		devices: make(map[string]device, len(cfg.Devices)),
	}
	buttons := countingService{Service: deps.Buttons, tracker: deps.Tracker}

	for _, dc := range cfg.Devices {
		var (
			d   device
			err error
		)
		switch dc.Type {
		case config.TypeRelay:
			d, err = n.newRelay(dc, deps.Pins)
		case config.TypeSwitch, config.TypeSensor:
			d, err = n.newStoreDevice(dc, deps.Pins, buttons, deps.Buttons)
		default:
			err = fmt.Errorf("unknown type %q", dc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}
		n.devices[dc.Name] = d
		n.order = append(n.order, dc.Name)
	}
	sort.Strings(n.order)

	if deps.Tracker != nil {
		deps.Tracker.SetParams(n.Params())
	}
	return n, nil
}

func (n *Node) newRelay(dc config.DeviceConfig, pins logic.PinWriter) (device, error) {
	specs := make([]logic.OutputSpec, 0, len(dc.Outputs))
	defaults := make(map[string]bool, len(dc.Outputs))
	for _, o := range dc.Outputs {
		specs = append(specs, logic.OutputSpec{Name: o.Name, Pin: o.Pin, ActiveLow: o.ActiveLow, Default: o.Default})
		defaults[o.Name] = o.Default
	}
	d, err := logic.NewDispatcher(pins, specs)
	if err != nil {
		return nil, err
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return &relayDevice{n: n, devName: dc.Name, outputs: d, defaults: defaults}, nil
}

// buttons registers the bridge; raw is the unwrapped service that may take a
// pin polarity.
func (n *Node) newStoreDevice(dc config.DeviceConfig, pins logic.PinWriter, buttons, raw button.Service) (device, error) {
	var actuate logic.Actuator
	if dc.Output != nil {
		o := dc.Output
		d, err := logic.NewDispatcher(pins, []logic.OutputSpec{{Name: o.Name, Pin: o.Pin, ActiveLow: o.ActiveLow, Default: dc.Default}})
		if err != nil {
			return nil, err
		}
		if err := d.Init(); err != nil {
			return nil, err
		}
		actuate = d.Actuator(o.Name)
	}

	sd := &storeDevice{
		devName:  dc.Name,
		devKind:  dc.Type,
		param:    dc.Param,
		readOnly: dc.Type == config.TypeSensor,
		initial:  dc.Default,
		store:    logic.NewStore(dc.Default, actuate),
	}
	sd.store.OnChange(func(_, v bool) {
		n.paramChanged(sd.devName, sd.param, v)
	})

	if dc.Button == nil {
		return sd, nil
	}

	bcfg := logic.BridgeConfig{Mode: logic.ModeToggle, PushThreshold: dc.Button.PushThreshold}
	if dc.Type == config.TypeSensor {
		bcfg = logic.BridgeConfig{
			Mode:             logic.ModeFollow,
			PushThreshold:    dc.Button.PushThreshold,
			ReleaseThreshold: dc.Button.ReleaseThreshold,
			EnteredMessage:   dc.EnteredMessage,
			ClearedMessage:   dc.ClearedMessage,
		}
	}
	log := n.log.WithFields(logrus.Fields{"device": dc.Name, "pin": dc.Button.Pin})
	sd.bridge = logic.NewBridge(bcfg, sd.store, alerter{n: n}, log)

	if ps, ok := raw.(polaritySetter); ok {
		ps.SetActiveLow(dc.Button.Pin, dc.Button.IsActiveLow())
	}
	installed := true
	if err := sd.bridge.Install(buttons, dc.Button.Pin); err != nil {
		log.WithError(err).Warn("button unavailable, continuing without it")
		installed = false
	}
	if n.tracker != nil {
		n.tracker.SetButton(dc.Name, installed)
	}
	return sd, nil
}

// Start subscribes to remote writes and reports every param so the cloud
// mirrors the boot state.
func (n *Node) Start() error {
	if err := n.ch.Subscribe(n.HandleRemote); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	n.ReportAll()
	return nil
}

// HandleRemote applies a write delivered by the cloud channel.
func (n *Node) HandleRemote(w cloud.Write) error {
	return n.Write(context.Background(), w)
}

// Write applies one param write from the cloud or the local API.
// Unknown targets return an error wrapping logic.ErrNotFound; sensor params
// return logic.ErrReadOnly.
func (n *Node) Write(ctx context.Context, w cloud.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := n.log.WithFields(logrus.Fields{"device": w.Device, "param": w.Param, "value": w.Value, "source": w.Source})

	d, ok := n.devices[w.Device]
	if !ok {
		err := fmt.Errorf("device %q: %w", w.Device, logic.ErrNotFound)
		n.dropped(log, err)
		return err
	}
	if err := d.write(w.Param, w.Value); err != nil {
		if errors.Is(err, logic.ErrNotFound) || errors.Is(err, logic.ErrReadOnly) {
			n.dropped(log, err)
		} else {
			log.WithError(err).Error("write failed")
		}
		return err
	}
	if n.tracker != nil {
		n.tracker.IncWrites()
	}
	log.Debug("write applied")
	return nil
}

func (n *Node) dropped(log logrus.FieldLogger, err error) {
	log.WithError(err).Warn("write dropped")
	if n.tracker != nil {
		n.tracker.IncDroppedWrites()
	}
}

// Param returns the current value of one param.
func (n *Node) Param(device, param string) (status.ParamState, error) {
	d, ok := n.devices[device]
	if !ok {
		return status.ParamState{}, fmt.Errorf("device %q: %w", device, logic.ErrNotFound)
	}
	for _, p := range d.params() {
		if p.Param == param {
			return p, nil
		}
	}
	return status.ParamState{}, fmt.Errorf("param %q: %w", param, logic.ErrNotFound)
}

// Params returns every device param, ordered by device then param.
func (n *Node) Params() []status.ParamState {
	var out []status.ParamState
	for _, name := range n.order {
		out = append(out, n.devices[name].params()...)
	}
	return out
}

// ReportAll publishes the current value of every param.
func (n *Node) ReportAll() {
	for _, p := range n.Params() {
		n.report(p.Device, p.Param, p.Value)
	}
}

// FactoryReset returns every device to its configured defaults. Changes are
// reported through the usual path.
func (n *Node) FactoryReset() error {
	n.log.Warn("factory reset: restoring defaults")
	n.publishSystem("FACTORY_RESET")

	var errs []error
	for _, name := range n.order {
		if err := n.devices[name].reset(); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// NetworkReset drops and re-establishes the cloud connection.
func (n *Node) NetworkReset() error {
	n.log.Warn("network reset: reconnecting")
	n.publishSystem("NETWORK_RESET")

	r, ok := n.ch.(cloud.Reconnector)
	if !ok {
		return errors.New("channel does not support reconnect")
	}
	return r.Reconnect()
}

// paramChanged reports a new value and mirrors it into the tracker.
// It runs under the owning store's lock and must not read any store.
func (n *Node) paramChanged(device, param string, value bool) {
	if n.tracker != nil {
		n.tracker.SetParam(device, param, value)
	}
	n.report(device, param, value)
}

func (n *Node) report(device, param string, value bool) {
	if err := n.ch.Report(device, param, value); err != nil {
		n.log.WithError(err).WithFields(logrus.Fields{"device": device, "param": param}).Warn("report failed")
		return
	}
	if n.tracker != nil {
		n.tracker.IncReports()
	}
}

func (n *Node) publishSystem(event string) {
	ev := cloud.SystemEvent{Timestamp: n.now(), Event: event}
	if err := n.ch.PublishSystem(ev); err != nil {
		n.log.WithError(err).WithField("event", event).Warn("system event publish failed")
	}
}

// alerter forwards bridge notifications to the cloud channel.
type alerter struct {
	n *Node
}

func (a alerter) RaiseAlert(message string) error {
	if err := a.n.ch.RaiseAlert(message); err != nil {
		return err
	}
	if a.n.tracker != nil {
		a.n.tracker.IncAlerts()
	}
	return nil
}

// countingService counts button events delivered to its callbacks.
type countingService struct {
	button.Service
	tracker *status.Tracker
}

func (c countingService) OnHeld(pin int, kind button.Kind, threshold time.Duration, cb func(button.Event)) error {
	if c.Service == nil {
		return errors.New("no button service")
	}
	return c.Service.OnHeld(pin, kind, threshold, func(ev button.Event) {
		if c.tracker != nil {
			c.tracker.IncButtonEvents()
		}
		cb(ev)
	})
}
