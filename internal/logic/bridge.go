package logic

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-node/internal/button"
)

// BridgeMode selects how button events map onto the store.
type BridgeMode int

const (
	// ModeFollow: a held press sets the store true, a held release sets it
	// false. Used for occupancy-style sensors.
	ModeFollow BridgeMode = iota
	// ModeToggle: a held press flips the store; releases are ignored.
	ModeToggle
)

// BridgeState is Idle when the store is false and Active when it is true.
type BridgeState string

const (
	StateIdle   BridgeState = "IDLE"
	StateActive BridgeState = "ACTIVE"
)

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Mode             BridgeMode
	PushThreshold    time.Duration
	ReleaseThreshold time.Duration
	EnteredMessage   string // alert on Idle -> Active; empty = no alert
	ClearedMessage   string // alert on Active -> Idle; empty = no alert
}

// Bridge converts button events into at most one store mutation and one
// alert per transition. Its state is read from the store, so it cannot drift
// from changes made by cloud writes.
type Bridge struct {
	cfg    BridgeConfig
	store  *Store
	notify Notifier
	log    logrus.FieldLogger
}

// NewBridge creates a bridge over store. notify may be nil.
func NewBridge(cfg BridgeConfig, store *Store, notify Notifier, log logrus.FieldLogger) *Bridge {
	return &Bridge{cfg: cfg, store: store, notify: notify, log: log}
}

// State returns the current bridge state.
func (b *Bridge) State() BridgeState {
	if b.store.Get() {
		return StateActive
	}
	return StateIdle
}

// Install registers the bridge on svc for pin. A failure is returned as a
// *HardwareInitError; callers run on without the bridge.
func (b *Bridge) Install(svc button.Service, pin int) error {
	if err := svc.OnHeld(pin, button.Press, b.cfg.PushThreshold, b.Handle); err != nil {
		return &HardwareInitError{Component: "button", Pin: pin, Err: err}
	}
	if b.cfg.Mode == ModeToggle {
		return nil
	}
	if err := svc.OnHeld(pin, button.Release, b.cfg.ReleaseThreshold, b.Handle); err != nil {
		return &HardwareInitError{Component: "button", Pin: pin, Err: err}
	}
	return nil
}

// Handle applies one button event. Events below their threshold, and events
// for the state the store is already in, are no-ops.
func (b *Bridge) Handle(ev button.Event) {
	log := b.log.WithFields(logrus.Fields{"pin": ev.Pin, "kind": ev.Kind.String(), "held": ev.Held})

	switch ev.Kind {
	case button.Press:
		if ev.Held < b.cfg.PushThreshold {
			log.Debug("press below threshold, ignored")
			return
		}
		if b.cfg.Mode == ModeToggle {
			on, err := b.store.Toggle()
			if err != nil {
				log.WithError(err).Warn("toggle failed")
				return
			}
			log.WithField("state", on).Info("button toggled state")
			return
		}
		b.transition(log, true, b.cfg.EnteredMessage)

	case button.Release:
		if b.cfg.Mode == ModeToggle {
			return
		}
		if ev.Held < b.cfg.ReleaseThreshold {
			log.Debug("release below threshold, ignored")
			return
		}
		b.transition(log, false, b.cfg.ClearedMessage)
	}
}

func (b *Bridge) transition(log logrus.FieldLogger, to bool, message string) {
	changed, err := b.store.Set(to)
	if err != nil {
		log.WithError(err).Warn("state update failed")
		return
	}
	if !changed {
		return
	}
	log.WithField("state", to).Info("button changed state")
	if message == "" || b.notify == nil {
		return
	}
	if err := b.notify.RaiseAlert(message); err != nil {
		log.WithError(err).Warn("alert not sent")
	}
}
