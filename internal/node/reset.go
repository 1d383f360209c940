package node

import (
	"github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-node/internal/button"
	"github.com/sweeney/gpio-node/internal/config"
	"github.com/sweeney/gpio-node/internal/logic"
)

// InstallReset chains the board reset handlers on the reset button.
// A hold of at least NetworkReset reconnects the cloud channel when the
// button is let go; a hold of FactoryReset restores defaults while still
// held. The release of a factory-reset hold does not also reconnect.
func (n *Node) InstallReset(svc button.Service, rc config.ResetConfig) error {
	log := n.log.WithFields(logrus.Fields{"component": "reset", "pin": rc.Pin})
	if ps, ok := svc.(polaritySetter); ok {
		ps.SetActiveLow(rc.Pin, rc.IsActiveLow())
	}
	svc = countingService{Service: svc, tracker: n.tracker}

	if err := svc.OnHeld(rc.Pin, button.Press, rc.FactoryReset, func(button.Event) {
		if err := n.FactoryReset(); err != nil {
			log.WithError(err).Error("factory reset incomplete")
		}
	}); err != nil {
		return &logic.HardwareInitError{Component: "reset button", Pin: rc.Pin, Err: err}
	}

	if err := svc.OnHeld(rc.Pin, button.Release, rc.NetworkReset, func(ev button.Event) {
		if ev.Held >= rc.FactoryReset {
			return
		}
		if err := n.NetworkReset(); err != nil {
			log.WithError(err).Error("network reset failed")
		}
	}); err != nil {
		return &logic.HardwareInitError{Component: "reset button", Pin: rc.Pin, Err: err}
	}
	log.WithFields(logrus.Fields{"network_reset": rc.NetworkReset, "factory_reset": rc.FactoryReset}).
		Info("reset button installed")
	return nil
}
