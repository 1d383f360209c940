// Package localbroker runs an embedded MQTT broker so the node can be
// controlled on the LAN without an upstream broker.
package localbroker

import (
	"context"
	"fmt"
	"net"

	"github.com/DrmagicE/gmqtt"
	"github.com/sirupsen/logrus"
)

// Broker is a running embedded broker.
type Broker struct {
	ln   net.Listener
	stop func(ctx context.Context)
	log  logrus.FieldLogger
}

// Start listens on addr and serves MQTT until Close.
func Start(addr string, log logrus.FieldLogger) (*Broker, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("local broker listen %s: %w", addr, err)
	}
	b := &Broker{ln: ln, log: log}

	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(ln),
		gmqtt.WithPlugin(&plugin{log: log}),
	)
	s.Run()
	b.stop = func(ctx context.Context) { s.Stop(ctx) }

	log.WithField("addr", b.Addr()).Info("local mqtt broker started")
	return b, nil
}

// Addr returns the listen address.
func (b *Broker) Addr() string {
	return b.ln.Addr().String()
}

// Close stops the broker and its listener.
func (b *Broker) Close(ctx context.Context) {
	b.stop(ctx)
	b.log.Info("local mqtt broker stopped")
}

// plugin logs client connections.
type plugin struct {
	log logrus.FieldLogger
}

func (p *plugin) Load(service gmqtt.Server) error { return nil }
func (p *plugin) Unload() error                   { return nil }
func (p *plugin) Name() string                    { return "gpio-node" }

func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnConnectWrapper: p.onConnectWrapper,
	}
}

func (p *plugin) onConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		code = connect(ctx, client)
		p.log.WithFields(logrus.Fields{
			"client_id": client.OptionsReader().ClientID(),
			"remote":    client.Connection().RemoteAddr().String(),
			"code":      code,
		}).Debug("local mqtt client connect")
		return code
	}
}
