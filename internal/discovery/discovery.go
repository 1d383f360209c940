// Package discovery advertises the node's HTTP API over mDNS.
package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

const (
	ServiceType = "_gpionode._tcp"
	Domain      = "local."
)

// Advertiser is a running mDNS registration.
type Advertiser struct {
	server *zeroconf.Server
	log    logrus.FieldLogger
}

// Advertise registers instance on port with the given TXT metadata.
func Advertise(instance string, port int, meta map[string]string, log logrus.FieldLogger) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, TXT(meta), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	log.WithFields(logrus.Fields{"instance": instance, "port": port}).Info("mdns advertising")
	return &Advertiser{server: server, log: log}, nil
}

// Shutdown withdraws the registration.
func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
	a.log.Debug("mdns advertisement withdrawn")
}

// TXT renders metadata as sorted key=value records.
func TXT(meta map[string]string) []string {
	txt := make([]string, 0, len(meta))
	for k, v := range meta {
		txt = append(txt, k+"="+v)
	}
	sort.Strings(txt)
	return txt
}

// Port extracts the port of a listen address such as ":80".
func Port(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("listen address %q has no usable port", addr)
	}
	return port, nil
}
