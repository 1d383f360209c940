package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-node/internal/button"
	"github.com/sweeney/gpio-node/internal/cloud"
	"github.com/sweeney/gpio-node/internal/config"
	"github.com/sweeney/gpio-node/internal/discovery"
	"github.com/sweeney/gpio-node/internal/gpio"
	"github.com/sweeney/gpio-node/internal/localbroker"
	"github.com/sweeney/gpio-node/internal/node"
	"github.com/sweeney/gpio-node/internal/status"
	"github.com/sweeney/gpio-node/internal/web"
)

// statusTick is how often the run loop refreshes the tracker.
const statusTick = time.Second

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			log, err := f.logger(cmd, cfg)
			if err != nil {
				return err
			}
			return run(cfg, log)
		},
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	pins, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		NodeID:      cfg.NodeID,
		Broker:      cfg.MQTT.Broker,
		LocalBroker: cfg.Local.BrokerAddr,
		HTTPAddr:    cfg.HTTPAddr,
		GPIOBackend: cfg.GPIO.Backend,
		PollMs:      cfg.GPIO.Poll.Milliseconds(),
		DebounceMs:  cfg.GPIO.Debounce.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	brokerURL := cfg.MQTT.Broker
	if cfg.Local.BrokerAddr != "" {
		lb, err := localbroker.Start(cfg.Local.BrokerAddr, log.WithField("component", "localbroker"))
		if err != nil {
			return err
		}
		defer lb.Close(context.Background())
		if brokerURL == "" {
			brokerURL = "tcp://" + lb.Addr()
		}
	}
	if brokerURL == "" {
		return errors.New("no mqtt broker configured")
	}

	ch, err := cloud.NewRealChannel(cloud.Options{
		Broker:     brokerURL,
		ClientID:   "gpio-node-" + cfg.NodeID,
		Username:   cfg.MQTT.Username,
		Password:   cfg.MQTT.Password,
		Prefix:     cfg.MQTT.Prefix,
		BufferSize: cfg.MQTT.BufferSize,
		AlertEvery: cfg.MQTT.AlertEvery,
		AlertBurst: cfg.MQTT.AlertBurst,
		Logger:     log.WithField("component", "cloud"),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer ch.Close()

	poller := button.NewPoller(pins, cfg.GPIO.Debounce, log.WithField("component", "button"))
	n, err := node.New(cfg, node.Deps{
		Pins:    pins,
		Buttons: poller,
		Channel: ch,
		Tracker: tracker,
		Log:     log.WithField("component", "node"),
	})
	if err != nil {
		return err
	}
	if cfg.Reset != nil {
		if err := n.InstallReset(poller, *cfg.Reset); err != nil {
			log.WithError(err).Warn("reset button unavailable, continuing without it")
		}
	}
	if err := n.Start(); err != nil {
		return err
	}

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(ch.IsConnected())
	snap := tracker.Snapshot()
	startupEvent := cloud.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := ch.PublishSystem(startupEvent); err != nil {
		log.WithError(err).Warn("failed to publish startup event")
	} else {
		log.Info("published startup event")
	}

	if cfg.HTTPAddr != "" {
		access := log.WriterLevel(logrus.DebugLevel)
		defer access.Close()
		srv := web.New(web.Options{
			Addr:         cfg.HTTPAddr,
			PasswordHash: cfg.Local.PasswordHash,
			AccessLog:    access,
			Log:          log.WithField("component", "web"),
		}, tracker, n)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")

		if cfg.Local.MDNS {
			if adv := advertise(cfg, log); adv != nil {
				defer adv.Shutdown()
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx, cfg.GPIO.Poll)

	log.WithFields(logrus.Fields{
		"node_id":   cfg.NodeID,
		"devices":   len(cfg.Devices),
		"backend":   cfg.GPIO.Backend,
		"broker":    brokerURL,
		"heartbeat": cfg.Heartbeat,
	}).Info("started")

	ticker := time.NewTicker(statusTick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ch, ch, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh, log)
}

func advertise(cfg config.Config, log *logrus.Logger) *discovery.Advertiser {
	port, err := discovery.Port(cfg.HTTPAddr)
	if err != nil {
		log.WithError(err).Warn("mdns disabled")
		return nil
	}
	names := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		names = append(names, d.Name)
	}
	adv, err := discovery.Advertise("gpio-node-"+cfg.NodeID, port, map[string]string{
		"node_id": cfg.NodeID,
		"devices": strings.Join(names, ","),
		"prefix":  cfg.MQTT.Prefix,
	}, log.WithField("component", "mdns"))
	if err != nil {
		log.WithError(err).Warn("mdns disabled")
		return nil
	}
	return adv
}

// runLoop publishes heartbeats and keeps the tracker's connection state
// fresh until a signal arrives, then publishes SHUTDOWN.
func runLoop(publisher cloud.Channel, mqttStatus cloud.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log logrus.FieldLogger) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.WithField("signal", s.String()).Info("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := cloud.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.WithError(err).Warn("failed to publish shutdown event")
			} else {
				log.Info("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if heartbeat <= 0 || t.Sub(lastHeartbeat) < heartbeat {
				continue
			}
			lastHeartbeat = t

			hbEvent := cloud.SystemEvent{Timestamp: t, Event: "HEARTBEAT"}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.WithFields(logrus.Fields{
					"uptime":  snap.Uptime().Truncate(time.Second),
					"writes":  snap.Counts.Writes,
					"reports": snap.Counts.Reports,
					"alerts":  snap.Counts.Alerts,
				}).Info("heartbeat")
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.WithError(err).Warn("heartbeat publish error")
			}
		}
	}
}
