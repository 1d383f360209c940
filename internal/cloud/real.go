package cloud

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	breakerMaxFailures uint32 = 5
	breakerOpenTimeout        = 30 * time.Second
)

// Options configures a RealChannel.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Prefix     string // topic prefix, e.g. "node/<id>"
	BufferSize int    // reports kept while offline

	AlertEvery time.Duration
	AlertBurst int

	Logger logrus.FieldLogger
}

// RealChannel talks to an actual MQTT broker.
type RealChannel struct {
	client  paho.Client
	topics  Topics
	log     logrus.FieldLogger
	breaker *gobreaker.CircuitBreaker[struct{}]
	alerts  *AlertLimiter
	now     func() time.Time

	mu          sync.Mutex
	buf         *ringBuffer
	handler     WriteHandler
	connectedAt time.Time
}

// NewRealChannel connects to the broker. The broker's last-will marks the
// node OFFLINE on the system topic.
func NewRealChannel(opts Options) (*RealChannel, error) {
	c := &RealChannel{
		topics: NewTopics(opts.Prefix),
		log:    opts.Logger,
		alerts: NewAlertLimiter(opts.AlertEvery, opts.AlertBurst),
		now:    time.Now,
		buf:    newRingBuffer(opts.BufferSize),
	}
	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state change")
		},
	})

	will, err := FormatSystemPayload(SystemEvent{Timestamp: c.now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	popts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false). // handlers publish reports and wait on the token
		SetWill(c.topics.System, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.WithError(err).Warn("mqtt connection lost")
		})
	if opts.Username != "" {
		popts.SetUsername(opts.Username)
		popts.SetPassword(opts.Password)
	}

	c.client = paho.NewClient(popts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// SetConnectRetry keeps trying in the background; reports buffer meanwhile.
		c.log.WithField("broker", opts.Broker).Warn("mqtt connect still pending, continuing offline")
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// Topics returns the topic set in use.
func (c *RealChannel) Topics() Topics {
	return c.topics
}

// onConnect runs on every (re)connection: it restores the subscription,
// replays buffered reports and announces the reconnection.
func (c *RealChannel) onConnect(client paho.Client) {
	c.mu.Lock()
	h := c.handler
	first := c.connectedAt.IsZero()
	c.connectedAt = c.now()
	msgs, dropped := c.buf.drain()
	c.mu.Unlock()

	c.log.Info("mqtt connected")
	if h != nil {
		if err := c.subscribe(h); err != nil {
			c.log.WithError(err).Warn("mqtt resubscribe failed")
		}
	}
	if dropped > 0 {
		c.log.WithField("dropped", dropped).Warn("mqtt offline buffer overflowed")
	}
	for _, m := range msgs {
		if err := c.send(m); err != nil {
			c.log.WithError(err).WithField("topic", m.topic).Warn("replay failed")
		}
	}
	if !first {
		if err := c.PublishSystem(SystemEvent{Timestamp: c.now(), Event: "RECONNECTED", Retained: true}); err != nil {
			c.log.WithError(err).Warn("publish reconnected event failed")
		}
	}
}

// Subscribe starts delivering remote writes to h.
func (c *RealChannel) Subscribe(h WriteHandler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	if !c.client.IsConnected() {
		// onConnect subscribes once the connection is up.
		return nil
	}
	return c.subscribe(h)
}

func (c *RealChannel) subscribe(h WriteHandler) error {
	token := c.client.Subscribe(c.topics.Remote, 1, func(_ paho.Client, msg paho.Message) {
		c.deliver(h, msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", c.topics.Remote)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topics.Remote, err)
	}
	return nil
}

func (c *RealChannel) deliver(h WriteHandler, payload []byte) {
	writes, err := DecodeWrites(payload, SourceCloud)
	if err != nil {
		c.log.WithError(err).Warn("dropping remote write")
		return
	}
	for _, w := range writes {
		if err := h(w); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{"device": w.Device, "param": w.Param}).
				Debug("remote write not applied")
		}
	}
}

// Report publishes a param value. While offline it is buffered for replay.
func (c *RealChannel) Report(device, param string, value bool) error {
	payload, err := FormatReport(device, param, value)
	if err != nil {
		return fmt.Errorf("format report: %w", err)
	}
	msg := outbound{topic: c.topics.Local, payload: payload, qos: 1}

	if !c.client.IsConnected() {
		c.mu.Lock()
		c.buf.push(msg)
		c.mu.Unlock()
		return nil
	}
	return c.send(msg)
}

// RaiseAlert publishes message unless the alert budget is spent.
func (c *RealChannel) RaiseAlert(message string) error {
	now := c.now()
	if !c.alerts.Allow(now) {
		return ErrAlertRateLimited
	}
	payload, err := FormatAlert(NewAlert(message, now))
	if err != nil {
		return fmt.Errorf("format alert: %w", err)
	}
	return c.send(outbound{topic: c.topics.Alert, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the broker.
func (c *RealChannel) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.send(outbound{topic: c.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// send publishes through the circuit breaker so a dead broker fails fast.
func (c *RealChannel) send(m outbound) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) {
			return struct{}{}, errors.New("publish timeout")
		}
		return struct{}{}, token.Error()
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the client is connected.
func (c *RealChannel) IsConnected() bool {
	return c.client.IsConnected()
}

// Reconnect drops the connection and connects again.
func (c *RealChannel) Reconnect() error {
	c.client.Disconnect(250)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("reconnect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *RealChannel) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
