// Package config loads the node configuration from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Device types.
const (
	TypeRelay  = "relay"
	TypeSwitch = "switch"
	TypeSensor = "sensor"
)

// GPIO backends, mirrored from internal/gpio to keep config free of hardware imports.
const (
	BackendCdev   = "gpiocdev"
	BackendPeriph = "periph"
	BackendFake   = "fake"
)

// Default param names.
const (
	DefaultSwitchParam = "Power"
	DefaultSensorParam = "Motion State"
)

// Config is the whole node configuration.
type Config struct {
	NodeID    string        `yaml:"node_id"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	HTTPAddr  string        `yaml:"http_addr"`
	Heartbeat time.Duration `yaml:"heartbeat"`

	MQTT    MQTTConfig     `yaml:"mqtt"`
	GPIO    GPIOConfig     `yaml:"gpio"`
	Local   LocalConfig    `yaml:"local"`
	Reset   *ResetConfig   `yaml:"reset"`
	Devices []DeviceConfig `yaml:"devices"`
}

// MQTTConfig configures the cloud parameter channel.
type MQTTConfig struct {
	Broker     string        `yaml:"broker"` // empty disables the cloud channel
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Prefix     string        `yaml:"prefix"` // default node/<node_id>
	BufferSize int           `yaml:"buffer_size"`
	AlertEvery time.Duration `yaml:"alert_every"`
	AlertBurst int           `yaml:"alert_burst"`
}

// GPIOConfig selects the pin backend and sampling rates.
type GPIOConfig struct {
	Backend  string        `yaml:"backend"`
	Chip     string        `yaml:"chip"`
	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
}

// LocalConfig configures local control.
type LocalConfig struct {
	PasswordHash string `yaml:"password_hash"` // bcrypt; empty = no auth
	BrokerAddr   string `yaml:"broker_addr"`   // embedded MQTT broker; empty = off
	MDNS         bool   `yaml:"mdns"`
}

// ResetConfig configures the board reset button.
type ResetConfig struct {
	Pin          int           `yaml:"pin"`
	ActiveLow    *bool         `yaml:"active_low"`
	NetworkReset time.Duration `yaml:"network_reset"`
	FactoryReset time.Duration `yaml:"factory_reset"`
}

// IsActiveLow reports the configured polarity, active-low by default.
func (r ResetConfig) IsActiveLow() bool {
	return r.ActiveLow == nil || *r.ActiveLow
}

// OutputConfig is one physical output.
type OutputConfig struct {
	Name      string `yaml:"name"`
	Pin       int    `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
	Default   bool   `yaml:"default"`
}

// ButtonConfig is one physical input used as a button.
type ButtonConfig struct {
	Pin              int           `yaml:"pin"`
	ActiveLow        *bool         `yaml:"active_low"`
	PushThreshold    time.Duration `yaml:"push_threshold"`
	ReleaseThreshold time.Duration `yaml:"release_threshold"`
}

// IsActiveLow reports the configured polarity, active-low by default.
func (b ButtonConfig) IsActiveLow() bool {
	return b.ActiveLow == nil || *b.ActiveLow
}

// DeviceConfig is one logical device.
type DeviceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// relay
	Outputs []OutputConfig `yaml:"outputs"`

	// switch and sensor
	Param          string        `yaml:"param"`
	Default        bool          `yaml:"default"`
	Output         *OutputConfig `yaml:"output"` // switch only
	Button         *ButtonConfig `yaml:"button"`
	EnteredMessage string        `yaml:"entered_message"` // sensor only
	ClearedMessage string        `yaml:"cleared_message"` // sensor only
}

// env holds overrides read from GPIONODE_* variables.
type env struct {
	Broker       string `env:"GPIONODE_BROKER"`
	NodeID       string `env:"GPIONODE_NODE_ID"`
	LogLevel     string `env:"GPIONODE_LOG_LEVEL"`
	HTTPAddr     string `env:"GPIONODE_HTTP_ADDR"`
	GPIOBackend  string `env:"GPIONODE_GPIO_BACKEND"`
	MQTTUsername string `env:"GPIONODE_MQTT_USERNAME"`
	MQTTPassword string `env:"GPIONODE_MQTT_PASSWORD"`
}

// Defaults returns a configuration for the two-relay board.
func Defaults() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		HTTPAddr:  ":80",
		Heartbeat: 15 * time.Minute,
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			BufferSize: 100,
			AlertEvery: 5 * time.Second,
			AlertBurst: 3,
		},
		GPIO: GPIOConfig{
			Backend:  BackendCdev,
			Chip:     "gpiochip0",
			Poll:     20 * time.Millisecond,
			Debounce: 50 * time.Millisecond,
		},
		Devices: []DeviceConfig{{
			Name: "Relay",
			Type: TypeRelay,
			Outputs: []OutputConfig{
				{Name: "Relay1", Pin: 2, ActiveLow: true},
				{Name: "Relay2", Pin: 4, ActiveLow: true},
			},
		}},
	}
}

// Load reads path (if non-empty), applies defaults and environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are an error.
// A file that lists devices replaces the default device list.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	cfg.Devices = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = Defaults().Devices
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any GPIONODE_* variables that are set.
func ApplyEnv(cfg *Config) error {
	var e env
	if err := envdecode.Decode(&e); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	override(&cfg.MQTT.Broker, e.Broker)
	override(&cfg.NodeID, e.NodeID)
	override(&cfg.LogLevel, e.LogLevel)
	override(&cfg.HTTPAddr, e.HTTPAddr)
	override(&cfg.GPIO.Backend, e.GPIOBackend)
	override(&cfg.MQTT.Username, e.MQTTUsername)
	override(&cfg.MQTT.Password, e.MQTTPassword)
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Normalize fills derived defaults: node id, topic prefix, param names,
// button thresholds and reset timeouts.
func (c *Config) Normalize() {
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "node/" + c.NodeID
	}
	c.MQTT.Prefix = strings.TrimSuffix(c.MQTT.Prefix, "/")

	if c.Reset != nil {
		if c.Reset.NetworkReset == 0 {
			c.Reset.NetworkReset = 3 * time.Second
		}
		if c.Reset.FactoryReset == 0 {
			c.Reset.FactoryReset = 10 * time.Second
		}
	}

	for i := range c.Devices {
		d := &c.Devices[i]
		switch d.Type {
		case TypeSwitch:
			if d.Param == "" {
				d.Param = DefaultSwitchParam
			}
			if d.Output != nil && d.Output.Name == "" {
				d.Output.Name = d.Name
			}
		case TypeSensor:
			if d.Param == "" {
				d.Param = DefaultSensorParam
			}
			if d.Button != nil {
				if d.Button.PushThreshold == 0 {
					d.Button.PushThreshold = 5 * time.Second
				}
				if d.Button.ReleaseThreshold == 0 {
					d.Button.ReleaseThreshold = 5 * time.Second
				}
			}
		}
	}
}

// Validate checks device names, types and pin assignments.
func (c Config) Validate() error {
	switch c.GPIO.Backend {
	case BackendCdev, BackendPeriph, BackendFake:
	default:
		return fmt.Errorf("unknown gpio backend %q", c.GPIO.Backend)
	}
	if c.GPIO.Poll <= 0 {
		return fmt.Errorf("gpio poll interval must be positive, got %v", c.GPIO.Poll)
	}
	if c.GPIO.Debounce < 0 {
		return fmt.Errorf("gpio debounce must not be negative, got %v", c.GPIO.Debounce)
	}
	if len(c.Devices) == 0 {
		return errors.New("no devices configured")
	}

	outputs := make(map[int]string) // pin -> owner
	buttons := make(map[int]bool)   // pin -> active low
	claimOutput := func(owner string, pin int) error {
		if pin < 0 {
			return fmt.Errorf("%s: invalid output pin %d", owner, pin)
		}
		if other, ok := outputs[pin]; ok {
			return fmt.Errorf("%s: pin %d already used by %s", owner, pin, other)
		}
		if _, ok := buttons[pin]; ok {
			return fmt.Errorf("%s: pin %d already used by a button", owner, pin)
		}
		outputs[pin] = owner
		return nil
	}
	claimButton := func(owner string, pin int, activeLow bool) error {
		if pin < 0 {
			return fmt.Errorf("%s: invalid button pin %d", owner, pin)
		}
		if other, ok := outputs[pin]; ok {
			return fmt.Errorf("%s: pin %d already used by output %s", owner, pin, other)
		}
		if prev, ok := buttons[pin]; ok && prev != activeLow {
			return fmt.Errorf("%s: pin %d shared with a button of the other polarity", owner, pin)
		}
		buttons[pin] = activeLow
		return nil
	}

	if c.Reset != nil {
		if err := claimButton("reset button", c.Reset.Pin, c.Reset.IsActiveLow()); err != nil {
			return err
		}
		if c.Reset.FactoryReset <= c.Reset.NetworkReset {
			return fmt.Errorf("reset button: factory_reset (%v) must exceed network_reset (%v)",
				c.Reset.FactoryReset, c.Reset.NetworkReset)
		}
	}

	names := make(map[string]bool)
	for _, d := range c.Devices {
		if d.Name == "" {
			return errors.New("device with empty name")
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate device name %q", d.Name)
		}
		names[d.Name] = true
		owner := "device " + d.Name

		switch d.Type {
		case TypeRelay:
			if len(d.Outputs) == 0 {
				return fmt.Errorf("%s: relay needs at least one output", owner)
			}
			if d.Button != nil || d.Output != nil {
				return fmt.Errorf("%s: relay takes outputs only", owner)
			}
			seen := make(map[string]bool)
			for _, o := range d.Outputs {
				if o.Name == "" {
					return fmt.Errorf("%s: output on pin %d has no name", owner, o.Pin)
				}
				if seen[o.Name] {
					return fmt.Errorf("%s: duplicate output name %q", owner, o.Name)
				}
				seen[o.Name] = true
				if err := claimOutput(owner+"/"+o.Name, o.Pin); err != nil {
					return err
				}
			}
		case TypeSwitch:
			if len(d.Outputs) > 0 {
				return fmt.Errorf("%s: switch takes a single output", owner)
			}
			if d.Output != nil {
				if err := claimOutput(owner, d.Output.Pin); err != nil {
					return err
				}
			}
			if d.Button != nil {
				if err := claimButton(owner, d.Button.Pin, d.Button.IsActiveLow()); err != nil {
					return err
				}
			}
		case TypeSensor:
			if len(d.Outputs) > 0 || d.Output != nil {
				return fmt.Errorf("%s: sensor has no outputs", owner)
			}
			if d.Button == nil {
				return fmt.Errorf("%s: sensor needs a button", owner)
			}
			if err := claimButton(owner, d.Button.Pin, d.Button.IsActiveLow()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s: unknown type %q", owner, d.Type)
		}
	}
	return nil
}

// Device returns the named device config.
func (c Config) Device(name string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceConfig{}, false
}
