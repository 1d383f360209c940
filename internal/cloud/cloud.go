// Package cloud carries device parameters between the node and a remote
// management service over MQTT, with an abstraction for testing.
package cloud

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidPayload is returned for a params message that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid params payload")

// ErrAlertRateLimited is returned by RaiseAlert when the alert budget is spent.
var ErrAlertRateLimited = errors.New("alert rate limited")

// Source tells where a write request came from.
type Source string

const (
	SourceCloud Source = "cloud"
	SourceLocal Source = "local"
)

// Write is a request to set one device param.
type Write struct {
	Device string
	Param  string
	Value  bool
	Source Source
}

// WriteHandler receives write requests. Errors are logged by the caller.
type WriteHandler func(w Write) error

// Channel is the cloud parameter channel.
type Channel interface {
	// Subscribe starts delivering remote writes to h.
	Subscribe(h WriteHandler) error

	// Report publishes the current value of a device param.
	// Returns error if publishing fails (should not crash the process).
	Report(device, param string, value bool) error

	// RaiseAlert publishes a user-facing notification.
	RaiseAlert(message string) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Reconnector drops and re-establishes the broker connection.
type Reconnector interface {
	Reconnect() error
}

// Topics are the MQTT topics of one node.
type Topics struct {
	Remote string // writes from the cloud
	Local  string // reports from the node
	Alert  string
	System string
}

// NewTopics derives the topic set from prefix, e.g. "node/<id>".
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		Remote: prefix + "/params/remote",
		Local:  prefix + "/params/local",
		Alert:  prefix + "/alert",
		System: prefix + "/system",
	}
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "FACTORY_RESET"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Params is the wire shape of writes and reports: device -> param -> value.
type Params map[string]map[string]bool

// DecodeWrites parses a params message into writes, ordered by device then
// param. Any non-bool value rejects the whole message.
func DecodeWrites(payload []byte, src Source) ([]Write, error) {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	devices := make([]string, 0, len(raw))
	for d := range raw {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	var writes []Write
	for _, d := range devices {
		params := make([]string, 0, len(raw[d]))
		for p := range raw[d] {
			params = append(params, p)
		}
		sort.Strings(params)
		for _, p := range params {
			var v *bool
			if err := json.Unmarshal(raw[d][p], &v); err != nil || v == nil {
				return nil, fmt.Errorf("%w: %s.%s is not a bool", ErrInvalidPayload, d, p)
			}
			writes = append(writes, Write{Device: d, Param: p, Value: *v, Source: src})
		}
	}
	return writes, nil
}

// FormatReport creates the JSON payload for one param report.
func FormatReport(device, param string, value bool) ([]byte, error) {
	return json.Marshal(Params{device: {param: value}})
}

// Alert is a user-facing notification.
type Alert struct {
	ID        string
	Message   string
	Timestamp time.Time
}

// NewAlert stamps message with a fresh ULID.
func NewAlert(message string, now time.Time) Alert {
	return Alert{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Message:   message,
		Timestamp: now,
	}
}

// AlertPayload is the wire shape of an alert.
type AlertPayload struct {
	Alert AlertPayloadInner `json:"alert"`
}

// AlertPayloadInner contains the alert details.
type AlertPayloadInner struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// FormatAlert creates the JSON payload for an alert.
func FormatAlert(a Alert) ([]byte, error) {
	return json.Marshal(AlertPayload{Alert: AlertPayloadInner{
		ID:        a.ID,
		Message:   a.Message,
		Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
	}})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
