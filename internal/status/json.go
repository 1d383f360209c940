package status

import (
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	NodeID        string       `json:"node_id"`
	Devices       []DeviceJSON `json:"devices"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// DeviceJSON groups the params of one device.
type DeviceJSON struct {
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Button *bool           `json:"button_installed,omitempty"`
	Params map[string]bool `json:"params"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the running counters.
type CountsJSON struct {
	Writes        int `json:"writes"`
	DroppedWrites int `json:"dropped_writes"`
	Reports       int `json:"reports"`
	Alerts        int `json:"alerts"`
	ButtonEvents  int `json:"button_events"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	LocalBroker string `json:"local_broker,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	GPIOBackend string `json:"gpio_backend"`
}

// Devices groups the snapshot params by device, in device order.
func Devices(snap Snapshot) []DeviceJSON {
	byName := make(map[string]*DeviceJSON)
	var names []string
	for _, p := range snap.Params {
		d, ok := byName[p.Device]
		if !ok {
			d = &DeviceJSON{Name: p.Device, Kind: p.Kind, Params: make(map[string]bool)}
			if installed, known := snap.Buttons[p.Device]; known {
				v := installed
				d.Button = &v
			}
			byName[p.Device] = d
			names = append(names, p.Device)
		}
		d.Params[p.Param] = p.Value
	}
	sort.Strings(names)

	out := make([]DeviceJSON, 0, len(names))
	for _, n := range names {
		out = append(out, *byName[n])
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		NodeID:        snap.NodeID,
		Devices:       Devices(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Writes:        snap.Counts.Writes,
			DroppedWrites: snap.Counts.DroppedWrites,
			Reports:       snap.Counts.Reports,
			Alerts:        snap.Counts.Alerts,
			ButtonEvents:  snap.Counts.ButtonEvents,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			LocalBroker: snap.Config.LocalBroker,
			HTTPAddr:    snap.Config.HTTPAddr,
			GPIOBackend: snap.Config.GPIOBackend,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
