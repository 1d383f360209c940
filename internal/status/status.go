// Package status provides a thread-safe status tracker for the gpio-node daemon.
// It is read by HTTP handlers and by the heartbeat publisher.
package status

import (
	"sort"
	"sync"
	"time"
)

// NetworkInfo contains network state as reported by the Pi helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	NodeID      string
	Broker      string
	LocalBroker string // embedded broker address (empty = disabled)
	HTTPAddr    string
	GPIOBackend string
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
}

// ParamState is the current value of one device param.
type ParamState struct {
	Device   string
	Kind     string // relay, switch, sensor
	Param    string
	Value    bool
	ReadOnly bool
}

// Counts are running totals since startup.
type Counts struct {
	Writes        int // applied writes, cloud and local
	DroppedWrites int // unknown or read-only targets
	Reports       int
	Alerts        int
	ButtonEvents  int
}

// Snapshot is a point-in-time view of daemon state.
// It shares no memory with the tracker.
type Snapshot struct {
	NodeID        string
	Params        []ParamState
	Buttons       map[string]bool // device -> bridge installed
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Param looks up one param in the snapshot.
func (s Snapshot) Param(device, param string) (ParamState, bool) {
	for _, p := range s.Params {
		if p.Device == device && p.Param == param {
			return p, true
		}
	}
	return ParamState{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			NodeID:    cfg.NodeID,
			Buttons:   make(map[string]bool),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetParams replaces the param table, ordered by device then param.
func (t *Tracker) SetParams(params []ParamState) {
	sorted := append([]ParamState(nil), params...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Device != sorted[j].Device {
			return sorted[i].Device < sorted[j].Device
		}
		return sorted[i].Param < sorted[j].Param
	})

	t.mu.Lock()
	t.snap.Params = sorted
	t.mu.Unlock()
}

// SetParam updates the value of a known param. Unknown params are ignored.
func (t *Tracker) SetParam(device, param string, value bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.Params {
		p := &t.snap.Params[i]
		if p.Device == device && p.Param == param {
			p.Value = value
			return
		}
	}
}

// SetButton records whether the button bridge of device is installed.
func (t *Tracker) SetButton(device string, installed bool) {
	t.mu.Lock()
	t.snap.Buttons[device] = installed
	t.mu.Unlock()
}

func (t *Tracker) IncWrites() {
	t.mu.Lock()
	t.snap.Counts.Writes++
	t.mu.Unlock()
}

func (t *Tracker) IncDroppedWrites() {
	t.mu.Lock()
	t.snap.Counts.DroppedWrites++
	t.mu.Unlock()
}

func (t *Tracker) IncReports() {
	t.mu.Lock()
	t.snap.Counts.Reports++
	t.mu.Unlock()
}

func (t *Tracker) IncAlerts() {
	t.mu.Lock()
	t.snap.Counts.Alerts++
	t.mu.Unlock()
}

func (t *Tracker) IncButtonEvents() {
	t.mu.Lock()
	t.snap.Counts.ButtonEvents++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Params = append([]ParamState(nil), t.snap.Params...)
	s.Buttons = make(map[string]bool, len(t.snap.Buttons))
	for k, v := range t.snap.Buttons {
		s.Buttons[k] = v
	}
	if t.snap.Network != nil {
		n := *t.snap.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
