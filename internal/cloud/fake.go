package cloud

import (
	"errors"
	"sync"
	"time"
)

// Report is one param report recorded by FakeChannel.
type Report struct {
	Device string
	Param  string
	Value  bool
}

// FakeChannel records published messages for test assertions.
// Safe for concurrent use.
type FakeChannel struct {
	mu sync.Mutex

	// Reports contains all param reports that were published.
	Reports []Report

	// Alerts contains all alert messages that were published.
	Alerts []string

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// ReportError, if set, will be returned by Report.
	ReportError error

	// AlertError, if set, will be returned by RaiseAlert.
	AlertError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Limiter, if set, rate limits RaiseAlert like the real channel.
	Limiter *AlertLimiter

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Reconnects counts Reconnect calls.
	Reconnects int

	handler WriteHandler
}

// NewFakeChannel creates a FakeChannel for testing.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{Connected: true}
}

// Subscribe records the handler.
func (f *FakeChannel) Subscribe(h WriteHandler) error {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return nil
}

// Inject delivers a remote write to the subscribed handler.
func (f *FakeChannel) Inject(w Write) error {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return errors.New("no handler subscribed")
	}
	if w.Source == "" {
		w.Source = SourceCloud
	}
	return h(w)
}

// InjectPayload decodes payload like the real channel and delivers each write.
// Returns the first handler error.
func (f *FakeChannel) InjectPayload(payload []byte) error {
	writes, err := DecodeWrites(payload, SourceCloud)
	if err != nil {
		return err
	}
	var first error
	for _, w := range writes {
		if err := f.Inject(w); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Report records the report.
func (f *FakeChannel) Report(device, param string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReportError != nil {
		return f.ReportError
	}
	f.Reports = append(f.Reports, Report{Device: device, Param: param, Value: value})
	return nil
}

// RaiseAlert records the alert.
func (f *FakeChannel) RaiseAlert(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AlertError != nil {
		return f.AlertError
	}
	if !f.Limiter.Allow(time.Now()) {
		return ErrAlertRateLimited
	}
	f.Alerts = append(f.Alerts, message)
	return nil
}

// PublishSystem records the system event.
func (f *FakeChannel) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// Close marks the channel as closed.
func (f *FakeChannel) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake channel is "connected".
func (f *FakeChannel) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reconnect counts the call.
func (f *FakeChannel) Reconnect() error {
	f.mu.Lock()
	f.Reconnects++
	f.mu.Unlock()
	return nil
}

// ReportsFor returns the reports recorded for device/param.
func (f *FakeChannel) ReportsFor(device, param string) []Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Report
	for _, r := range f.Reports {
		if r.Device == device && r.Param == param {
			out = append(out, r)
		}
	}
	return out
}

// AlertCount returns the number of alerts recorded.
func (f *FakeChannel) AlertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Alerts)
}

// EventNames returns the names of recorded system events in order.
func (f *FakeChannel) EventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded messages.
func (f *FakeChannel) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reports = nil
	f.Alerts = nil
	f.SystemEvents = nil
	f.ReportError = nil
	f.AlertError = nil
	f.PublishSystemError = nil
	f.Closed = false
	f.Reconnects = 0
}
