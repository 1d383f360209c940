package button

import (
	"sync"
	"time"
)

// Registration records one OnHeld call on a FakeService.
type Registration struct {
	Pin       int
	Kind      Kind
	Threshold time.Duration
	Callback  func(Event)
}

// FakeService is a test double that records registrations and lets tests
// fire button events by hand.
type FakeService struct {
	mu sync.Mutex

	// Registrations contains every successful OnHeld call.
	Registrations []Registration

	// RegisterError, if set, is returned by OnHeld and nothing is recorded.
	RegisterError error
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{}
}

// OnHeld records the registration.
func (f *FakeService) OnHeld(pin int, kind Kind, threshold time.Duration, cb func(Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterError != nil {
		return f.RegisterError
	}
	f.Registrations = append(f.Registrations, Registration{Pin: pin, Kind: kind, Threshold: threshold, Callback: cb})
	return nil
}

// Fire behaves like a real service: it invokes every callback on pin for
// kind whose threshold is met by held. Returns the number of callbacks run.
func (f *FakeService) Fire(pin int, kind Kind, held time.Duration) int {
	ev := Event{Pin: pin, Kind: kind, Held: held, Time: time.Now()}
	n := 0
	for _, r := range f.matching(pin, kind) {
		if held >= r.Threshold {
			r.Callback(ev)
			n++
		}
	}
	return n
}

// Emit invokes every callback on ev.Pin for ev.Kind regardless of threshold.
func (f *FakeService) Emit(ev Event) int {
	regs := f.matching(ev.Pin, ev.Kind)
	for _, r := range regs {
		r.Callback(ev)
	}
	return len(regs)
}

func (f *FakeService) matching(pin int, kind Kind) []Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Registration
	for _, r := range f.Registrations {
		if r.Pin == pin && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
