package button

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LevelReader reads raw input levels. true = high.
type LevelReader interface {
	ConfigureInput(pin int, pullUp bool) error
	ReadLevel(pin int) (bool, error)
}

// Poller implements Service by sampling input pins on a ticker.
// A level change is accepted once it has been observed for the debounce
// duration; hold times are measured from the first sample of the new level.
type Poller struct {
	reader   LevelReader
	debounce time.Duration
	log      logrus.FieldLogger

	mu        sync.Mutex
	activeLow map[int]bool
	pins      map[int]*pinState
}

type pinState struct {
	activeLow bool

	baselined    bool
	active       bool      // stable (debounced) logical level
	since        time.Time // when the stable level began
	pending      bool
	hasPending   bool
	pendingSince time.Time

	handlers []*handler
}

type handler struct {
	kind      Kind
	threshold time.Duration
	cb        func(Event)
	fired     bool // press handlers fire once per hold
}

// NewPoller creates a poller. Pins default to active-low with pull-up, the
// usual wiring for a push-button to ground.
func NewPoller(reader LevelReader, debounce time.Duration, log logrus.FieldLogger) *Poller {
	return &Poller{
		reader:    reader,
		debounce:  debounce,
		log:       log,
		activeLow: make(map[int]bool),
		pins:      make(map[int]*pinState),
	}
}

// SetActiveLow sets the polarity used when pin is first registered.
func (p *Poller) SetActiveLow(pin int, activeLow bool) {
	p.mu.Lock()
	p.activeLow[pin] = activeLow
	p.mu.Unlock()
}

// OnHeld registers cb for kind on pin. The first registration on a pin
// configures it as an input.
func (p *Poller) OnHeld(pin int, kind Kind, threshold time.Duration, cb func(Event)) error {
	if cb == nil {
		return fmt.Errorf("pin %d: nil callback", pin)
	}
	if threshold < 0 {
		return fmt.Errorf("pin %d: negative threshold %v", pin, threshold)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.pins[pin]
	if !ok {
		activeLow, set := p.activeLow[pin]
		if !set {
			activeLow = true
		}
		if err := p.reader.ConfigureInput(pin, activeLow); err != nil {
			return fmt.Errorf("configure button pin %d: %w", pin, err)
		}
		st = &pinState{activeLow: activeLow}
		p.pins[pin] = st
	}
	st.handlers = append(st.handlers, &handler{kind: kind, threshold: threshold, cb: cb})
	return nil
}

// Pins returns the registered pins in ascending order.
func (p *Poller) Pins() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pins := make([]int, 0, len(p.pins))
	for pin := range p.pins {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// Run samples every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			p.Sample(t)
		}
	}
}

// Sample reads every registered pin once and fires due callbacks.
// Callbacks run after the poller lock is released.
func (p *Poller) Sample(now time.Time) {
	var due []func()

	p.mu.Lock()
	for pin, st := range p.pins {
		raw, err := p.reader.ReadLevel(pin)
		if err != nil {
			p.log.WithField("pin", pin).WithError(err).Warn("button read failed")
			continue
		}
		active := raw != st.activeLow
		due = append(due, st.process(pin, active, now, p.debounce)...)
	}
	p.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// process applies one sample and returns the callbacks to run.
func (st *pinState) process(pin int, active bool, now time.Time, debounce time.Duration) []func() {
	var due []func()

	changedAt, changed := st.observe(active, now, debounce)
	if changed {
		if st.active {
			for _, h := range st.handlers {
				h.fired = false
			}
		} else {
			held := changedAt.Sub(st.since)
			for _, h := range st.handlers {
				if h.kind == Release && held >= h.threshold {
					due = append(due, bind(h.cb, Event{Pin: pin, Kind: Release, Held: held, Time: changedAt}))
				}
			}
		}
		st.since = changedAt
	}

	if st.baselined && st.active {
		held := now.Sub(st.since)
		for _, h := range st.handlers {
			if h.kind == Press && !h.fired && held >= h.threshold {
				h.fired = true
				due = append(due, bind(h.cb, Event{Pin: pin, Kind: Press, Held: held, Time: now}))
			}
		}
	}
	return due
}

// observe runs the debounce bookkeeping. It reports a transition of the
// stable level and the time the new level was first seen. Establishing the
// baseline is not a transition.
func (st *pinState) observe(active bool, now time.Time, debounce time.Duration) (time.Time, bool) {
	if st.baselined && active == st.active {
		st.hasPending = false
		return time.Time{}, false
	}

	if !st.hasPending || st.pending != active {
		st.pending = active
		st.pendingSince = now
		st.hasPending = true
	}
	if now.Sub(st.pendingSince) < debounce {
		return time.Time{}, false
	}

	at := st.pendingSince
	st.hasPending = false
	if !st.baselined {
		st.baselined = true
		st.active = active
		st.since = at
		return time.Time{}, false
	}
	st.active = active
	return at, true
}

func bind(cb func(Event), ev Event) func() {
	return func() { cb(ev) }
}
