package logic

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-node/internal/gpio"
)

func relaySpecs() []OutputSpec {
	return []OutputSpec{
		{Name: "Relay1", Pin: 2},
		{Name: "Relay2", Pin: 4},
	}
}

func newTestDispatcher(t *testing.T, specs []OutputSpec) (*Dispatcher, *gpio.FakePins) {
	t.Helper()
	pins := gpio.NewFakePins()
	d, err := NewDispatcher(pins, specs)
	require.NoError(t, err)
	require.NoError(t, d.Init())
	return d, pins
}

func TestDispatcherInitDrivesDefaults(t *testing.T) {
	specs := []OutputSpec{
		{Name: "A", Pin: 2, Default: false},
		{Name: "B", Pin: 4, Default: true},
		{Name: "C", Pin: 5, ActiveLow: true, Default: false},
	}
	_, pins := newTestDispatcher(t, specs)

	for pin, want := range map[int]bool{2: false, 4: true, 5: true} {
		got, ok := pins.Level(pin)
		require.True(t, ok, "pin %d not configured", pin)
		assert.Equal(t, want, got, "pin %d level", pin)
		assert.True(t, pins.Outputs[pin], "pin %d should be an output", pin)
	}
	assert.Zero(t, pins.WriteCount(), "init configures, it does not write")
}

func TestDispatcherSetOutputTouchesOnlyItsPin(t *testing.T) {
	d, pins := newTestDispatcher(t, relaySpecs())

	require.NoError(t, d.SetOutput("Relay1", true))

	assert.Equal(t, []gpio.Write{{Pin: 2, Level: true}}, pins.Writes)
	assert.Empty(t, pins.WritesTo(4))
}

// Setting Relay1 must never drive Relay2's pin as well.
func TestDispatcherRelay1DoesNotFallThrough(t *testing.T) {
	d, pins := newTestDispatcher(t, relaySpecs())

	require.NoError(t, d.SetOutput("Relay1", true))
	require.NoError(t, d.SetOutput("Relay1", false))
	require.NoError(t, d.SetOutput("Relay2", true))

	assert.Equal(t, []gpio.Write{{Pin: 2, Level: true}, {Pin: 2, Level: false}}, pins.WritesTo(2))
	assert.Equal(t, []gpio.Write{{Pin: 4, Level: true}}, pins.WritesTo(4))

	on, err := d.Output("Relay1")
	require.NoError(t, err)
	assert.False(t, on)
	on, err = d.Output("Relay2")
	require.NoError(t, err)
	assert.True(t, on)
}

func TestDispatcherUnknownNameWritesNothing(t *testing.T) {
	d, pins := newTestDispatcher(t, relaySpecs())

	err := d.SetOutput("Relay3", true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "Relay3")
	assert.Zero(t, pins.WriteCount())

	_, err = d.Output("Relay3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatcherNamesAreCaseSensitive(t *testing.T) {
	d, pins := newTestDispatcher(t, relaySpecs())

	assert.ErrorIs(t, d.SetOutput("relay1", true), ErrNotFound)
	assert.Zero(t, pins.WriteCount())
}

func TestDispatcherActiveLow(t *testing.T) {
	d, pins := newTestDispatcher(t, []OutputSpec{{Name: "Lamp", Pin: 7, ActiveLow: true}})

	require.NoError(t, d.SetOutput("Lamp", true))
	require.NoError(t, d.SetOutput("Lamp", false))

	assert.Equal(t, []gpio.Write{{Pin: 7, Level: false}, {Pin: 7, Level: true}}, pins.Writes)
}

func TestDispatcherRepeatedWritesAreIdempotent(t *testing.T) {
	d, pins := newTestDispatcher(t, relaySpecs())

	require.NoError(t, d.SetOutput("Relay2", true))
	require.NoError(t, d.SetOutput("Relay2", true))

	level, _ := pins.Level(4)
	assert.True(t, level)
	on, _ := d.Output("Relay2")
	assert.True(t, on)
}

func TestDispatcherWriteErrorKeepsState(t *testing.T) {
	d, pins := newTestDispatcher(t, relaySpecs())
	pins.WriteError = errors.New("bus error")

	err := d.SetOutput("Relay1", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus error")

	on, _ := d.Output("Relay1")
	assert.False(t, on)
}

func TestNewDispatcherValidation(t *testing.T) {
	tests := []struct {
		name  string
		specs []OutputSpec
		want  string
	}{
		{"empty name", []OutputSpec{{Pin: 2}}, "no name"},
		{"duplicate name", []OutputSpec{{Name: "A", Pin: 2}, {Name: "A", Pin: 3}}, "duplicate output name"},
		{"shared pin", []OutputSpec{{Name: "A", Pin: 2}, {Name: "B", Pin: 2}}, "share pin 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(gpio.NewFakePins(), tt.specs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDispatcherInitFailure(t *testing.T) {
	pins := gpio.NewFakePins()
	pins.FailPins[4] = errors.New("line busy")

	d, err := NewDispatcher(pins, relaySpecs())
	require.NoError(t, err)

	err = d.Init()
	var hwErr *HardwareInitError
	require.ErrorAs(t, err, &hwErr)
	assert.Equal(t, 4, hwErr.Pin)
	assert.Contains(t, hwErr.Error(), "line busy")
}

func TestDispatcherNamesSorted(t *testing.T) {
	d, _ := newTestDispatcher(t, []OutputSpec{{Name: "b", Pin: 1}, {Name: "a", Pin: 2}, {Name: "c", Pin: 3}})
	assert.Equal(t, []string{"a", "b", "c"}, d.Names())

	s, ok := d.Spec("c")
	require.True(t, ok)
	assert.Equal(t, 3, s.Pin)
}

func TestDispatcherConcurrentWrites(t *testing.T) {
	d, pins := newTestDispatcher(t, relaySpecs())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			_ = d.SetOutput("Relay1", v)
		}(i%2 == 0)
		go func(v bool) {
			defer wg.Done()
			_ = d.SetOutput("Relay2", v)
		}(i%2 == 1)
	}
	wg.Wait()

	assert.Equal(t, 100, pins.WriteCount())
	assert.Len(t, pins.WritesTo(2), 50)
	assert.Len(t, pins.WritesTo(4), 50)
}
