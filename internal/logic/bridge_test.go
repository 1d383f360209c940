package logic

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-node/internal/button"
)

const sensorPin = 0

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) RaiseAlert(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func followConfig() BridgeConfig {
	return BridgeConfig{
		Mode:             ModeFollow,
		PushThreshold:    3 * time.Second,
		ReleaseThreshold: 3 * time.Second,
		EnteredMessage:   "Someone entered the room",
		ClearedMessage:   "The room is empty",
	}
}

func newTestBridge(t *testing.T, cfg BridgeConfig) (*Bridge, *Store, *recordingNotifier, *button.FakeService) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := NewStore(false, nil)
	notify := &recordingNotifier{}
	b := NewBridge(cfg, store, notify, logger)
	svc := button.NewFakeService()
	require.NoError(t, b.Install(svc, sensorPin))
	return b, store, notify, svc
}

func TestBridgeInstallRegistersBothEdges(t *testing.T) {
	_, _, _, svc := newTestBridge(t, followConfig())

	require.Len(t, svc.Registrations, 2)
	assert.Equal(t, button.Press, svc.Registrations[0].Kind)
	assert.Equal(t, button.Release, svc.Registrations[1].Kind)
	assert.Equal(t, 3*time.Second, svc.Registrations[0].Threshold)
}

func TestBridgeInstallToggleRegistersPressOnly(t *testing.T) {
	cfg := followConfig()
	cfg.Mode = ModeToggle
	_, _, _, svc := newTestBridge(t, cfg)

	require.Len(t, svc.Registrations, 1)
	assert.Equal(t, button.Press, svc.Registrations[0].Kind)
}

func TestBridgeInstallFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	b := NewBridge(followConfig(), NewStore(false, nil), nil, logger)
	svc := button.NewFakeService()
	svc.RegisterError = errors.New("no such line")

	err := b.Install(svc, 9)
	var hwErr *HardwareInitError
	require.ErrorAs(t, err, &hwErr)
	assert.Equal(t, "button", hwErr.Component)
	assert.Equal(t, 9, hwErr.Pin)
}

func TestBridgeFollowCycle(t *testing.T) {
	b, store, notify, svc := newTestBridge(t, followConfig())
	assert.Equal(t, StateIdle, b.State())

	svc.Fire(sensorPin, button.Press, 3*time.Second)
	assert.Equal(t, StateActive, b.State())
	assert.True(t, store.Get())

	svc.Fire(sensorPin, button.Release, 4*time.Second)
	assert.Equal(t, StateIdle, b.State())
	assert.False(t, store.Get())

	assert.Equal(t, []string{"Someone entered the room", "The room is empty"}, notify.messages)
}

func TestBridgeRepeatedPressAlertsOnce(t *testing.T) {
	b, _, notify, _ := newTestBridge(t, followConfig())

	ev := button.Event{Pin: sensorPin, Kind: button.Press, Held: 5 * time.Second, Time: time.Now()}
	b.Handle(ev)
	b.Handle(ev)
	b.Handle(ev)

	assert.Equal(t, 1, notify.count())
	assert.Equal(t, StateActive, b.State())
}

func TestBridgeReleaseWhileIdleDoesNothing(t *testing.T) {
	b, _, notify, _ := newTestBridge(t, followConfig())

	b.Handle(button.Event{Pin: sensorPin, Kind: button.Release, Held: 5 * time.Second})

	assert.Zero(t, notify.count())
	assert.Equal(t, StateIdle, b.State())
}

func TestBridgeIgnoresBelowThreshold(t *testing.T) {
	b, store, notify, svc := newTestBridge(t, followConfig())

	// Service thresholds filter this already.
	assert.Zero(t, svc.Fire(sensorPin, button.Press, 2*time.Second))

	// Emit bypasses the service filter; the bridge checks again.
	svc.Emit(button.Event{Pin: sensorPin, Kind: button.Press, Held: 2999 * time.Millisecond})
	assert.False(t, store.Get())

	b.Handle(button.Event{Pin: sensorPin, Kind: button.Press, Held: 3 * time.Second})
	svc.Emit(button.Event{Pin: sensorPin, Kind: button.Release, Held: time.Second})
	assert.True(t, store.Get(), "short release must not clear")
	assert.Equal(t, 1, notify.count())
}

func TestBridgeCloudWriteSuppressesAlert(t *testing.T) {
	b, store, notify, svc := newTestBridge(t, followConfig())

	// State moved by a cloud write; the bridge sees it through the store.
	changed, err := store.Set(true)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, StateActive, b.State())

	svc.Fire(sensorPin, button.Press, 3*time.Second)
	assert.Zero(t, notify.count(), "no transition, no alert")
}

func TestBridgeEmptyMessagesSkipAlert(t *testing.T) {
	cfg := followConfig()
	cfg.EnteredMessage = ""
	cfg.ClearedMessage = ""
	_, store, notify, svc := newTestBridge(t, cfg)

	svc.Fire(sensorPin, button.Press, 3*time.Second)
	assert.True(t, store.Get())
	assert.Zero(t, notify.count())
}

func TestBridgeAlertFailureKeepsState(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := NewStore(false, nil)
	notify := &recordingNotifier{err: errors.New("offline")}
	b := NewBridge(followConfig(), store, notify, logger)

	b.Handle(button.Event{Pin: sensorPin, Kind: button.Press, Held: 3 * time.Second})

	assert.True(t, store.Get())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "alert not sent", hook.LastEntry().Message)
}

func TestBridgeToggleMode(t *testing.T) {
	cfg := followConfig()
	cfg.Mode = ModeToggle
	cfg.PushThreshold = 0
	_, store, notify, svc := newTestBridge(t, cfg)

	svc.Fire(sensorPin, button.Press, 0)
	assert.True(t, store.Get())
	svc.Fire(sensorPin, button.Release, time.Second)
	assert.True(t, store.Get(), "release is ignored in toggle mode")
	svc.Fire(sensorPin, button.Press, 0)
	assert.False(t, store.Get())
	assert.Zero(t, notify.count())
}

// A button press racing a cloud write to the same value yields exactly one
// change notification.
func TestBridgeRaceWithCloudWrite(t *testing.T) {
	for round := 0; round < 20; round++ {
		b, store, notify, _ := newTestBridge(t, followConfig())

		var mu sync.Mutex
		hooks := 0
		store.OnChange(func(bool, bool) {
			mu.Lock()
			hooks++
			mu.Unlock()
		})

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			b.Handle(button.Event{Pin: sensorPin, Kind: button.Press, Held: 3 * time.Second})
		}()
		go func() {
			defer wg.Done()
			<-start
			_, _ = store.Set(true)
		}()
		close(start)
		wg.Wait()

		assert.Equal(t, 1, hooks)
		assert.LessOrEqual(t, notify.count(), 1)
		assert.True(t, store.Get())
	}
}
