package logic

import "sync"

// Actuator applies a new logical state to hardware. It runs before the
// stored value changes; an error leaves the store untouched.
type Actuator func(on bool) error

// ChangeHook is called once per actual state change, under the store lock.
// Hooks must not call back into the same store.
type ChangeHook func(old, new bool)

// Store holds the last desired state of one logical device and acts only on
// change. Cloud writes and button events both mutate it, so every
// compare-and-set happens under mu.
type Store struct {
	mu      sync.Mutex
	state   bool
	actuate Actuator
	hooks   []ChangeHook
}

// NewStore creates a store holding initial. actuate may be nil.
func NewStore(initial bool, actuate Actuator) *Store {
	return &Store{state: initial, actuate: actuate}
}

// OnChange registers a hook. Register hooks before the store is shared.
func (s *Store) OnChange(h ChangeHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Set stores newState. It is a no-op returning (false, nil) when newState
// equals the current value.
func (s *Store) Set(newState bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(newState)
}

// Toggle flips the state and returns the new value.
func (s *Store) Toggle() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := !s.state
	if _, err := s.setLocked(next); err != nil {
		return s.state, err
	}
	return next, nil
}

// Get returns the current state.
func (s *Store) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) setLocked(newState bool) (bool, error) {
	if newState == s.state {
		return false, nil
	}
	if s.actuate != nil {
		if err := s.actuate(newState); err != nil {
			return false, err
		}
	}
	old := s.state
	s.state = newState
	for _, h := range s.hooks {
		h(old, newState)
	}
	return true, nil
}
