// Package lifecycle carries the foreground/background state of the app.
package lifecycle

import "sync"

type State string

const (
	Active     State = "active"
	Inactive   State = "inactive"
	Background State = "background"
)

// Signal broadcasts state transitions. Repeating the current state is not a
// transition and is not delivered.
type Signal struct {
	mu    sync.Mutex
	state State

	notifyMu sync.Mutex
	subs     map[int]func(State)
	nextID   int
}

// NewSignal starts in Active.
func NewSignal() *Signal {
	return &Signal{state: Active, subs: make(map[int]func(State))}
}

func (s *Signal) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set moves to next and reports whether it was a transition.
func (s *Signal) Set(next State) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()

	for _, fn := range s.subs {
		fn(next)
	}
	return true
}

func (s *Signal) Subscribe(fn func(State)) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.subs, id)
	}
}
