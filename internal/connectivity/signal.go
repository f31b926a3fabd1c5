// Package connectivity tracks whether the remote API is reachable.
//
// A Signal holds the current online/offline state and notifies subscribers
// on transitions only. Repeating the current state is not a transition.
// Sources of state include a watched status file (see Watcher) and
// front ends connected to the event feed.
package connectivity

import (
	"fmt"
	"strings"
	"sync"
)

// State is an online or offline reading.
type State bool

const (
	Offline State = false
	Online  State = true
)

func (s State) String() string {
	if s {
		return "online"
	}
	return "offline"
}

// ParseState parses "online" or "offline", ignoring case and surrounding
// whitespace. "1"/"true" and "0"/"false" are accepted too.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online", "true", "1", "up":
		return Online, nil
	case "offline", "false", "0", "down":
		return Offline, nil
	default:
		return Offline, fmt.Errorf("invalid connectivity state %q", s)
	}
}

// Signal is an edge-triggered online/offline flag.
type Signal struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]chan State
}

// NewSignal creates a Signal in the given initial state.
func NewSignal(initial State) *Signal {
	return &Signal{
		state: initial,
		subs:  make(map[int]chan State),
	}
}

// State returns the current state.
func (s *Signal) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Online reports whether the current state is Online.
func (s *Signal) Online() bool {
	return s.State() == Online
}

// Set records a reading. It returns true, and notifies subscribers, only
// when the reading differs from the current state.
func (s *Signal) Set(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == s.state {
		return false
	}
	s.state = state

	for _, ch := range s.subs {
		// Subscribers only need the latest state; replace an unread one.
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
	return true
}

// Subscribe returns a channel that receives each new state and a function
// that cancels the subscription and closes the channel. A slow subscriber
// sees only the most recent transition.
func (s *Signal) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}
