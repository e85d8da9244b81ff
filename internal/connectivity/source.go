// Package connectivity tracks whether the task server is reachable and
// turns reachability changes into sync triggers and notifications.
//
// A Source reports raw reachability. The Monitor collapses repeated reports
// into Offline/Online edges: going online starts a sync round and announces
// the pending-action count; going offline only announces it.
package connectivity

import (
	"sync"
	"time"
)

// Signal is one reachability report from a Source.
type Signal struct {
	Online bool
	At     time.Time
}

// Source reports platform reachability.
type Source interface {
	// Online returns the current reachability.
	Online() bool

	// Signals emits a Signal whenever the source observes a change. A
	// source may emit the same state repeatedly.
	Signals() <-chan Signal
}

// ManualSource is a Source driven by explicit Set calls, for tests and for
// commands that already know the answer.
type ManualSource struct {
	mu      sync.Mutex
	online  bool
	signals chan Signal
}

// NewManualSource creates a source in the given state.
func NewManualSource(online bool) *ManualSource {
	return &ManualSource{
		online:  online,
		signals: make(chan Signal, 16),
	}
}

// Online implements Source.
func (s *ManualSource) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Signals implements Source.
func (s *ManualSource) Signals() <-chan Signal {
	return s.signals
}

// Set records the state and emits a signal. It blocks once 16 signals are
// waiting unread.
func (s *ManualSource) Set(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()

	s.signals <- Signal{Online: online, At: time.Now()}
}
