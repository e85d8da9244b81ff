package connectivity

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
)

// State is the monitor's view of reachability.
type State int

const (
	// Offline means the server is not reachable.
	Offline State = iota
	// Online means the server is reachable.
	Online
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case Online:
		return "online"
	default:
		return "unknown"
	}
}

func stateOf(online bool) State {
	if online {
		return Online
	}
	return Offline
}

// Target is the sync engine side of the monitor.
type Target interface {
	SetOnline(online bool)
	PendingCount() int
	TriggerSync(ctx context.Context)
}

// Notifier receives the outward notifications.
type Notifier interface {
	Online(pending int)
	Offline()
}

// Monitor applies reachability edges to a Target.
//
// Only transitions act: a reconnect records the new state, announces the
// number of pending actions and starts a sync round in the background; a
// disconnect records the state and announces it. Repeated signals in the
// current state are ignored.
type Monitor struct {
	source   Source
	target   Target
	notifier Notifier
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor. notifier may be nil. A nil logger writes to
// stderr.
func NewMonitor(source Source, target Target, notifier Notifier, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	return &Monitor{
		source:   source,
		target:   target,
		notifier: notifier,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start takes the initial state from the source and follows its signals
// until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor already running")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.state = stateOf(m.source.Online())
	m.target.SetOnline(m.state == Online)
	m.running = true

	m.logger.Printf("Starting connectivity monitor (%s)", m.state)

	m.wg.Add(1)
	go m.follow(m.ctx)
	return nil
}

// Stop ends signal processing and waits for any sync round the monitor
// started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// IsRunning returns true if the monitor is following its source.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOnline returns true if the current state is Online.
func (m *Monitor) IsOnline() bool {
	return m.State() == Online
}

// Handle applies one reachability report. It returns true if the report
// changed the state.
func (m *Monitor) Handle(online bool) bool {
	next := stateOf(online)

	m.mu.Lock()
	if next == m.state {
		m.mu.Unlock()
		return false
	}
	m.state = next
	// The target flips with the state so the two never disagree.
	m.target.SetOnline(online)
	ctx := m.ctx
	m.mu.Unlock()

	if !online {
		m.logger.Printf("Connection lost")
		if m.notifier != nil {
			m.notifier.Offline()
		}
		return true
	}

	pending := m.target.PendingCount()
	m.logger.Printf("Connection restored, %d pending actions", pending)
	if m.notifier != nil {
		m.notifier.Online(pending)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.target.TriggerSync(ctx)
	}()
	return true
}

func (m *Monitor) follow(ctx context.Context) {
	defer m.wg.Done()

	signals := m.source.Signals()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.Handle(sig.Online)
		}
	}
}
