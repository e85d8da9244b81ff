package connectivity

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fakeTarget struct {
	mu       sync.Mutex
	online   []bool
	pending  int
	triggers chan struct{}
}

func newFakeTarget(pending int) *fakeTarget {
	return &fakeTarget{pending: pending, triggers: make(chan struct{}, 16)}
}

func (f *fakeTarget) SetOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, online)
}

func (f *fakeTarget) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeTarget) TriggerSync(ctx context.Context) {
	f.triggers <- struct{}{}
}

func (f *fakeTarget) States() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.online...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Online(pending int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "online")
}

func (n *fakeNotifier) Offline() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "offline")
}

func (n *fakeNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Offline, "offline"},
		{Online, "online"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestMonitor_HandleIsEdgeTriggered(t *testing.T) {
	target := newFakeTarget(3)
	notifier := &fakeNotifier{}
	m := NewMonitor(NewManualSource(false), target, notifier, quietLogger())

	steps := []struct {
		online      bool
		wantChanged bool
	}{
		{online: false, wantChanged: false},
		{online: true, wantChanged: true},
		{online: true, wantChanged: false},
		{online: false, wantChanged: true},
		{online: false, wantChanged: false},
		{online: true, wantChanged: true},
	}
	for i, s := range steps {
		if got := m.Handle(s.online); got != s.wantChanged {
			t.Errorf("step %d: Handle(%v) = %v, want %v", i, s.online, got, s.wantChanged)
		}
	}

	want := []string{"online", "offline", "online"}
	got := notifier.Events()
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, got[i], want[i])
		}
	}

	// One sync per reconnect, none per disconnect.
	for i := 0; i < 2; i++ {
		select {
		case <-target.triggers:
		case <-time.After(2 * time.Second):
			t.Fatalf("sync %d not triggered", i+1)
		}
	}
	select {
	case <-target.triggers:
		t.Error("extra sync triggered")
	case <-time.After(20 * time.Millisecond):
	}

	if !m.IsOnline() {
		t.Error("IsOnline() = false after final reconnect")
	}
}

func TestMonitor_ConcurrentHandleKeepsTargetInStep(t *testing.T) {
	target := newFakeTarget(0)
	target.triggers = make(chan struct{}, 256)
	m := NewMonitor(NewManualSource(false), target, nil, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(online bool) {
			defer wg.Done()
			m.Handle(online)
		}(i%2 == 0)
	}
	wg.Wait()

	states := target.States()
	if len(states) == 0 {
		t.Fatal("target never told about a change")
	}
	if last := states[len(states)-1]; last != m.IsOnline() {
		t.Errorf("target online = %v, monitor online = %v", last, m.IsOnline())
	}
	for i := 1; i < len(states); i++ {
		if states[i] == states[i-1] {
			t.Fatalf("target saw %v twice in a row at %d", states[i], i)
		}
	}
}

func TestMonitor_OnlineCarriesPendingCount(t *testing.T) {
	target := newFakeTarget(7)
	var got atomic.Int64
	notifier := notifierFunc{online: func(pending int) { got.Store(int64(pending)) }}

	m := NewMonitor(NewManualSource(false), target, notifier, quietLogger())
	m.Handle(true)

	if got.Load() != 7 {
		t.Errorf("online notification pending = %d, want 7", got.Load())
	}
}

type notifierFunc struct {
	online func(int)
}

func (n notifierFunc) Online(pending int) { n.online(pending) }
func (n notifierFunc) Offline()           {}

func TestMonitor_FollowsSource(t *testing.T) {
	src := NewManualSource(true)
	target := newFakeTarget(0)
	m := NewMonitor(src, target, nil, quietLogger())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if m.State() != Online {
		t.Errorf("initial State() = %s, want online", m.State())
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	src.Set(false)
	waitFor(t, "offline", func() bool { return m.State() == Offline })

	src.Set(true)
	waitFor(t, "online", func() bool { return m.State() == Online })

	select {
	case <-target.triggers:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not trigger a sync")
	}

	states := target.States()
	want := []bool{true, false, true}
	if len(states) != len(want) {
		t.Fatalf("SetOnline calls = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("SetOnline call %d = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	m := NewMonitor(NewManualSource(false), newFakeTarget(0), nil, quietLogger())
	m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Stop()
	m.Stop()

	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestProbeSource(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := NewProbeSource(ProbeConfig{
		URL:      srv.URL,
		Interval: 10 * time.Millisecond,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewProbeSource() error = %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	if !p.Online() {
		t.Error("Online() = false after a healthy initial probe")
	}
	if sig := <-p.Signals(); !sig.Online {
		t.Error("first signal reports offline")
	}

	healthy.Store(false)
	select {
	case sig := <-p.Signals():
		if sig.Online {
			t.Error("signal after outage reports online")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no signal after the server went down")
	}
	if p.Online() {
		t.Error("Online() = true during outage")
	}
}

func TestProbeSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := NewProbeSource(ProbeConfig{URL: url, Timeout: 100 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if p.Check(context.Background()) {
		t.Error("Check() = true against a closed server")
	}
}

func TestNewProbeSource_RequiresURL(t *testing.T) {
	if _, err := NewProbeSource(ProbeConfig{}); err == nil {
		t.Error("NewProbeSource() without URL succeeded")
	}
}
