package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"

	"github.com/fieldops/fieldtask/internal/offline"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestHub(t *testing.T, status func() offline.SyncInfo) *Hub {
	t.Helper()
	return NewHub(&Config{Port: 0, Status: status, Logger: quietLogger()})
}

// recorder collects published messages.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) add(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) types() []MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MessageType, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

func TestHub_Subscribe(t *testing.T) {
	h := newTestHub(t, nil)
	rec := &recorder{}
	unsubscribe := h.Subscribe(rec.add)

	h.Online(4)
	h.Offline()
	h.SyncFinished(offline.SyncResult{Success: true, Message: "Sync completed successfully", SyncedCount: 2})
	h.SyncFinished(offline.SyncResult{Message: "Failed to fetch tasks from server", Err: offline.ErrNetwork})

	want := []MessageType{MessageTypeOnline, MessageTypeOffline, MessageTypeSyncComplete, MessageTypeSyncFailed}
	if diff := cmp.Diff(want, rec.types()); diff != "" {
		t.Errorf("published types mismatch (-want +got):\n%s", diff)
	}

	var online OnlineData
	if err := json.Unmarshal(rec.msgs[0].Data, &online); err != nil {
		t.Fatalf("online data: %v", err)
	}
	if online.PendingCount != 4 {
		t.Errorf("PendingCount = %d, want 4", online.PendingCount)
	}

	var failed SyncData
	if err := json.Unmarshal(rec.msgs[3].Data, &failed); err != nil {
		t.Fatalf("sync data: %v", err)
	}
	if failed.Error != offline.ErrNetwork.Error() {
		t.Errorf("Error = %q, want %q", failed.Error, offline.ErrNetwork.Error())
	}

	unsubscribe()
	h.Offline()
	if got := len(rec.types()); got != 4 {
		t.Errorf("received %d messages after unsubscribe, want 4", got)
	}
}

func TestHub_RoutineRejectionsAreQuiet(t *testing.T) {
	h := newTestHub(t, nil)
	rec := &recorder{}
	h.Subscribe(rec.add)

	h.SyncFinished(offline.SyncResult{Message: "No network connection", Err: offline.ErrNoConnectivity})
	h.SyncFinished(offline.SyncResult{Message: "Sync already in progress", Err: offline.ErrSyncInProgress})

	if got := rec.types(); len(got) != 0 {
		t.Errorf("published %v for routine rejections, want nothing", got)
	}
}

func TestHub_WebSocket(t *testing.T) {
	info := offline.SyncInfo{IsOnline: true, PendingCount: 3, LocalTaskCount: 5}
	h := newTestHub(t, func() offline.SyncInfo { return info })
	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", h.Addr()), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	welcome := readMessage(t, ctx, conn)
	if welcome.Type != MessageTypeStatus {
		t.Fatalf("first message type = %q, want %q", welcome.Type, MessageTypeStatus)
	}
	var got offline.SyncInfo
	if err := json.Unmarshal(welcome.Data, &got); err != nil {
		t.Fatalf("welcome data: %v", err)
	}
	if diff := cmp.Diff(info, got); diff != "" {
		t.Errorf("welcome status mismatch (-want +got):\n%s", diff)
	}

	h.Online(3)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeOnline {
		t.Errorf("broadcast type = %q, want %q", msg.Type, MessageTypeOnline)
	}

	if h.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", h.ClientCount())
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return msg
}

func TestHub_HTTPEndpoints(t *testing.T) {
	h := newTestHub(t, func() offline.SyncInfo { return offline.SyncInfo{PendingCount: 2} })
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	defer h.Stop()

	base := "http://" + h.Addr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("health status = %v, want ok", health["status"])
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	var info offline.SyncInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.PendingCount != 2 {
		t.Errorf("PendingCount = %d, want 2", info.PendingCount)
	}
}

func TestHub_StopWithoutStart(t *testing.T) {
	h := newTestHub(t, nil)
	if err := h.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	// Publishing after Stop only reaches subscribers.
	h.Offline()
}
