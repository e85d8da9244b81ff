// Package notify fans connectivity and sync events out to in-process
// subscribers and to WebSocket clients such as a status bar or dashboard.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/fieldops/fieldtask/internal/offline"
)

// MessageType defines the type of notification
type MessageType string

const (
	// MessageTypeOnline indicates the server became reachable
	MessageTypeOnline MessageType = "online"

	// MessageTypeOffline indicates the server became unreachable
	MessageTypeOffline MessageType = "offline"

	// MessageTypeSyncComplete indicates a sync round finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeSyncFailed indicates a sync round failed
	MessageTypeSyncFailed MessageType = "sync_failed"

	// MessageTypeStatus is sent to each WebSocket client on connect
	MessageTypeStatus MessageType = "status"
)

// Message is one notification
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// OnlineData accompanies an online notification
type OnlineData struct {
	PendingCount int `json:"pendingCount"`
}

// SyncData accompanies sync_complete and sync_failed
type SyncData struct {
	Message      string `json:"message"`
	SyncedCount  int    `json:"syncedCount,omitempty"`
	PendingCount int    `json:"pendingCount,omitempty"`
	Replayed     int    `json:"replayed,omitempty"`
	Failed       int    `json:"failed,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Config holds hub configuration
type Config struct {
	// Host to listen on (default: 127.0.0.1)
	Host string

	// Port to listen on; 0 picks a free port
	Port int

	// Status, when set, backs the /status endpoint and the welcome message
	Status func() offline.SyncInfo

	// Logger for hub activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 8765,
	}
}

// Hub implements connectivity.Notifier and offline.Observer.
type Hub struct {
	addr   string
	status func() offline.SyncInfo
	logger *log.Logger

	listener net.Listener
	server   *http.Server
	started  atomic.Bool

	// In-process subscribers
	subs   map[int]func(Message)
	nextID int
	subsMu sync.RWMutex

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub. Subscribers work immediately; WebSocket clients
// only after Start.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	host := config.Host
	if host == "" {
		host = "127.0.0.1"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		addr:      net.JoinHostPort(host, fmt.Sprint(config.Port)),
		status:    config.Status,
		logger:    logger,
		subs:      make(map[int]func(Message)),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Subscribe registers fn for every message. It is called synchronously by
// the publisher and must not block. The returned func unsubscribes.
func (h *Hub) Subscribe(fn func(Message)) (unsubscribe func()) {
	h.subsMu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.subsMu.Unlock()

	return func() {
		h.subsMu.Lock()
		delete(h.subs, id)
		h.subsMu.Unlock()
	}
}

// Online implements connectivity.Notifier.
func (h *Hub) Online(pending int) {
	h.publish(MessageTypeOnline, OnlineData{PendingCount: pending})
}

// Offline implements connectivity.Notifier.
func (h *Hub) Offline() {
	h.publish(MessageTypeOffline, nil)
}

// SyncFinished implements offline.Observer. Rounds rejected because the
// device is offline or a round is already running are not announced.
func (h *Hub) SyncFinished(result offline.SyncResult) {
	if !result.Success && offline.IsRoutine(result.Err) {
		return
	}

	data := SyncData{
		Message:      result.Message,
		SyncedCount:  result.SyncedCount,
		PendingCount: result.PendingCount,
		Replayed:     result.Replayed,
		Failed:       result.Failed,
	}
	if result.Err != nil {
		data.Error = result.Err.Error()
	}

	typ := MessageTypeSyncComplete
	if !result.Success {
		typ = MessageTypeSyncFailed
	}
	h.publish(typ, data)
}

func (h *Hub) publish(typ MessageType, data any) {
	msg := Message{Type: typ, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.logger.Printf("Failed to marshal %s data: %v", typ, err)
			return
		}
		msg.Data = raw
	}
	h.Publish(msg)
}

// Publish delivers msg to subscribers and, once started, to WebSocket
// clients.
func (h *Hub) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	h.subsMu.RLock()
	subs := make([]func(Message), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.subsMu.RUnlock()

	for _, fn := range subs {
		fn(msg)
	}

	if !h.started.Load() {
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// Start begins serving /ws, /health and /status
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Get("/ws", h.handleWebSocket)
	r.Get("/health", h.handleHealth)
	r.Get("/status", h.handleStatus)

	h.server = &http.Server{
		Handler:     r,
		ReadTimeout: 10 * time.Second,
	}

	h.started.Store(true)

	h.wg.Add(1)
	go h.broadcastLoop()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Printf("Notification hub listening on %s", ln.Addr())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes all clients and shuts the server down
func (h *Hub) Stop() error {
	h.cancel()

	if !h.started.Swap(false) {
		return nil
	}
	h.logger.Println("Stopping notification hub")

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	h.wg.Wait()
	return nil
}

// Addr returns the listening address
func (h *Hub) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The welcome goes out before the client is registered so it always
	// arrives first.
	welcome := Message{Type: MessageTypeStatus, Timestamp: time.Now()}
	if h.status != nil {
		welcome.Data, _ = json.Marshal(h.status())
	}
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "welcome failed")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("Client connected (total: %d)", clientCount)

	go h.readLoop(conn)
}

// readLoop detects client disconnects
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		h.clientsMu.Unlock()
	}
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": h.ClientCount(),
	})
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no status source"})
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
