package offline

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/fieldtask/internal/task"
)

// Client is the server task API the engine fetches from and replays against.
// Every call may fail; failures are treated as network failures.
type Client interface {
	// ListTasks returns the authoritative task collection.
	ListTasks(ctx context.Context) ([]task.Task, error)

	// CreateTask uploads t and returns the server's copy, whose ID is the
	// permanent identifier.
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)

	// UpdateTask applies a partial update to task id.
	UpdateTask(ctx context.Context, id string, u task.Update) error

	// DeleteTask removes task id.
	DeleteTask(ctx context.Context, id string) error

	// AddNote appends a note to task taskID.
	AddNote(ctx context.Context, taskID, content string) (task.Note, error)
}

// Observer receives the outcome of every SyncWithServer call.
type Observer interface {
	SyncFinished(result SyncResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(result SyncResult)

// SyncFinished implements Observer.
func (f ObserverFunc) SyncFinished(result SyncResult) { f(result) }

// SyncInfo is the snapshot the UI polls to render sync status.
type SyncInfo struct {
	IsOnline       bool       `json:"isOnline"`
	LastSync       *time.Time `json:"lastSync"`
	PendingCount   int        `json:"pendingCount"`
	SyncInProgress bool       `json:"syncInProgress"`
	LocalTaskCount int        `json:"localTaskCount"`
}

// Options configures a Manager.
type Options struct {
	// Client talks to the server. A nil client makes every round fail with
	// ErrNetwork, which is fine for purely local use.
	Client Client

	// Resolver merges server and local collections. The zero value uses
	// ByModified.
	Resolver Resolver

	// Observer is told about every round outcome. Optional.
	Observer Observer

	// Online is the initial connectivity state.
	Online bool

	// UserID authors notes when the store holds no cached identity.
	UserID string

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager is the offline-first task store: local reads and optimistic
// writes, a durable pending-action queue, and server synchronization.
//
// All methods are safe for concurrent use. Local operations never wait on
// the network; at most one sync round runs at a time.
type Manager struct {
	store    *LocalStore
	client   Client
	resolver Resolver
	observer Observer
	logger   *log.Logger
	now      func() time.Time
	userID   string

	online     atomic.Bool
	inProgress atomic.Bool

	// round is only ever TryLock'ed: a busy round rejects, it never queues.
	round sync.Mutex

	// mu guards the in-memory snapshot below, which stays authoritative when
	// a storage write fails.
	mu       sync.Mutex
	tasks    []task.Task
	actions  []PendingAction
	lastSync time.Time

	// lastSeq is the highest seq handed out, so a seq freed by a cancelled
	// action is never reused while a round still refers to it.
	lastSeq int64
}

// NewManager loads the durable state from store and returns a ready Manager.
func NewManager(store *LocalStore, opts Options) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	resolver := opts.Resolver
	if resolver.Clock == nil {
		resolver.Clock = ByModified
	}

	m := &Manager{
		store:    store,
		client:   opts.Client,
		resolver: resolver,
		observer: opts.Observer,
		logger:   logger,
		now:      now,
		userID:   opts.UserID,
	}
	m.online.Store(opts.Online)

	m.tasks = store.LoadTasks()
	m.actions = store.LoadPendingActions()
	m.lastSync = store.LoadLastSync()
	m.lastSeq = nextSeq(m.actions) - 1

	return m, nil
}

// Store returns the durable store backing the manager.
func (m *Manager) Store() *LocalStore {
	return m.store
}

// Tasks returns a copy of the local task collection.
func (m *Manager) Tasks() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return task.CloneAll(m.tasks)
}

// Task returns a copy of the local task with the given id.
func (m *Manager) Task(id string) (task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return task.Task{}, false
}

// SaveTasks replaces the local task collection. A storage failure is
// reported and the in-memory collection is kept.
func (m *Manager) SaveTasks(tasks []task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = task.CloneAll(tasks)
	_ = m.store.SaveTasks(m.tasks)
}

// AddTaskOffline creates a task locally under a fresh temporary id and
// queues its upload. It returns the temporary id.
func (m *Manager) AddTaskOffline(partial task.Task) (string, error) {
	now := m.now()

	t := partial.Clone()
	t.ID = task.NewLocalID()
	t.CreatedAt = now
	t.UpdatedAt = time.Time{}
	t.SetDefaults(now)
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("invalid task: %w", err)
	}

	action, err := newAction(ActionCreateTask, t.ID, t, now)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = append(m.tasks, t)
	_ = m.store.SaveTasks(m.tasks)
	m.enqueueLocked(action)

	m.logger.Printf("Created task offline: %s (%s)", t.ID, t.Title)
	return t.ID, nil
}

// UpdateTaskOffline applies upd to the local task and queues the update.
func (m *Manager) UpdateTaskOffline(id string, upd task.Update) error {
	if upd.IsEmpty() {
		return nil
	}
	now := m.now()

	action, err := newAction(ActionUpdateTask, id, upd, now)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	upd.Apply(&m.tasks[i])
	m.tasks[i].Touch(now)
	_ = m.store.SaveTasks(m.tasks)
	m.enqueueLocked(action)

	m.logger.Printf("Updated task offline: %s", id)
	return nil
}

// DeleteTaskOffline removes the local task and queues the deletion.
//
// Deleting a task that was created offline and never uploaded cancels its
// queued actions instead: nothing is sent to the server.
func (m *Manager) DeleteTaskOffline(id string) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	m.tasks = append(m.tasks[:i:i], m.tasks[i+1:]...)
	_ = m.store.SaveTasks(m.tasks)

	if task.IsLocalID(id) && m.hasCreateLocked(id) {
		kept := m.actions[:0:0]
		dropped := 0
		for _, a := range m.actions {
			if a.TaskID() == id {
				dropped++
				continue
			}
			kept = append(kept, a)
		}
		m.actions = kept
		_ = m.store.SavePendingActions(m.actions)
		m.logger.Printf("Deleted unsynced task %s (cancelled %d pending actions)", id, dropped)
		return nil
	}

	action, err := newAction(ActionDeleteTask, id, DeletePayload{ID: id}, now)
	if err != nil {
		return err
	}
	m.enqueueLocked(action)

	m.logger.Printf("Deleted task offline: %s", id)
	return nil
}

// AddNoteOffline appends a note to the local task and queues it.
func (m *Manager) AddNoteOffline(taskID, content string) (task.Note, error) {
	if strings.TrimSpace(content) == "" {
		return task.Note{}, fmt.Errorf("note content is required")
	}
	now := m.now()

	note := task.Note{
		ID:        task.LocalIDPrefix + uuid.NewString(),
		TaskID:    taskID,
		UserID:    m.authorID(),
		Content:   content,
		CreatedAt: now,
	}
	action, err := newAction(ActionAddNote, note.ID, NotePayload{TaskID: taskID, Content: content}, now)
	if err != nil {
		return task.Note{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(taskID)
	if i < 0 {
		return task.Note{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	m.tasks[i].Notes = append(m.tasks[i].Notes, note)
	m.tasks[i].Touch(now)
	_ = m.store.SaveTasks(m.tasks)
	m.enqueueLocked(action)

	m.logger.Printf("Added note offline to task %s", taskID)
	return note, nil
}

// PendingActions returns a copy of the queue in enqueue order.
func (m *Manager) PendingActions() []PendingAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PendingAction{}, m.actions...)
}

// PendingCount returns the number of queued actions.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

// SyncInfo returns the current sync status.
func (m *Manager) SyncInfo() SyncInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := SyncInfo{
		IsOnline:       m.online.Load(),
		PendingCount:   len(m.actions),
		SyncInProgress: m.inProgress.Load(),
		LocalTaskCount: len(m.tasks),
	}
	if !m.lastSync.IsZero() {
		ls := m.lastSync
		info.LastSync = &ls
	}
	return info
}

// ClearOfflineData discards the local collection, the queue and the
// last-sync time.
func (m *Manager) ClearOfflineData() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = []task.Task{}
	m.actions = []PendingAction{}
	m.lastSync = time.Time{}
	_ = m.store.Clear()

	m.logger.Printf("Cleared offline data")
}

// SetOnline records the platform connectivity state.
func (m *Manager) SetOnline(online bool) {
	m.online.Store(online)
}

// IsOnline reports the last recorded connectivity state.
func (m *Manager) IsOnline() bool {
	return m.online.Load()
}

// TriggerSync runs a round and discards the result; the Observer still
// receives it. It is the fire-and-forget entry point for reconnects.
func (m *Manager) TriggerSync(ctx context.Context) {
	_ = m.SyncWithServer(ctx)
}

// Reload re-reads the durable store, replacing the in-memory snapshot. It
// returns how many of the loaded pending actions were not known before,
// which is non-zero when another process enqueued work.
func (m *Manager) Reload() int {
	tasks := m.store.LoadTasks()
	actions := m.store.LoadPendingActions()
	lastSync := m.store.LoadLastSync()

	m.mu.Lock()
	defer m.mu.Unlock()

	known := seqSet(m.actions)
	added := 0
	for _, a := range actions {
		if !known[a.Seq] {
			added++
		}
	}

	m.tasks = tasks
	m.actions = actions
	m.lastSync = lastSync
	if seq := nextSeq(actions) - 1; seq > m.lastSeq {
		m.lastSeq = seq
	}
	return added
}

func (m *Manager) authorID() string {
	if u, ok := m.store.LoadUser(); ok {
		return u.ID
	}
	return m.userID
}

func (m *Manager) indexLocked(id string) int {
	for i, t := range m.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) hasCreateLocked(id string) bool {
	for _, a := range m.actions {
		if a.Type == ActionCreateTask && a.LocalID == id {
			return true
		}
	}
	return false
}

func (m *Manager) enqueueLocked(a PendingAction) {
	m.actions = append(m.actions, m.stampLocked(a))
	_ = m.store.SavePendingActions(m.actions)
}

// stampLocked assigns the next sequence number to a.
func (m *Manager) stampLocked(a PendingAction) PendingAction {
	seq := nextSeq(m.actions)
	if seq <= m.lastSeq {
		seq = m.lastSeq + 1
	}
	m.lastSeq = seq
	a.Seq = seq
	return a
}

func seqSet(actions []PendingAction) map[int64]bool {
	set := make(map[int64]bool, len(actions))
	for _, a := range actions {
		set[a.Seq] = true
	}
	return set
}
