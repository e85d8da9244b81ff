package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fieldops/fieldtask/internal/kv"
	"github.com/fieldops/fieldtask/internal/task"
)

// Storage keys of the four logical records.
const (
	KeyTasks          = "offline_tasks"
	KeyPendingActions = "pending_actions"
	KeyLastSync       = "last_sync"
	KeyUser           = "user"
)

// ErrorReporter receives storage write failures. Reported errors are
// otherwise swallowed so the offline path never fails on a full disk.
type ErrorReporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(err error)

// Report implements ErrorReporter.
func (f ReporterFunc) Report(err error) { f(err) }

// User is the cached identity of the signed-in operator. It is owned by the
// authentication collaborator; the offline layer only reads it.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Token string `json:"token,omitempty"`
}

// LocalStore is a typed view over a kv.Storage.
//
// Reads never fail: absent or malformed values degrade to the empty value of
// their type. Writes report failures to the ErrorReporter and return an error
// wrapping ErrStorage.
type LocalStore struct {
	kv       kv.Storage
	reporter ErrorReporter
	logger   *log.Logger
}

// NewLocalStore wraps storage. A nil reporter logs failures; a nil logger
// writes to stderr.
func NewLocalStore(storage kv.Storage, reporter ErrorReporter, logger *log.Logger) *LocalStore {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	s := &LocalStore{kv: storage, reporter: reporter, logger: logger}
	if s.reporter == nil {
		s.reporter = ReporterFunc(func(err error) {
			logger.Printf("ERROR: %v", err)
		})
	}
	return s
}

// Storage returns the underlying key-value backend.
func (s *LocalStore) Storage() kv.Storage {
	return s.kv
}

// LoadTasks returns the local task collection, or an empty one.
func (s *LocalStore) LoadTasks() []task.Task {
	var tasks []task.Task
	if !s.load(KeyTasks, &tasks) || tasks == nil {
		return []task.Task{}
	}
	return tasks
}

// SaveTasks replaces the local task collection.
func (s *LocalStore) SaveTasks(tasks []task.Task) error {
	if tasks == nil {
		tasks = []task.Task{}
	}
	return s.save(KeyTasks, tasks)
}

// LoadPendingActions returns the pending-action log, or an empty one.
// Entries with an unknown type are dropped.
func (s *LocalStore) LoadPendingActions() []PendingAction {
	var actions []PendingAction
	if !s.load(KeyPendingActions, &actions) || actions == nil {
		return []PendingAction{}
	}

	valid := actions[:0]
	for _, a := range actions {
		if !a.Type.Valid() {
			s.logger.Printf("WARNING: dropping pending action with unknown type %q", a.Type)
			continue
		}
		valid = append(valid, a)
	}
	normalizeSeqs(valid)
	return valid
}

// SavePendingActions replaces the pending-action log.
func (s *LocalStore) SavePendingActions(actions []PendingAction) error {
	if actions == nil {
		actions = []PendingAction{}
	}
	return s.save(KeyPendingActions, actions)
}

// LoadLastSync returns the instant of the last successful round, or the
// zero time if there has been none.
func (s *LocalStore) LoadLastSync() time.Time {
	raw, ok := s.raw(KeyLastSync)
	if !ok {
		return time.Time{}
	}

	var t time.Time
	if err := json.Unmarshal(raw, &t); err == nil {
		return t
	}
	// Accept a bare RFC 3339 string as well as a JSON-quoted one.
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw))); err == nil {
		return t
	}

	s.logger.Printf("WARNING: ignoring malformed %s value", KeyLastSync)
	return time.Time{}
}

// SaveLastSync records the instant of a successful round.
func (s *LocalStore) SaveLastSync(t time.Time) error {
	return s.save(KeyLastSync, t)
}

// LoadUser returns the cached identity, if any.
func (s *LocalStore) LoadUser() (User, bool) {
	var u User
	if !s.load(KeyUser, &u) || u.ID == "" {
		return User{}, false
	}
	return u, true
}

// SaveUser stores the signed-in identity. Only the authentication
// collaborator (the login command) calls this.
func (s *LocalStore) SaveUser(u User) error {
	return s.save(KeyUser, u)
}

// Clear removes the task collection, pending actions and last-sync time.
// The cached identity is left in place.
func (s *LocalStore) Clear() error {
	var errs []error
	for _, key := range []string{KeyTasks, KeyPendingActions, KeyLastSync} {
		if err := s.kv.Remove(key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := fmt.Errorf("%w: failed to clear offline data: %w", ErrStorage, errors.Join(errs...))
		s.reporter.Report(err)
		return err
	}
	return nil
}

// raw returns the stored bytes for key, treating absent and unreadable
// values alike.
func (s *LocalStore) raw(key string) ([]byte, bool) {
	data, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Printf("WARNING: failed to read %s: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

// load decodes the JSON value under key into dst. It returns false, leaving
// dst untouched, when the value is absent or malformed.
func (s *LocalStore) load(key string, dst any) bool {
	data, ok := s.raw(key)
	if !ok {
		return false
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "undefined" {
		return false
	}

	if err := json.Unmarshal([]byte(trimmed), dst); err != nil {
		s.logger.Printf("WARNING: ignoring malformed %s value: %v", key, err)
		return false
	}
	return true
}

func (s *LocalStore) save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		err = fmt.Errorf("%w: failed to encode %s: %w", ErrStorage, key, err)
		s.reporter.Report(err)
		return err
	}

	if err := s.kv.Set(key, data); err != nil {
		err = fmt.Errorf("%w: failed to save %s: %w", ErrStorage, key, err)
		s.reporter.Report(err)
		return err
	}
	return nil
}
