package offline

import (
	"time"

	"github.com/fieldops/fieldtask/internal/task"
)

// Clock returns the instant used to decide which copy of a task is newer.
type Clock func(t task.Task) time.Time

// ByCreated orders copies by creation time only. Because createdAt never
// changes, a local edit made after creation can lose to a server copy with a
// later creation time; ByModified does not have that blind spot.
func ByCreated(t task.Task) time.Time {
	return t.CreatedAt
}

// ByModified orders copies by last modification, falling back to creation
// time for records that were never modified.
func ByModified(t task.Task) time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// Resolver merges server and local task collections with last-writer-wins
// at record granularity.
type Resolver struct {
	// Clock picks the conflict instant. Nil means ByCreated.
	Clock Clock
}

// Resolve merges with the ByCreated clock. See Resolver.Resolve.
func Resolve(serverTasks, localTasks []task.Task) []task.Task {
	return Resolver{Clock: ByCreated}.Resolve(serverTasks, localTasks)
}

// Resolve returns the authoritative collection:
//
//   - a task on both sides keeps the copy with the later clock instant,
//     ties going to the server copy
//   - a task only on the server is taken as-is
//   - a task only local is kept if its id is local-temporary (not yet
//     uploaded) and dropped otherwise (deleted upstream)
//
// Server order is preserved, followed by retained local-only tasks in local
// order. Neither input is modified.
func (r Resolver) Resolve(serverTasks, localTasks []task.Task) []task.Task {
	clock := r.Clock
	if clock == nil {
		clock = ByCreated
	}

	localByID := make(map[string]task.Task, len(localTasks))
	for _, t := range localTasks {
		localByID[t.ID] = t
	}

	merged := make([]task.Task, 0, len(serverTasks)+len(localTasks))
	onServer := make(map[string]bool, len(serverTasks))

	for _, s := range serverTasks {
		onServer[s.ID] = true
		l, ok := localByID[s.ID]
		if ok && clock(l).After(clock(s)) {
			merged = append(merged, l.Clone())
			continue
		}
		merged = append(merged, s.Clone())
	}

	for _, l := range localTasks {
		if onServer[l.ID] || !task.IsLocalID(l.ID) {
			continue
		}
		merged = append(merged, l.Clone())
	}

	return merged
}
