package offline

import "errors"

// Failure classes surfaced by the offline layer.
//
// Routine conditions never escape as returned errors from SyncWithServer;
// they are attached to SyncResult.Err so callers can still check them:
//
//	if errors.Is(result.Err, offline.ErrNoConnectivity) {
//	    // show the offline banner
//	}
var (
	// ErrStorage is reported when the durable store cannot be read or
	// written, or holds malformed data.
	ErrStorage = errors.New("storage failure")

	// ErrNetwork wraps any failed or timed-out server call.
	ErrNetwork = errors.New("network failure")

	// ErrSyncInProgress is reported when a round is requested while another
	// round is still running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoConnectivity is reported when a round is requested while offline.
	ErrNoConnectivity = errors.New("no network connection")

	// ErrTaskNotFound is returned by local mutations that name an unknown task.
	ErrTaskNotFound = errors.New("task not found")
)

// IsRoutine returns true for conditions the UI should treat as normal
// offline operation rather than as failures worth surfacing.
func IsRoutine(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSyncInProgress) || errors.Is(err, ErrNoConnectivity)
}

// IsRetryable returns true if the next sync round may succeed where this
// one failed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	return IsRoutine(err)
}
