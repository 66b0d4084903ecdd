// internal/storage/storage.go
package storage

import (
	"errors"
	"time"

	"github.com/vidsync/engine/internal/model/core"
)

// Errors a backend reports through the usual wrapped-error chain.
// Callers branch on these with errors.Is; the concrete cause stays
// attached for logging.
var (
	// ErrCorruptState marks stored state that cannot be decoded or
	// migrated. Backends quarantine the bad state and start empty.
	ErrCorruptState = errors.New("corrupt stored state")

	// ErrIOFailure marks a read or write that failed at the media level.
	ErrIOFailure = errors.New("storage io failure")
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Snapshot persistence
	LoadSnapshot() (*core.Snapshot, error)
	SaveSnapshot(snap *core.Snapshot) error
}

// Vacuumer is an optional interface for backends that can compact their
// underlying store.
type Vacuumer interface {
	Vacuum() error
}

// SessionRecorder is an optional interface for backends that keep
// session rows alongside marker snapshots.
type SessionRecorder interface {
	RecordSession(s *core.Session) error
}

// WriteDurationProvider is an optional interface exposing how long the
// last successful save took.
type WriteDurationProvider interface {
	LastWriteDuration() time.Duration
}
