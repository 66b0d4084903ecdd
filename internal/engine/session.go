package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidsync/engine/internal/model/core"
)

// SessionContext holds the current session record. A fresh identity is
// minted at engine construction; the engine refreshes the stream layout
// at shutdown while the logging hook reads it concurrently.
type SessionContext struct {
	mu      sync.RWMutex
	session *core.Session
}

// NewSessionContext creates a context with a fresh session identity.
func NewSessionContext() *SessionContext {
	return &SessionContext{
		session: &core.Session{
			ID:        uuid.NewString(),
			StartedAt: time.Now().UTC(),
			Master:    -1,
			Rate:      1.0,
		},
	}
}

// Get returns the current session record.
func (sc *SessionContext) Get() *core.Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.session
}

// Set replaces the session record.
func (sc *SessionContext) Set(session *core.Session) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.session = session
}
