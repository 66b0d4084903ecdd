// internal/storage/memory/memory.go

// Package memory keeps snapshots in process memory. It backs tests and
// ephemeral sessions where nothing should touch disk.
package memory

import (
	"sync"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/logging"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage"
)

func init() {
	storage.Register("memory", func(cfg config.StorageConfig, log *logging.Manager) (storage.Backend, error) {
		return New(), nil
	})
}

// Backend stores the most recent snapshot and session in memory.
type Backend struct {
	mu      sync.RWMutex
	snap    *core.Snapshot
	session *core.Session
	saves   int
}

var (
	_ storage.Backend         = (*Backend)(nil)
	_ storage.SessionRecorder = (*Backend)(nil)
)

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// LoadSnapshot returns a copy of the stored snapshot, or an empty one
// when nothing has been saved yet.
func (b *Backend) LoadSnapshot() (*core.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snap == nil {
		return core.EmptySnapshot(), nil
	}
	return cloneSnapshot(b.snap), nil
}

// SaveSnapshot stores a copy of snap, detached from the caller's memory.
func (b *Backend) SaveSnapshot(snap *core.Snapshot) error {
	clone := cloneSnapshot(snap)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = clone
	b.saves++
	return nil
}

// RecordSession stores a copy of the session layout.
func (b *Backend) RecordSession(s *core.Session) error {
	clone := *s
	clone.Streams = append([]core.SessionStream(nil), s.Streams...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = &clone
	return nil
}

// Session returns the last recorded session, or nil.
func (b *Backend) Session() *core.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Saves reports how many snapshots have been stored.
func (b *Backend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}

func cloneSnapshot(snap *core.Snapshot) *core.Snapshot {
	clone := *snap
	clone.Markers = append([]core.Marker(nil), snap.Markers...)
	return &clone
}
