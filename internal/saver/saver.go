// Package saver writes the marker store through a storage backend on a
// timer, on demand, and at shutdown.
package saver

import (
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/marker"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage"
)

// DefaultInterval is used when Dependencies.Interval is unset.
const DefaultInterval = 30 * time.Second

// Publisher receives persistence events. The dispatcher satisfies this.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Dependencies contains the dependencies for the autosave service
type Dependencies struct {
	Store       *marker.Store
	Backend     storage.Backend
	BackendName string
	Pub         Publisher
	Log         zerolog.Logger
	Interval    time.Duration
}

// Service runs the autosave pass: every interval the store is snapshotted
// if dirty and handed to the backend. A failed save re-arms the dirty flag
// and retries next tick; the failure is surfaced exactly once per streak.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        gosync.RWMutex
	stopChan  chan struct{}

	// saveMu serializes save passes so a shutdown flush never overlaps an
	// autosave in flight. failing tracks the current error streak.
	saveMu  gosync.Mutex
	failing bool
}

// NewService creates a stopped autosave service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the autosave loop is active
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start launches the autosave loop. Starting a running service is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	go s.run(s.stopChan)

	s.deps.Log.Info().Dur("interval", s.deps.Interval).Str("backend", s.deps.BackendName).Msg("Autosave started")
}

// Stop halts the autosave loop without flushing. Callers that need the
// final write issue SaveNow after Stop returns.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)

	s.deps.Log.Info().Msg("Autosave stopped")
}

func (s *Service) run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.saveOnce()
		}
	}
}

// SaveNow runs one save pass immediately and reports its outcome. A clean
// store saves nothing and returns nil. SaveNow blocks until any autosave
// pass already in flight has finished, so after Stop+SaveNow the backend
// holds every marker and can be closed.
func (s *Service) SaveNow() error {
	return s.saveOnce()
}

func (s *Service) saveOnce() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap, dirty := s.deps.Store.SnapshotIfDirty()
	if !dirty {
		return nil
	}

	start := time.Now()
	if err := s.deps.Backend.SaveSnapshot(snap); err != nil {
		s.deps.Store.MarkDirty()
		if !s.failing {
			s.failing = true
			s.deps.Log.Warn().Err(err).Str("backend", s.deps.BackendName).Msg("Snapshot save failed, will retry")
			s.publish(core.EventSaveFailed, core.SaveFailedPayload{
				Backend: s.deps.BackendName,
				Error:   err.Error(),
			})
		} else {
			s.deps.Log.Debug().Err(err).Msg("Snapshot save still failing")
		}
		return err
	}

	duration := time.Since(start)
	if wp, ok := s.deps.Backend.(storage.WriteDurationProvider); ok {
		if d := wp.LastWriteDuration(); d > 0 {
			duration = d
		}
	}
	if s.failing {
		s.failing = false
		s.deps.Log.Info().Str("backend", s.deps.BackendName).Msg("Snapshot save recovered")
	}

	s.deps.Log.Debug().Int("markers", len(snap.Markers)).Dur("duration", duration).Msg("Snapshot saved")
	s.publish(core.EventSnapshotSaved, core.SnapshotSavedPayload{
		Backend:     s.deps.BackendName,
		MarkerCount: len(snap.Markers),
		Duration:    duration,
	})
	return nil
}

func (s *Service) publish(typ string, payload any) {
	if s.deps.Pub == nil {
		return
	}
	s.deps.Pub.Publish(typ, payload)
}
