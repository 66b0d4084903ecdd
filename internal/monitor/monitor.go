// Package monitor runs the transport tick: a periodic poll of every bound
// stream adapter whose position reports feed the sync manager.
package monitor

import (
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/sync"
)

// DefaultInterval is used when Dependencies.Interval is unset.
const DefaultInterval = 100 * time.Millisecond

// Dependencies contains the dependencies for the tick service
type Dependencies struct {
	Sync     *sync.Manager
	Log      zerolog.Logger
	Interval time.Duration
}

// Service polls stream adapters on a fixed interval and reports their
// positions to the sync manager. Followers report before the master, so
// the drift check triggered by the master report sees positions from the
// same poll round.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        gosync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a stopped tick service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the poll loop is active
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start launches the poll loop. Starting a running service is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	go s.run(s.stopChan)

	s.deps.Log.Info().Dur("interval", s.deps.Interval).Msg("Transport tick started")
}

// Stop halts the poll loop. A tick already in flight finishes on its own.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)

	s.deps.Log.Info().Msg("Transport tick stopped")
}

func (s *Service) run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick performs one poll round immediately: every bound adapter is read
// outside the manager lock, followers report first, the master last. An
// adapter that says it is not loaded is skipped, so a dead player never
// causes a corrective seek.
func (s *Service) Tick() {
	for _, b := range s.deps.Sync.LoadedStreams() {
		if !b.Adapter.IsLoaded() {
			continue
		}
		pos := b.Adapter.PositionMs()
		if b.IsMaster {
			s.deps.Sync.OnMasterPositionReport(pos)
			continue
		}
		if err := s.deps.Sync.OnPositionReport(b.ID, pos); err != nil {
			s.deps.Log.Debug().Err(err).Int("stream", b.ID).Msg("Position report dropped")
		}
	}
}
