// Package engine composes the sync manager, marker store, persistence
// and telemetry sinks into one process-scoped context with an ordered
// shutdown path. No package-level singletons: entry points build an
// Engine from Dependencies and tear it down via Shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/dispatcher"
	"github.com/vidsync/engine/internal/export"
	"github.com/vidsync/engine/internal/feed"
	"github.com/vidsync/engine/internal/influx"
	"github.com/vidsync/engine/internal/logging"
	"github.com/vidsync/engine/internal/marker"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/monitor"
	"github.com/vidsync/engine/internal/otel"
	"github.com/vidsync/engine/internal/saver"
	"github.com/vidsync/engine/internal/storage"
	"github.com/vidsync/engine/internal/sync"
)

// Dependencies contains what the engine needs from the process entry
// point. The backend must be constructed but not initialized; the engine
// calls Init on Start and Close on Shutdown.
type Dependencies struct {
	Log         *logging.Manager
	Backend     storage.Backend
	BackendName string

	// OTel is optional; when set the engine flushes and shuts it down last.
	OTel *otel.Provider
}

// Engine is the process-scoped context: the sync manager, marker store,
// periodic services and optional sinks, wired through one dispatcher.
type Engine struct {
	deps Dependencies

	session *SessionContext
	bus     *dispatcher.Dispatcher
	markers *marker.Store
	streams *sync.Manager
	monitor *monitor.Service
	saver   *saver.Service
	planner *export.Planner

	// Optional sinks, nil when disabled in config.
	feed    *feed.Feed
	metrics *influx.Manager

	// syncEnabled mirrors the transport's sync gate for the logging hook,
	// which must not call back into the manager.
	syncEnabled atomic.Bool

	log zerolog.Logger

	mu      gosync.Mutex
	started bool
	stopped bool
}

// New wires the engine from global configuration. Nothing connects or
// starts until Start.
func New(deps Dependencies) (*Engine, error) {
	if deps.Backend == nil {
		return nil, errors.New("engine: storage backend is required")
	}
	if deps.Log == nil {
		deps.Log = logging.NewManager()
	}
	if deps.BackendName == "" {
		deps.BackendName = config.GetStorageConfig().Type
	}

	e := &Engine{
		deps:    deps,
		session: NewSessionContext(),
		log:     deps.Log.Component("engine"),
	}
	e.syncEnabled.Store(true)

	bus, err := dispatcher.New(logging.NewKVLogger(deps.Log.Component("dispatcher")))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	e.bus = bus

	syncCfg := config.GetSyncConfig()
	e.streams = sync.NewManager(sync.Config{
		MaxStreams:       syncCfg.MaxStreams,
		DriftToleranceMs: syncCfg.DriftToleranceMs,
		FrameStepMs:      syncCfg.FrameStepMs,
		Rates:            syncCfg.Rates,
	},
		sync.WithLogger(logging.NewKVLogger(deps.Log.Component("sync"))),
		sync.WithPublisher(bus),
	)

	e.markers = marker.New(marker.WithPublisher(bus))

	e.monitor = monitor.NewService(monitor.Dependencies{
		Sync:     e.streams,
		Log:      deps.Log.Component("monitor"),
		Interval: syncCfg.TransportTick,
	})

	e.saver = saver.NewService(saver.Dependencies{
		Store:       e.markers,
		Backend:     deps.Backend,
		BackendName: deps.BackendName,
		Pub:         bus,
		Log:         deps.Log.Component("saver"),
		Interval:    config.GetAutosaveConfig().Interval,
	})

	e.planner = export.NewPlanner(config.GetExportConfig(), deps.Log.Component("export"))

	if feedCfg := config.GetFeedConfig(); feedCfg.Enabled {
		e.feed = feed.New(feedCfg, deps.Log.Component("feed"))
		e.feed.Attach(bus)
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		backupPath := filepath.Join(config.GetString("logsDir"), "influx_backup.gz")
		e.metrics = influx.NewManager(deps.Log.Component("influx"), backupPath)
		e.registerMetricHandlers()
	}

	bus.Subscribe(core.EventTransportChanged, func(ev dispatcher.Event) error {
		if p, ok := ev.Payload.(core.TransportChangedPayload); ok {
			e.syncEnabled.Store(p.SyncEnabled)
		}
		return nil
	})

	deps.Log.SetContextProvider(e.logContext)

	return e, nil
}

// Start initializes the backend, hydrates the marker store and launches
// the periodic services. A corrupt snapshot degrades to an empty store
// (the backend preserved the bad state); any other load failure aborts
// startup so a later save cannot clobber data the engine never read.
// Optional sinks degrade to warnings.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("engine already started")
	}

	if err := e.deps.Backend.Init(); err != nil {
		return fmt.Errorf("initializing %s backend: %w", e.deps.BackendName, err)
	}

	snap, err := e.deps.Backend.LoadSnapshot()
	switch {
	case errors.Is(err, storage.ErrCorruptState):
		e.log.Warn().Err(err).Msg("Stored snapshot unreadable, starting with an empty store")
		e.markers.Hydrate(core.EmptySnapshot())
	case err != nil:
		return fmt.Errorf("loading snapshot: %w", err)
	default:
		e.markers.Hydrate(snap)
		e.log.Info().
			Int("markers", len(snap.Markers)).
			Str("backend", e.deps.BackendName).
			Msg("Snapshot loaded")
	}

	if e.feed != nil {
		if err := e.feed.Connect(); err != nil {
			e.log.Warn().Err(err).Msg("Feed unavailable, continuing without it")
			e.feed = nil
		} else {
			sess := e.session.Get()
			hello := feed.HelloPayload{
				SessionUID: sess.ID,
				StartedAt:  sess.StartedAt,
				MaxStreams: e.streams.MaxStreams(),
			}
			if err := e.feed.StartSession(hello); err != nil {
				e.log.Warn().Err(err).Msg("Feed session not acknowledged")
			}
		}
	}

	if e.metrics != nil {
		if err := e.metrics.Connect(config.GetInfluxConfig()); err != nil {
			e.log.Warn().Err(err).Msg("Metrics sink unavailable, continuing without it")
		}
	}

	e.monitor.Start()
	e.saver.Start()
	e.started = true

	e.log.Info().Str("session", e.session.Get().ID).Msg("Engine started")
	return nil
}

// Shutdown stops the services, flushes pending marker state, records the
// session on capable backends and closes every sink. Calling it again is
// a no-op.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.monitor.Stop()
	e.saver.Stop()

	if err := e.saver.SaveNow(); err != nil {
		e.log.Error().Err(err).Msg("Final snapshot flush failed")
	}

	session := e.buildSession()
	e.session.Set(session)
	if rec, ok := e.deps.Backend.(storage.SessionRecorder); ok {
		if err := rec.RecordSession(session); err != nil {
			e.log.Warn().Err(err).Msg("Session record failed")
		}
	}

	if e.feed != nil {
		if err := e.feed.EndSession(); err != nil {
			e.log.Warn().Err(err).Msg("Feed session end not acknowledged")
		}
		if err := e.feed.Close(); err != nil {
			e.log.Warn().Err(err).Msg("Feed close failed")
		}
	}

	if e.metrics != nil {
		e.metrics.Close()
	}

	if err := e.deps.Backend.Close(); err != nil {
		e.log.Error().Err(err).Str("backend", e.deps.BackendName).Msg("Backend close failed")
	}

	if e.deps.OTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.deps.OTel.Flush(ctx); err != nil {
			e.log.Warn().Err(err).Msg("Telemetry flush failed")
		}
		if err := e.deps.OTel.Shutdown(ctx); err != nil {
			e.log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}

	e.log.Info().Msg("Engine shut down")
}

// Streams returns the synchronization manager.
func (e *Engine) Streams() *sync.Manager { return e.streams }

// Transport returns the shared playback clock.
func (e *Engine) Transport() *sync.Transport { return e.streams.Transport() }

// Markers returns the marker store.
func (e *Engine) Markers() *marker.Store { return e.markers }

// Bus returns the event dispatcher.
func (e *Engine) Bus() *dispatcher.Dispatcher { return e.bus }

// Session returns the current session record.
func (e *Engine) Session() *core.Session { return e.session.Get() }

// SaveNow flushes the marker store through the backend immediately.
func (e *Engine) SaveNow() error { return e.saver.SaveNow() }

// PlanClips writes a clip plan manifest for the given markers against the
// currently loaded streams and returns the manifest path.
func (e *Engine) PlanClips(markers []core.Marker) (string, error) {
	plan := e.planner.Build(markers, e.streams.Streams())
	return e.planner.Write(plan)
}

// registerMetricHandlers mirrors sync and persistence events into the
// metrics sink. Buffered so a slow sink never backpressures the engine.
func (e *Engine) registerMetricHandlers() {
	e.bus.Subscribe(core.EventDriftCorrected, func(ev dispatcher.Event) error {
		p, ok := ev.Payload.(core.DriftCorrectedPayload)
		if !ok {
			return fmt.Errorf("unexpected drift payload %T", ev.Payload)
		}
		e.metrics.RecordDrift(p.StreamID, p.ReportedMs, p.TargetMs, p.DriftMs)
		e.metrics.RecordCorrection(p.StreamID, p.DriftMs)
		return nil
	}, dispatcher.Buffered(256))

	e.bus.Subscribe(core.EventSnapshotSaved, func(ev dispatcher.Event) error {
		p, ok := ev.Payload.(core.SnapshotSavedPayload)
		if !ok {
			return fmt.Errorf("unexpected save payload %T", ev.Payload)
		}
		e.metrics.RecordSave(p.Backend, p.MarkerCount, p.Duration, true)
		return nil
	}, dispatcher.Buffered(64))

	e.bus.Subscribe(core.EventSaveFailed, func(ev dispatcher.Event) error {
		p, ok := ev.Payload.(core.SaveFailedPayload)
		if !ok {
			return fmt.Errorf("unexpected failure payload %T", ev.Payload)
		}
		e.metrics.RecordSave(p.Backend, 0, 0, false)
		return nil
	}, dispatcher.Buffered(64))
}

// logContext supplies the runtime fields the logging hook attaches to
// every line. It must never call into the manager: log sites inside
// locked sections would deadlock.
func (e *Engine) logContext() map[string]any {
	return map[string]any{
		"session":      e.session.Get().ID,
		"sync_enabled": e.syncEnabled.Load(),
	}
}

// buildSession captures the loaded stream layout under the session's
// original identity.
func (e *Engine) buildSession() *core.Session {
	prev := e.session.Get()
	state := e.streams.Transport().State()

	session := &core.Session{
		ID:        prev.ID,
		StartedAt: prev.StartedAt,
		SavedAt:   time.Now().UTC(),
		Master:    e.streams.Master(),
		Rate:      state.Rate,
	}
	for _, s := range e.streams.Streams() {
		if !s.IsLoaded {
			continue
		}
		session.Streams = append(session.Streams, core.SessionStream{
			ID:         s.ID,
			OffsetMs:   s.OffsetMs,
			DurationMs: s.DurationMs,
		})
	}
	return session
}
