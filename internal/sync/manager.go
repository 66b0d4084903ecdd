package sync

import (
	"errors"
	gosync "sync"

	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/util"
)

var (
	ErrInvalidStream = errors.New("sync: stream not loaded")
	ErrInvalidRate   = errors.New("sync: rate not in allowed set")
)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Publisher receives engine events. The dispatcher satisfies this.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Config bounds the manager. Zero values fall back to the defaults.
type Config struct {
	MaxStreams       int
	DriftToleranceMs int64
	FrameStepMs      int64
	Rates            []float64
}

const (
	DefaultMaxStreams       = 4
	DefaultDriftToleranceMs = 150
	DefaultFrameStepMs      = 40
)

// slot is the in-memory state of one stream position. Durations are read
// from the adapter once at load and positions arrive as reports, so no
// adapter call ever happens under the manager lock.
type slot struct {
	adapter    StreamAdapter
	loaded     bool
	offsetMs   int64
	durationMs int64
	lastPosMs  int64
	hasReport  bool
}

// seekIntent is a decision taken under the lock and issued after release.
type seekIntent struct {
	id      int
	adapter StreamAdapter
	target  int64
}

type eventOut struct {
	typ     string
	payload any
}

// Manager aligns loaded streams against the transport clock. All methods
// are safe for concurrent use; adapter calls and event publication happen
// outside the lock.
type Manager struct {
	mu     gosync.Mutex
	slots  []slot
	master int
	state  core.TransportState
	cfg    Config

	log Logger
	pub Publisher
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger routes manager logging to l.
func WithLogger(l Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithPublisher routes engine events to p.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		m.pub = p
	}
}

// NewManager creates a Manager with no streams loaded and sync enabled.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.MaxStreams <= 0 {
		cfg.MaxStreams = DefaultMaxStreams
	}
	if cfg.DriftToleranceMs <= 0 {
		cfg.DriftToleranceMs = DefaultDriftToleranceMs
	}
	if cfg.FrameStepMs <= 0 {
		cfg.FrameStepMs = DefaultFrameStepMs
	}
	if len(cfg.Rates) == 0 {
		cfg.Rates = core.DefaultRates
	}

	m := &Manager{
		slots:  make([]slot, cfg.MaxStreams),
		master: -1,
		state: core.TransportState{
			Rate:        1.0,
			SyncEnabled: true,
		},
		cfg: cfg,
		log: nopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxStreams returns the number of stream slots.
func (m *Manager) MaxStreams() int {
	return m.cfg.MaxStreams
}

// LoadStream binds an adapter to a slot. The slot's offset resets to zero
// and a previously bound adapter is replaced. The first loaded stream is
// promoted to master.
func (m *Manager) LoadStream(streamID int, adapter StreamAdapter) error {
	if streamID < 0 || streamID >= m.cfg.MaxStreams || adapter == nil {
		return ErrInvalidStream
	}
	// Duration is read before taking the lock; adapters may be remote.
	duration := adapter.DurationMs()

	m.mu.Lock()
	m.slots[streamID] = slot{
		adapter:    adapter,
		loaded:     true,
		durationMs: duration,
	}
	var events []eventOut
	events = append(events, eventOut{core.EventStreamLoaded, core.StreamPayload{StreamID: streamID, DurationMs: duration}})
	if m.master < 0 {
		m.master = streamID
		events = append(events, eventOut{core.EventMasterChanged, core.MasterChangedPayload{StreamID: streamID, Auto: true}})
	}
	m.mu.Unlock()

	m.log.Info("stream loaded", "stream", streamID, "duration_ms", duration)
	m.publishAll(events)
	return nil
}

// UnloadStream releases a slot. Any pending corrective intent for the
// stream is cancelled. When the master is unloaded the lowest-numbered
// remaining loaded stream is promoted; with none left the transport pauses
// and master becomes unset. SyncEnabled is not modified.
func (m *Manager) UnloadStream(streamID int) error {
	m.mu.Lock()
	if !m.loadedLocked(streamID) {
		m.mu.Unlock()
		return ErrInvalidStream
	}

	m.slots[streamID] = slot{}
	events := []eventOut{{core.EventStreamUnloaded, core.StreamPayload{StreamID: streamID}}}

	if m.master == streamID {
		m.master = -1
		for id := range m.slots {
			if m.slots[id].loaded {
				m.master = id
				break
			}
		}
		events = append(events, eventOut{core.EventMasterChanged, core.MasterChangedPayload{StreamID: m.master, Auto: true}})
		if m.master < 0 && m.state.Playing {
			m.state.Playing = false
			events = append(events, eventOut{core.EventTransportChanged, m.transportPayloadLocked()})
		}
	}
	m.mu.Unlock()

	m.log.Info("stream unloaded", "stream", streamID)
	m.publishAll(events)
	return nil
}

// SetMaster designates the authoritative stream.
func (m *Manager) SetMaster(streamID int) error {
	m.mu.Lock()
	if !m.loadedLocked(streamID) {
		m.mu.Unlock()
		return ErrInvalidStream
	}
	if m.master == streamID {
		m.mu.Unlock()
		return nil
	}
	m.master = streamID
	m.mu.Unlock()

	m.publish(core.EventMasterChanged, core.MasterChangedPayload{StreamID: streamID})
	return nil
}

// Master returns the master slot, -1 when unset.
func (m *Manager) Master() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master
}

// SetOffset stores a signed correction for a stream, effective on the next
// target computation. Existing playback is not disturbed.
func (m *Manager) SetOffset(streamID int, offsetMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadedLocked(streamID) {
		return ErrInvalidStream
	}
	m.slots[streamID].offsetMs = offsetMs
	return nil
}

// Streams snapshots every slot, loaded or not.
func (m *Manager) Streams() []StreamInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamInfo, len(m.slots))
	for id := range m.slots {
		s := m.slots[id]
		out[id] = StreamInfo{
			ID:         id,
			DurationMs: s.durationMs,
			OffsetMs:   s.offsetMs,
			IsMaster:   id == m.master,
			IsLoaded:   s.loaded,
		}
	}
	return out
}

// LoadedStreams snapshots the bound adapter of every loaded slot, master
// last. Followers polled in the returned order land their reports before
// the master report triggers the drift check, so one poll round corrects
// with positions from the same round. A slot unloaded after the snapshot
// turns its report into a no-op.
func (m *Manager) LoadedStreams() []BoundStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BoundStream, 0, len(m.slots))
	for id := range m.slots {
		if m.slots[id].loaded && id != m.master {
			out = append(out, BoundStream{ID: id, Adapter: m.slots[id].adapter})
		}
	}
	if m.master >= 0 && m.slots[m.master].loaded {
		out = append(out, BoundStream{ID: m.master, Adapter: m.slots[m.master].adapter, IsMaster: true})
	}
	return out
}

// ComputeTargetPosition maps a transport position onto a stream:
// clamp(transportMs + offset, 0, duration).
func (m *Manager) ComputeTargetPosition(streamID int, transportMs int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadedLocked(streamID) {
		return 0, ErrInvalidStream
	}
	return m.targetLocked(streamID, transportMs), nil
}

// OnPositionReport stores the latest known position of a stream. Reports
// feed the drift check on the next master report; a stream that has not
// reported since its last seek is left alone.
func (m *Manager) OnPositionReport(streamID int, positionMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadedLocked(streamID) {
		return ErrInvalidStream
	}
	m.slots[streamID].lastPosMs = positionMs
	m.slots[streamID].hasReport = true
	return nil
}

// OnMasterPositionReport advances the transport clock from the master's
// reported position and issues at most one corrective seek per drifted
// stream. Decisions are taken under the lock; seeks are issued after
// release and skipped if the stream was unloaded in between.
func (m *Manager) OnMasterPositionReport(positionMs int64) {
	m.mu.Lock()
	if m.master < 0 || !m.slots[m.master].loaded {
		m.mu.Unlock()
		return
	}

	ms := &m.slots[m.master]
	ms.lastPosMs = positionMs
	ms.hasReport = true
	if t := positionMs - ms.offsetMs; t > 0 {
		m.state.PositionMs = t
	} else {
		m.state.PositionMs = 0
	}

	events := []eventOut{{core.EventPositionReported, core.PositionReportedPayload{StreamID: m.master, PositionMs: positionMs}}}
	var intents []seekIntent

	if m.state.SyncEnabled {
		for id := range m.slots {
			s := &m.slots[id]
			if id == m.master || !s.loaded || !s.hasReport {
				continue
			}
			target := m.targetLocked(id, m.state.PositionMs)
			drift := s.lastPosMs - target
			if util.AbsMs(drift) > m.cfg.DriftToleranceMs {
				intents = append(intents, seekIntent{id: id, adapter: s.adapter, target: target})
				s.hasReport = false
				events = append(events, eventOut{core.EventDriftCorrected, core.DriftCorrectedPayload{
					StreamID:   id,
					ReportedMs: s.lastPosMs,
					TargetMs:   target,
					DriftMs:    drift,
				}})
			}
		}
	}
	m.mu.Unlock()

	m.publishAll(events)
	m.issueSeeks(intents, "drift")
}

// HandleUserSeek moves a stream to an explicit position. With sync enabled
// the transport follows and every other loaded stream is brought along,
// preserving stored offsets; with sync disabled only the seeking stream
// moves.
func (m *Manager) HandleUserSeek(streamID int, newPositionMs int64) error {
	m.mu.Lock()
	if !m.loadedLocked(streamID) {
		m.mu.Unlock()
		return ErrInvalidStream
	}

	seeker := &m.slots[streamID]
	intents := []seekIntent{{id: streamID, adapter: seeker.adapter, target: util.ClampMs(newPositionMs, 0, seeker.durationMs)}}
	seeker.hasReport = false
	propagated := m.state.SyncEnabled

	if propagated {
		if t := newPositionMs - seeker.offsetMs; t > 0 {
			m.state.PositionMs = t
		} else {
			m.state.PositionMs = 0
		}
		for id := range m.slots {
			s := &m.slots[id]
			if id == streamID || !s.loaded {
				continue
			}
			target := util.ClampMs(newPositionMs+s.offsetMs-seeker.offsetMs, 0, s.durationMs)
			intents = append(intents, seekIntent{id: id, adapter: s.adapter, target: target})
			s.hasReport = false
		}
	}
	m.mu.Unlock()

	m.publish(core.EventUserSought, core.UserSoughtPayload{
		StreamID:   streamID,
		PositionMs: newPositionMs,
		Propagated: propagated,
	})
	m.issueSeeks(intents, "user seek")
	return nil
}

// ResyncAll reissues seeks for every loaded stream from the current
// transport position. Calling it twice without a position change issues
// identical targets.
func (m *Manager) ResyncAll() {
	m.mu.Lock()
	base := m.state.PositionMs
	var intents []seekIntent
	for id := range m.slots {
		s := &m.slots[id]
		if !s.loaded {
			continue
		}
		intents = append(intents, seekIntent{id: id, adapter: s.adapter, target: m.targetLocked(id, base)})
		s.hasReport = false
	}
	m.mu.Unlock()

	m.log.Info("resync", "transport_ms", base, "streams", len(intents))
	m.issueSeeks(intents, "resync")
}

func (m *Manager) loadedLocked(streamID int) bool {
	return streamID >= 0 && streamID < len(m.slots) && m.slots[streamID].loaded
}

func (m *Manager) targetLocked(streamID int, transportMs int64) int64 {
	s := m.slots[streamID]
	return util.ClampMs(transportMs+s.offsetMs, 0, s.durationMs)
}

func (m *Manager) transportPayloadLocked() core.TransportChangedPayload {
	return core.TransportChangedPayload{
		Playing:     m.state.Playing,
		Rate:        m.state.Rate,
		SyncEnabled: m.state.SyncEnabled,
	}
}

// issueSeeks performs adapter calls decided earlier. A slot that no longer
// holds the same adapter lost its intent to an unload or reload.
func (m *Manager) issueSeeks(intents []seekIntent, reason string) {
	for _, in := range intents {
		m.mu.Lock()
		alive := m.loadedLocked(in.id) && m.slots[in.id].adapter == in.adapter
		m.mu.Unlock()
		if !alive {
			continue
		}
		if err := in.adapter.Seek(in.target); err != nil {
			m.log.Error("seek failed", "reason", reason, "stream", in.id, "target_ms", in.target, "error", err)
		} else {
			m.log.Debug("seek issued", "reason", reason, "stream", in.id, "target_ms", in.target)
		}
	}
}

func (m *Manager) publish(typ string, payload any) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(typ, payload)
}

func (m *Manager) publishAll(events []eventOut) {
	if m.pub == nil {
		return
	}
	for _, e := range events {
		m.pub.Publish(e.typ, e.payload)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
