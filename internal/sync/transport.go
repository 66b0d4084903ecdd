package sync

import (
	"github.com/vidsync/engine/internal/model/core"
)

// Transport is the shared playback clock over the manager's streams.
// Play, pause, and rate changes propagate best-effort to every loaded
// adapter; a failing adapter is logged and playback continues elsewhere.
type Transport struct {
	m *Manager
}

// Transport returns the clock facade of this manager.
func (m *Manager) Transport() *Transport {
	return &Transport{m: m}
}

// State snapshots the transport clock.
func (t *Transport) State() core.TransportState {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.state
}

// Play starts playback on all loaded streams.
func (t *Transport) Play() {
	t.setPlaying(true)
}

// Pause halts playback on all loaded streams.
func (t *Transport) Pause() {
	t.setPlaying(false)
}

func (t *Transport) setPlaying(playing bool) {
	m := t.m
	m.mu.Lock()
	changed := m.state.Playing != playing
	m.state.Playing = playing
	adapters := m.loadedAdaptersLocked()
	payload := m.transportPayloadLocked()
	m.mu.Unlock()

	for _, a := range adapters {
		var err error
		if playing {
			err = a.adapter.Play()
		} else {
			err = a.adapter.Pause()
		}
		if err != nil {
			m.log.Error("transport propagation failed", "stream", a.id, "playing", playing, "error", err)
		}
	}
	if changed {
		m.publish(core.EventTransportChanged, payload)
	}
}

// SetRate validates the rate against the configured set and propagates it.
func (t *Transport) SetRate(rate float64) error {
	m := t.m
	if !m.rateAllowed(rate) {
		return ErrInvalidRate
	}

	m.mu.Lock()
	changed := m.state.Rate != rate
	m.state.Rate = rate
	adapters := m.loadedAdaptersLocked()
	payload := m.transportPayloadLocked()
	m.mu.Unlock()

	for _, a := range adapters {
		if err := a.adapter.SetRate(rate); err != nil {
			m.log.Error("rate propagation failed", "stream", a.id, "rate", rate, "error", err)
		}
	}
	if changed {
		m.publish(core.EventTransportChanged, payload)
	}
	return nil
}

// SetSyncEnabled flips the sync gate. Drift correction and seek fan-out
// stop while disabled; stored offsets are untouched.
func (t *Transport) SetSyncEnabled(enabled bool) {
	m := t.m
	m.mu.Lock()
	changed := m.state.SyncEnabled != enabled
	m.state.SyncEnabled = enabled
	payload := m.transportPayloadLocked()
	m.mu.Unlock()

	if changed {
		m.publish(core.EventTransportChanged, payload)
	}
}

// StepFrames pauses playback and nudges the timeline by n frames of the
// configured frame step. The nudge goes through the user-seek path on the
// master so offsets and fan-out behave exactly like a manual seek; with no
// master the transport moves alone and loaded streams are resynced.
func (t *Transport) StepFrames(n int) {
	m := t.m
	t.Pause()

	m.mu.Lock()
	step := int64(n) * m.cfg.FrameStepMs
	master := m.master
	var masterTarget int64
	if master >= 0 && m.slots[master].loaded {
		masterTarget = m.state.PositionMs + step + m.slots[master].offsetMs
	} else {
		if p := m.state.PositionMs + step; p > 0 {
			m.state.PositionMs = p
		} else {
			m.state.PositionMs = 0
		}
	}
	m.mu.Unlock()

	if master >= 0 {
		if err := m.HandleUserSeek(master, masterTarget); err != nil {
			m.log.Error("frame step failed", "frames", n, "error", err)
		}
		return
	}
	m.ResyncAll()
}

func (m *Manager) rateAllowed(rate float64) bool {
	for _, r := range m.cfg.Rates {
		if r == rate {
			return true
		}
	}
	return false
}

type boundAdapter struct {
	id      int
	adapter StreamAdapter
}

func (m *Manager) loadedAdaptersLocked() []boundAdapter {
	var out []boundAdapter
	for id := range m.slots {
		if m.slots[id].loaded {
			out = append(out, boundAdapter{id: id, adapter: m.slots[id].adapter})
		}
	}
	return out
}
