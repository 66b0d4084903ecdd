package sync

import (
	"errors"
	gosync "sync"
	"testing"

	"github.com/vidsync/engine/internal/model/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter records control calls for assertions.
type fakeAdapter struct {
	mu      gosync.Mutex
	pos     int64
	dur     int64
	rate    float64
	playing bool
	seeks   []int64
	seekErr error
}

var _ StreamAdapter = (*fakeAdapter)(nil)

func newFakeAdapter(durationMs int64) *fakeAdapter {
	return &fakeAdapter{dur: durationMs, rate: 1.0}
}

func (f *fakeAdapter) PositionMs() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeAdapter) DurationMs() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dur
}

func (f *fakeAdapter) Seek(ms int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekErr != nil {
		return f.seekErr
	}
	f.seeks = append(f.seeks, ms)
	f.pos = ms
	return nil
}

func (f *fakeAdapter) SetRate(rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
	return nil
}

func (f *fakeAdapter) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	return nil
}

func (f *fakeAdapter) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakeAdapter) IsLoaded() bool { return true }

func (f *fakeAdapter) seekLog() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.seeks))
	copy(out, f.seeks)
	return out
}

// twoStreams loads a 10-minute master on slot 0 and a second stream on
// slot 1 with the given offset.
func twoStreams(t *testing.T, offset1 int64) (*Manager, *fakeAdapter, *fakeAdapter) {
	t.Helper()
	m := NewManager(Config{})
	a0 := newFakeAdapter(600_000)
	a1 := newFakeAdapter(600_000)
	require.NoError(t, m.LoadStream(0, a0))
	require.NoError(t, m.LoadStream(1, a1))
	require.NoError(t, m.SetOffset(1, offset1))
	return m, a0, a1
}

func TestManager_LoadStream(t *testing.T) {
	m := NewManager(Config{MaxStreams: 2})

	require.NoError(t, m.LoadStream(0, newFakeAdapter(1000)))
	assert.Equal(t, 0, m.Master(), "first loaded stream becomes master")

	assert.ErrorIs(t, m.LoadStream(2, newFakeAdapter(1000)), ErrInvalidStream, "slot out of range")
	assert.ErrorIs(t, m.LoadStream(-1, newFakeAdapter(1000)), ErrInvalidStream)
	assert.ErrorIs(t, m.LoadStream(0, nil), ErrInvalidStream)

	streams := m.Streams()
	require.Len(t, streams, 2)
	assert.True(t, streams[0].IsLoaded)
	assert.True(t, streams[0].IsMaster)
	assert.Equal(t, int64(1000), streams[0].DurationMs)
	assert.False(t, streams[1].IsLoaded)
}

func TestManager_LoadStream_ReplaceResetsOffset(t *testing.T) {
	m, _, _ := twoStreams(t, -500)

	require.NoError(t, m.LoadStream(1, newFakeAdapter(300_000)))

	streams := m.Streams()
	assert.Equal(t, int64(0), streams[1].OffsetMs, "reload resets the stored offset")
	assert.Equal(t, int64(300_000), streams[1].DurationMs)
}

func TestManager_ComputeTargetPosition(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.LoadStream(0, newFakeAdapter(600_000)))
	require.NoError(t, m.LoadStream(1, newFakeAdapter(600_000)))
	require.NoError(t, m.SetOffset(1, -500))

	tests := []struct {
		name        string
		stream      int
		transportMs int64
		want        int64
	}{
		{"plain offset", 1, 10_000, 9_500},
		{"clamped at zero", 1, 200, 0},
		{"clamped at duration", 1, 700_000, 600_000},
		{"zero offset", 0, 10_000, 10_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ComputeTargetPosition(tt.stream, tt.transportMs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := m.ComputeTargetPosition(3, 0)
	assert.ErrorIs(t, err, ErrInvalidStream)
}

func TestManager_DriftCorrection(t *testing.T) {
	m, a0, a1 := twoStreams(t, -500)

	// Stream 1 reports 9200; master reports 10000. Target for stream 1 is
	// 9500, so the drift of -300 exceeds the 150ms tolerance.
	require.NoError(t, m.OnPositionReport(1, 9_200))
	m.OnMasterPositionReport(10_000)

	assert.Equal(t, []int64{9_500}, a1.seekLog(), "exactly one corrective seek at the target")
	assert.Empty(t, a0.seekLog(), "master is never corrected")
	assert.Equal(t, int64(10_000), m.Transport().State().PositionMs)
}

func TestManager_DriftWithinToleranceIgnored(t *testing.T) {
	m, _, a1 := twoStreams(t, 0)

	require.NoError(t, m.OnPositionReport(1, 9_850))
	m.OnMasterPositionReport(10_000)
	assert.Empty(t, a1.seekLog(), "drift of exactly the tolerance is not corrected")

	require.NoError(t, m.OnPositionReport(1, 9_849))
	m.OnMasterPositionReport(10_000)
	assert.Equal(t, []int64{10_000}, a1.seekLog(), "drift beyond the tolerance is")
}

func TestManager_SilentStreamNotCorrected(t *testing.T) {
	m, _, a1 := twoStreams(t, 0)

	// No report from stream 1 yet.
	m.OnMasterPositionReport(10_000)
	assert.Empty(t, a1.seekLog())

	require.NoError(t, m.OnPositionReport(1, 5_000))
	m.OnMasterPositionReport(10_000)
	require.Len(t, a1.seekLog(), 1)

	// The report was consumed by the corrective seek; without a fresh one
	// the next tick leaves the stream alone.
	m.OnMasterPositionReport(10_100)
	assert.Len(t, a1.seekLog(), 1)
}

func TestManager_DriftGatedOnSyncEnabled(t *testing.T) {
	m, _, a1 := twoStreams(t, 0)
	m.Transport().SetSyncEnabled(false)

	require.NoError(t, m.OnPositionReport(1, 0))
	m.OnMasterPositionReport(10_000)

	assert.Empty(t, a1.seekLog())
	assert.Equal(t, int64(10_000), m.Transport().State().PositionMs, "transport still follows the master")
}

func TestManager_MasterOffsetShiftsTransport(t *testing.T) {
	m, _, _ := twoStreams(t, 0)
	require.NoError(t, m.SetOffset(0, 2_000))

	m.OnMasterPositionReport(10_000)
	assert.Equal(t, int64(8_000), m.Transport().State().PositionMs)

	m.OnMasterPositionReport(1_000)
	assert.Equal(t, int64(0), m.Transport().State().PositionMs, "transport floors at zero")
}

func TestManager_FailedSeekRetriesNextTick(t *testing.T) {
	m, _, a1 := twoStreams(t, 0)
	a1.seekErr = errors.New("player busy")

	require.NoError(t, m.OnPositionReport(1, 0))
	m.OnMasterPositionReport(10_000)
	assert.Empty(t, a1.seekLog())

	// The player recovers and reports again; the next tick converges.
	a1.seekErr = nil
	require.NoError(t, m.OnPositionReport(1, 0))
	m.OnMasterPositionReport(10_000)
	assert.Equal(t, []int64{10_000}, a1.seekLog())
}

func TestManager_HandleUserSeek(t *testing.T) {
	m := NewManager(Config{})
	a0 := newFakeAdapter(600_000)
	a1 := newFakeAdapter(600_000)
	a2 := newFakeAdapter(600_000)
	require.NoError(t, m.LoadStream(0, a0))
	require.NoError(t, m.LoadStream(1, a1))
	require.NoError(t, m.LoadStream(2, a2))
	require.NoError(t, m.SetOffset(1, -500))
	require.NoError(t, m.SetOffset(2, 1_000))

	require.NoError(t, m.HandleUserSeek(1, 9_500))

	assert.Equal(t, []int64{9_500}, a1.seekLog())
	assert.Equal(t, []int64{10_000}, a0.seekLog(), "other streams land at pos + (their offset - seeker offset)")
	assert.Equal(t, []int64{11_000}, a2.seekLog())
	assert.Equal(t, int64(10_000), m.Transport().State().PositionMs)

	offsets := m.Streams()
	assert.Equal(t, int64(-500), offsets[1].OffsetMs, "stored offsets are untouched")

	assert.ErrorIs(t, m.HandleUserSeek(3, 0), ErrInvalidStream)
}

func TestManager_HandleUserSeek_SyncDisabled(t *testing.T) {
	m, a0, a1 := twoStreams(t, -500)
	m.Transport().SetSyncEnabled(false)
	before := m.Transport().State().PositionMs

	require.NoError(t, m.HandleUserSeek(1, 9_500))

	assert.Equal(t, []int64{9_500}, a1.seekLog())
	assert.Empty(t, a0.seekLog(), "no fan-out while sync is disabled")
	assert.Equal(t, before, m.Transport().State().PositionMs)
}

func TestManager_ResyncAllIdempotent(t *testing.T) {
	m, a0, a1 := twoStreams(t, -500)
	m.OnMasterPositionReport(10_000)

	m.ResyncAll()
	m.ResyncAll()

	log0, log1 := a0.seekLog(), a1.seekLog()
	require.Len(t, log0, 2)
	require.Len(t, log1, 2)
	assert.Equal(t, log0[0], log0[1], "identical targets on repeat")
	assert.Equal(t, log1[0], log1[1])
	assert.Equal(t, int64(10_000), log0[0])
	assert.Equal(t, int64(9_500), log1[0])
}

func TestManager_LoadedStreamsMasterLast(t *testing.T) {
	m := NewManager(Config{})
	a0 := newFakeAdapter(1000)
	a1 := newFakeAdapter(1000)
	a2 := newFakeAdapter(1000)
	require.NoError(t, m.LoadStream(0, a0))
	require.NoError(t, m.LoadStream(1, a1))
	require.NoError(t, m.LoadStream(2, a2))
	require.NoError(t, m.SetMaster(1))

	bound := m.LoadedStreams()
	require.Len(t, bound, 3)
	assert.Equal(t, []int{0, 2, 1}, []int{bound[0].ID, bound[1].ID, bound[2].ID}, "master comes last")
	assert.True(t, bound[2].IsMaster)
	assert.Same(t, a1, bound[2].Adapter)
	assert.False(t, bound[0].IsMaster)

	assert.Empty(t, NewManager(Config{}).LoadedStreams())
}

func TestManager_SetMaster(t *testing.T) {
	m, _, _ := twoStreams(t, 0)

	require.NoError(t, m.SetMaster(1))
	assert.Equal(t, 1, m.Master())

	assert.ErrorIs(t, m.SetMaster(3), ErrInvalidStream)
	assert.ErrorIs(t, m.SetMaster(2), ErrInvalidStream, "unloaded slot cannot be master")
}

func TestManager_UnloadMasterPromotesLowestLoaded(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.LoadStream(0, newFakeAdapter(1000)))
	require.NoError(t, m.LoadStream(1, newFakeAdapter(1000)))
	require.NoError(t, m.LoadStream(2, newFakeAdapter(1000)))
	require.NoError(t, m.SetMaster(1))

	require.NoError(t, m.UnloadStream(1))
	assert.Equal(t, 0, m.Master(), "lowest-numbered loaded stream is promoted")

	require.NoError(t, m.UnloadStream(0))
	assert.Equal(t, 2, m.Master())
}

func TestManager_UnloadLastStreamPausesTransport(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.LoadStream(0, newFakeAdapter(1000)))
	m.Transport().Play()
	m.Transport().SetSyncEnabled(false)

	require.NoError(t, m.UnloadStream(0))

	assert.Equal(t, -1, m.Master())
	state := m.Transport().State()
	assert.False(t, state.Playing, "no loaded streams means nothing can play")
	assert.False(t, state.SyncEnabled, "the sync gate is left as the user set it")

	assert.ErrorIs(t, m.UnloadStream(0), ErrInvalidStream, "double unload")
}

func TestManager_PublishesLifecycleEvents(t *testing.T) {
	rec := &recordingPublisher{}
	m := NewManager(Config{}, WithPublisher(rec))
	require.NoError(t, m.LoadStream(0, newFakeAdapter(1000)))
	require.NoError(t, m.UnloadStream(0))

	types := rec.typeLog()
	assert.Equal(t, []string{
		core.EventStreamLoaded,
		core.EventMasterChanged,
		core.EventStreamUnloaded,
		core.EventMasterChanged,
	}, types)
}

func TestManager_DriftEventCarriesMeasurement(t *testing.T) {
	rec := &recordingPublisher{}
	m := NewManager(Config{}, WithPublisher(rec))
	require.NoError(t, m.LoadStream(0, newFakeAdapter(600_000)))
	require.NoError(t, m.LoadStream(1, newFakeAdapter(600_000)))
	require.NoError(t, m.SetOffset(1, -500))

	require.NoError(t, m.OnPositionReport(1, 9_200))
	m.OnMasterPositionReport(10_000)

	var drift *core.DriftCorrectedPayload
	for _, e := range rec.payloadLog() {
		if p, ok := e.(core.DriftCorrectedPayload); ok {
			drift = &p
			break
		}
	}
	require.NotNil(t, drift, "expected a drift correction event")
	assert.Equal(t, 1, drift.StreamID)
	assert.Equal(t, int64(9_200), drift.ReportedMs)
	assert.Equal(t, int64(9_500), drift.TargetMs)
	assert.Equal(t, int64(-300), drift.DriftMs)
}

// recordingPublisher captures events for assertions.
type recordingPublisher struct {
	mu       gosync.Mutex
	types    []string
	payloads []any
}

func (r *recordingPublisher) Publish(eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	r.payloads = append(r.payloads, payload)
}

func (r *recordingPublisher) typeLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

func (r *recordingPublisher) payloadLog() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.payloads))
	copy(out, r.payloads)
	return out
}
