package saver

import (
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidsync/engine/internal/marker"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage"
)

// fakeBackend records saved snapshots and fails on demand.
type fakeBackend struct {
	mu      gosync.Mutex
	saves   []*core.Snapshot
	saveErr error
}

var _ storage.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) Init() error  { return nil }
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) LoadSnapshot() (*core.Snapshot, error) {
	return core.EmptySnapshot(), nil
}

func (f *fakeBackend) SaveSnapshot(snap *core.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, snap)
	return nil
}

func (f *fakeBackend) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeBackend) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeBackend) lastSave() *core.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

// timedBackend additionally reports a fixed write duration.
type timedBackend struct {
	fakeBackend
	dur time.Duration
}

var _ storage.WriteDurationProvider = (*timedBackend)(nil)

func (t *timedBackend) LastWriteDuration() time.Duration { return t.dur }

// recordingPublisher captures events for assertions.
type recordingPublisher struct {
	mu     gosync.Mutex
	events []struct {
		typ     string
		payload any
	}
}

func (r *recordingPublisher) Publish(eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		typ     string
		payload any
	}{eventType, payload})
}

func (r *recordingPublisher) countOf(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.typ == eventType {
			n++
		}
	}
	return n
}

func (r *recordingPublisher) lastOf(eventType string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].typ == eventType {
			return r.events[i].payload
		}
	}
	return nil
}

func newTestService(t *testing.T, backend storage.Backend, interval time.Duration) (*Service, *marker.Store, *recordingPublisher) {
	t.Helper()
	store := marker.New()
	pub := &recordingPublisher{}
	svc := NewService(Dependencies{
		Store:       store,
		Backend:     backend,
		BackendName: "fake",
		Pub:         pub,
		Log:         zerolog.Nop(),
		Interval:    interval,
	})
	return svc, store, pub
}

func addMarker(t *testing.T, store *marker.Store, ts int64, label string) {
	t.Helper()
	_, err := store.Add(ts, label, core.ColorYellow, core.CategoryEvent, "")
	require.NoError(t, err)
}

func TestSaveNowCleanStoreSkips(t *testing.T) {
	backend := &fakeBackend{}
	svc, _, pub := newTestService(t, backend, time.Hour)

	require.NoError(t, svc.SaveNow())

	assert.Zero(t, backend.saveCount(), "a clean store writes nothing")
	assert.Zero(t, pub.countOf(core.EventSnapshotSaved))
}

func TestSaveNowWritesDirtyStore(t *testing.T) {
	backend := &fakeBackend{}
	svc, store, pub := newTestService(t, backend, time.Hour)
	addMarker(t, store, 15_000, "Opening shot")

	require.NoError(t, svc.SaveNow())

	require.Equal(t, 1, backend.saveCount())
	snap := backend.lastSave()
	require.Len(t, snap.Markers, 1)
	assert.Equal(t, "Opening shot", snap.Markers[0].Label)
	assert.False(t, store.Dirty(), "a successful save clears the dirty flag")

	require.Equal(t, 1, pub.countOf(core.EventSnapshotSaved))
	payload := pub.lastOf(core.EventSnapshotSaved).(core.SnapshotSavedPayload)
	assert.Equal(t, "fake", payload.Backend)
	assert.Equal(t, 1, payload.MarkerCount)

	// Nothing changed, so the next pass is a no-op.
	require.NoError(t, svc.SaveNow())
	assert.Equal(t, 1, backend.saveCount())
}

func TestFailedSaveRearmsDirtyAndRetries(t *testing.T) {
	backend := &fakeBackend{}
	backend.setErr(errors.New("disk full"))
	svc, store, pub := newTestService(t, backend, time.Hour)
	addMarker(t, store, 15_000, "Opening shot")

	require.Error(t, svc.SaveNow())
	assert.True(t, store.Dirty(), "a failed save re-arms the dirty flag")
	require.Equal(t, 1, pub.countOf(core.EventSaveFailed))
	failed := pub.lastOf(core.EventSaveFailed).(core.SaveFailedPayload)
	assert.Equal(t, "fake", failed.Backend)
	assert.Contains(t, failed.Error, "disk full")

	// The streak keeps retrying but surfaces the failure only once.
	require.Error(t, svc.SaveNow())
	require.Error(t, svc.SaveNow())
	assert.Equal(t, 1, pub.countOf(core.EventSaveFailed))

	backend.setErr(nil)
	require.NoError(t, svc.SaveNow())
	assert.False(t, store.Dirty())
	assert.Equal(t, 1, pub.countOf(core.EventSnapshotSaved))

	// A fresh streak surfaces again.
	store.MarkDirty()
	backend.setErr(errors.New("disk full"))
	require.Error(t, svc.SaveNow())
	assert.Equal(t, 2, pub.countOf(core.EventSaveFailed))
}

func TestWriteDurationProviderFeedsPayload(t *testing.T) {
	backend := &timedBackend{dur: 123 * time.Millisecond}
	svc, store, pub := newTestService(t, backend, time.Hour)
	addMarker(t, store, 15_000, "Opening shot")

	require.NoError(t, svc.SaveNow())

	payload := pub.lastOf(core.EventSnapshotSaved).(core.SnapshotSavedPayload)
	assert.Equal(t, 123*time.Millisecond, payload.Duration, "backends that track pure write time win over wall time")
}

func TestAutosaveLoopSavesWhenDirty(t *testing.T) {
	backend := &fakeBackend{}
	svc, store, _ := newTestService(t, backend, 5*time.Millisecond)

	svc.Start()
	defer svc.Stop()
	addMarker(t, store, 15_000, "Opening shot")

	require.Eventually(t, func() bool {
		return backend.saveCount() >= 1 && !store.Dirty()
	}, 2*time.Second, time.Millisecond)
}

func TestAutosaveLoopIdlesWhenClean(t *testing.T) {
	backend := &fakeBackend{}
	svc, _, _ := newTestService(t, backend, time.Millisecond)

	svc.Start()
	time.Sleep(30 * time.Millisecond)
	svc.Stop()

	assert.Zero(t, backend.saveCount(), "no ticks fire a write while the store is clean")
}

func TestServiceLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeBackend{}, time.Hour)

	assert.False(t, svc.IsRunning())
	svc.Start()
	svc.Start()
	assert.True(t, svc.IsRunning())

	svc.Stop()
	assert.False(t, svc.IsRunning())
	svc.Stop()

	svc.Start()
	assert.True(t, svc.IsRunning())
	svc.Stop()
}

func TestDefaultInterval(t *testing.T) {
	svc := NewService(Dependencies{Store: marker.New(), Backend: &fakeBackend{}, Log: zerolog.Nop()})
	assert.Equal(t, DefaultInterval, svc.deps.Interval)
}
