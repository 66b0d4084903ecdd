// Package marker implements the temporal marker store: timeline annotations
// ordered by (timestamp, id) with monotonically increasing identifiers.
package marker

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vidsync/engine/internal/model/core"
)

var (
	ErrInvalidTimestamp = errors.New("marker: timestamp must not be negative")
	ErrInvalidColor     = errors.New("marker: unknown color")
	ErrInvalidCategory  = errors.New("marker: unknown category")
	ErrNotFound         = errors.New("marker: not found")
)

// Direction selects which way Nearest scans from the reference timestamp.
type Direction int

const (
	// Backward finds the closest marker at or before the reference.
	Backward Direction = -1
	// Forward finds the closest marker at or after the reference.
	Forward Direction = 1
)

// Publisher receives store change events. The dispatcher satisfies this.
type Publisher interface {
	Publish(eventType string, payload any)
}

// MarkerUpdate is a partial update. Nil fields are left unchanged.
type MarkerUpdate struct {
	TimestampMs *int64
	Label       *string
	Color       *core.Color
	Category    *core.Category
	Description *string
}

// Stats summarizes the store contents for status displays and the CLI.
type Stats struct {
	Total      int                   `json:"total"`
	ByCategory map[core.Category]int `json:"by_category"`
	ByColor    map[core.Color]int    `json:"by_color"`
	FirstMs    int64                 `json:"first_ms"`
	LastMs     int64                 `json:"last_ms"`
}

// indexEntry orders markers by (timestamp, id).
type indexEntry struct {
	ts int64
	id uint64
}

// Store holds markers in memory. All methods are safe for concurrent use.
// Change events are published after the lock is released; the store never
// calls out while holding it.
type Store struct {
	mu     sync.RWMutex
	byID   map[uint64]*core.Marker
	index  []indexEntry
	nextID uint64
	dirty  bool

	pub Publisher
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher routes change events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Store) {
		s.pub = p
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:   make(map[uint64]*core.Marker),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add creates a marker at timestampMs and returns the stored copy.
// Empty color and category fall back to the defaults; unknown values are
// rejected.
func (s *Store) Add(timestampMs int64, label string, color core.Color, category core.Category, description string) (core.Marker, error) {
	if timestampMs < 0 {
		return core.Marker{}, ErrInvalidTimestamp
	}
	if color != "" && !core.ValidColor(color) {
		return core.Marker{}, ErrInvalidColor
	}
	if category != "" && !core.ValidCategory(category) {
		return core.Marker{}, ErrInvalidCategory
	}

	s.mu.Lock()
	m := core.NewMarker(timestampMs, label, color, category, description)
	m.ID = s.nextID
	s.nextID++
	s.byID[m.ID] = &m
	s.insertIndex(indexEntry{ts: m.TimestampMs, id: m.ID})
	s.dirty = true
	stored := m
	count := len(s.byID)
	s.mu.Unlock()

	s.publish(core.MarkerOpAdded, &stored, count)
	return stored, nil
}

// Get returns the marker with the given id.
func (s *Store) Get(id uint64) (core.Marker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return core.Marker{}, ErrNotFound
	}
	return *m, nil
}

// Update applies a partial update and returns the new state of the marker.
func (s *Store) Update(id uint64, upd MarkerUpdate) (core.Marker, error) {
	if upd.TimestampMs != nil && *upd.TimestampMs < 0 {
		return core.Marker{}, ErrInvalidTimestamp
	}
	if upd.Color != nil && !core.ValidColor(*upd.Color) {
		return core.Marker{}, ErrInvalidColor
	}
	if upd.Category != nil && !core.ValidCategory(*upd.Category) {
		return core.Marker{}, ErrInvalidCategory
	}

	s.mu.Lock()
	m, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return core.Marker{}, ErrNotFound
	}

	moved := false
	if upd.TimestampMs != nil && *upd.TimestampMs != m.TimestampMs {
		s.removeIndex(indexEntry{ts: m.TimestampMs, id: m.ID})
		m.TimestampMs = *upd.TimestampMs
		s.insertIndex(indexEntry{ts: m.TimestampMs, id: m.ID})
		moved = true
	}
	if upd.Label != nil {
		m.Label = *upd.Label
	}
	if upd.Color != nil {
		m.Color = *upd.Color
	}
	if upd.Category != nil {
		m.Category = *upd.Category
	}
	if upd.Description != nil {
		m.Description = *upd.Description
	}
	m.UpdatedAt = time.Now().UTC()
	s.dirty = true
	stored := *m
	count := len(s.byID)
	s.mu.Unlock()

	op := core.MarkerOpUpdated
	if moved {
		op = core.MarkerOpMoved
	}
	s.publish(op, &stored, count)
	return stored, nil
}

// Move repositions a marker on the timeline.
func (s *Store) Move(id uint64, newTimestampMs int64) (core.Marker, error) {
	return s.Update(id, MarkerUpdate{TimestampMs: &newTimestampMs})
}

// Delete removes the marker with the given id.
func (s *Store) Delete(id uint64) error {
	s.mu.Lock()
	m, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	removed := *m
	delete(s.byID, id)
	s.removeIndex(indexEntry{ts: removed.TimestampMs, id: id})
	s.dirty = true
	count := len(s.byID)
	s.mu.Unlock()

	s.publish(core.MarkerOpDeleted, &removed, count)
	return nil
}

// DeleteAll removes every marker and returns how many were removed.
// The id counter is not reset: ids are never reused within a session.
func (s *Store) DeleteAll() int {
	s.mu.Lock()
	removed := len(s.byID)
	s.byID = make(map[uint64]*core.Marker)
	s.index = s.index[:0]
	if removed > 0 {
		s.dirty = true
	}
	s.mu.Unlock()

	if removed > 0 {
		s.publish(core.MarkerOpCleared, nil, 0)
	}
	return removed
}

// Count returns the number of markers.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// All returns every marker ascending by (timestamp, id).
func (s *Store) All() []core.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Marker, len(s.index))
	for i, e := range s.index {
		out[i] = *s.byID[e.id]
	}
	return out
}

// FindInRange returns markers with startMs <= timestamp <= endMs, ascending
// by (timestamp, id). An inverted range yields nil.
func (s *Store) FindInRange(startMs, endMs int64) []core.Marker {
	if startMs > endMs {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.index), func(i int) bool { return s.index[i].ts >= startMs })
	var out []core.Marker
	for i := lo; i < len(s.index) && s.index[i].ts <= endMs; i++ {
		out = append(out, *s.byID[s.index[i].id])
	}
	return out
}

// Nearest returns the closest marker in the given direction. An exact
// timestamp match is returned for both directions; ties at the same
// timestamp resolve to the lowest id.
func (s *Store) Nearest(timestampMs int64, dir Direction) (core.Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.index)
	if n == 0 {
		return core.Marker{}, false
	}

	if dir == Forward {
		i := sort.Search(n, func(i int) bool { return s.index[i].ts >= timestampMs })
		if i == n {
			return core.Marker{}, false
		}
		return *s.byID[s.index[i].id], true
	}

	i := sort.Search(n, func(i int) bool { return s.index[i].ts > timestampMs })
	if i == 0 {
		return core.Marker{}, false
	}
	j := i - 1
	for j > 0 && s.index[j-1].ts == s.index[j].ts {
		j--
	}
	return *s.byID[s.index[j].id], true
}

// Filter returns markers matching the category (when non-nil) and the
// case-insensitive text query over label and description. Conditions AND.
func (s *Store) Filter(category *core.Category, textQuery string) []core.Marker {
	query := strings.ToLower(textQuery)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Marker
	for _, e := range s.index {
		m := s.byID[e.id]
		if category != nil && m.Category != *category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(m.Label), query) &&
			!strings.Contains(strings.ToLower(m.Description), query) {
			continue
		}
		out = append(out, *m)
	}
	return out
}

// CountByCategory tallies markers per category.
func (s *Store) CountByCategory() map[core.Category]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[core.Category]int)
	for _, m := range s.byID {
		out[m.Category]++
	}
	return out
}

// CountByColor tallies markers per color.
func (s *Store) CountByColor() map[core.Color]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[core.Color]int)
	for _, m := range s.byID {
		out[m.Color]++
	}
	return out
}

// Stats summarizes the store. FirstMs and LastMs are zero when empty.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:      len(s.byID),
		ByCategory: make(map[core.Category]int),
		ByColor:    make(map[core.Color]int),
	}
	for _, m := range s.byID {
		st.ByCategory[m.Category]++
		st.ByColor[m.Color]++
	}
	if len(s.index) > 0 {
		st.FirstMs = s.index[0].ts
		st.LastMs = s.index[len(s.index)-1].ts
	}
	return st
}

// Snapshot returns a deep copy of the store contents at the current schema
// version. It does not touch the dirty flag.
func (s *Store) Snapshot() *core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// SnapshotIfDirty atomically snapshots and clears the dirty flag, or
// returns (nil, false) when there is nothing new to save. A failed save
// must call MarkDirty to re-arm the next pass.
func (s *Store) SnapshotIfDirty() (*core.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil, false
	}
	s.dirty = false
	return s.snapshotLocked(), true
}

// MarkDirty forces the next autosave pass to run.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Hydrate replaces the store contents with the snapshot, advancing the id
// counter past the highest loaded id. The store is clean afterwards.
func (s *Store) Hydrate(snap *core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[uint64]*core.Marker, len(snap.Markers))
	s.index = s.index[:0]
	for i := range snap.Markers {
		m := snap.Markers[i]
		s.byID[m.ID] = &m
		s.insertIndex(indexEntry{ts: m.TimestampMs, id: m.ID})
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
	}
	s.dirty = false
}

func (s *Store) snapshotLocked() *core.Snapshot {
	markers := make([]core.Marker, len(s.index))
	for i, e := range s.index {
		markers[i] = *s.byID[e.id]
	}
	return &core.Snapshot{
		SchemaVersion: core.SchemaVersion,
		Markers:       markers,
		SavedAt:       time.Now().UTC(),
	}
}

func (s *Store) insertIndex(e indexEntry) {
	i := sort.Search(len(s.index), func(i int) bool {
		a := s.index[i]
		return a.ts > e.ts || (a.ts == e.ts && a.id >= e.id)
	})
	s.index = append(s.index, indexEntry{})
	copy(s.index[i+1:], s.index[i:])
	s.index[i] = e
}

func (s *Store) removeIndex(e indexEntry) {
	i := sort.Search(len(s.index), func(i int) bool {
		a := s.index[i]
		return a.ts > e.ts || (a.ts == e.ts && a.id >= e.id)
	})
	if i < len(s.index) && s.index[i] == e {
		s.index = append(s.index[:i], s.index[i+1:]...)
	}
}

func (s *Store) publish(op string, m *core.Marker, count int) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(core.EventMarkerChanged, core.MarkerChangedPayload{
		Op:     op,
		Marker: m,
		Count:  count,
	})
}
