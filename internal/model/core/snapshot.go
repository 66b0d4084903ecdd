package core

import "time"

// SchemaVersion is the current persisted snapshot schema.
// History:
//
//	v1 — legacy flat format: string "version" field, markers keyed by
//	     "timestamp" with hex colors, no ids, no labels.
//	v2 — integer schema_version, named colors and ids, no updated_at.
//	v3 — current: adds updated_at per marker and saved_at on the document.
const SchemaVersion = 3

// Snapshot is the persisted state of the marker store.
type Snapshot struct {
	SchemaVersion int       `json:"schema_version"`
	Markers       []Marker  `json:"markers"`
	SavedAt       time.Time `json:"saved_at"`
}

// EmptySnapshot returns a snapshot at the current schema with no markers.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Markers:       []Marker{},
	}
}

// Session captures the stream layout at save time so a later run can
// restore offsets and the master assignment.
type Session struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	SavedAt   time.Time       `json:"saved_at"`
	Master    int             `json:"master"` // -1 when unset
	Rate      float64         `json:"rate"`
	Streams   []SessionStream `json:"streams"`
}

// SessionStream is one stream slot within a session.
type SessionStream struct {
	ID         int   `json:"id"`
	OffsetMs   int64 `json:"offset_ms"`
	DurationMs int64 `json:"duration_ms"`
}
