package core

import "time"

// Event type constants for the engine's typed event bus.
const (
	EventPositionReported = "position_reported"
	EventUserSought       = "user_sought"
	EventDriftCorrected   = "drift_corrected"
	EventMarkerChanged    = "marker_changed"
	EventTransportChanged = "transport_changed"
	EventStreamLoaded     = "stream_loaded"
	EventStreamUnloaded   = "stream_unloaded"
	EventMasterChanged    = "master_changed"
	EventSnapshotSaved    = "snapshot_saved"
	EventSaveFailed       = "save_failed"
)

// Marker change operations carried by MarkerChangedPayload.
const (
	MarkerOpAdded   = "added"
	MarkerOpUpdated = "updated"
	MarkerOpMoved   = "moved"
	MarkerOpDeleted = "deleted"
	MarkerOpCleared = "cleared"
)

// PositionReportedPayload carries a stream's latest known position.
type PositionReportedPayload struct {
	StreamID   int   `json:"stream_id"`
	PositionMs int64 `json:"position_ms"`
}

// UserSoughtPayload reports an explicit seek. Propagated is true when the
// seek fanned out to the other loaded streams.
type UserSoughtPayload struct {
	StreamID   int   `json:"stream_id"`
	PositionMs int64 `json:"position_ms"`
	Propagated bool  `json:"propagated"`
}

// DriftCorrectedPayload reports a corrective seek issued by the drift check.
type DriftCorrectedPayload struct {
	StreamID   int   `json:"stream_id"`
	ReportedMs int64 `json:"reported_ms"`
	TargetMs   int64 `json:"target_ms"`
	DriftMs    int64 `json:"drift_ms"`
}

// MarkerChangedPayload reports a marker store mutation. Marker is nil for
// the cleared op; Count is the store size after the mutation.
type MarkerChangedPayload struct {
	Op     string  `json:"op"`
	Marker *Marker `json:"marker,omitempty"`
	Count  int     `json:"count"`
}

// TransportChangedPayload reports play/pause/rate/sync-gate changes.
type TransportChangedPayload struct {
	Playing     bool    `json:"playing"`
	Rate        float64 `json:"rate"`
	SyncEnabled bool    `json:"sync_enabled"`
}

// StreamPayload identifies a stream slot for load/unload events.
type StreamPayload struct {
	StreamID   int   `json:"stream_id"`
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// MasterChangedPayload reports master reassignment. Auto is true when the
// engine promoted the stream after the previous master was unloaded.
type MasterChangedPayload struct {
	StreamID int  `json:"stream_id"` // -1 when master became unset
	Auto     bool `json:"auto"`
}

// SnapshotSavedPayload reports a successful persistence pass.
type SnapshotSavedPayload struct {
	Backend     string        `json:"backend"`
	MarkerCount int           `json:"marker_count"`
	Duration    time.Duration `json:"duration"`
}

// SaveFailedPayload surfaces a persistence failure. Published once per
// failure streak, not on every retry.
type SaveFailedPayload struct {
	Backend string `json:"backend"`
	Error   string `json:"error"`
}
