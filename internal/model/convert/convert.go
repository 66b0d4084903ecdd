// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/vidsync/engine/internal/model"
	"github.com/vidsync/engine/internal/model/core"
)

// MarkerToCore converts a GORM MarkerRecord to a core.Marker.
// GORM MarkerRecord.MarkerID maps to core Marker.ID; unknown colors and
// categories fall back to the core defaults.
func MarkerToCore(r model.MarkerRecord) core.Marker {
	color := core.Color(r.Color)
	if !core.ValidColor(color) {
		color = core.DefaultColor
	}
	category := core.Category(r.Category)
	if !core.ValidCategory(category) {
		category = core.CategoryDefault
	}

	return core.Marker{
		ID:          r.MarkerID,
		TimestampMs: r.TimestampMs,
		Label:       r.Label,
		Color:       color,
		Category:    category,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// MarkersToCore converts a slice of records, preserving order.
func MarkersToCore(records []model.MarkerRecord) []core.Marker {
	markers := make([]core.Marker, len(records))
	for i, r := range records {
		markers[i] = MarkerToCore(r)
	}
	return markers
}

// SnapshotFromRecords assembles a current-version snapshot from database
// rows. SavedAt is taken from the caller because the database does not
// store it per row.
func SnapshotFromRecords(records []model.MarkerRecord, savedAt time.Time) *core.Snapshot {
	return &core.Snapshot{
		SchemaVersion: core.SchemaVersion,
		Markers:       MarkersToCore(records),
		SavedAt:       savedAt,
	}
}

// SessionToCore converts a GORM SessionRecord to a core.Session.
// The Streams JSON column decodes into []core.SessionStream; a corrupt
// column yields an empty stream list rather than an error.
func SessionToCore(r model.SessionRecord) core.Session {
	var streams []core.SessionStream
	if len(r.Streams) > 0 {
		_ = json.Unmarshal(r.Streams, &streams)
	}

	return core.Session{
		ID:        r.SessionUID,
		StartedAt: r.StartedAt,
		SavedAt:   r.SavedAt,
		Master:    r.Master,
		Rate:      r.Rate,
		Streams:   streams,
	}
}
