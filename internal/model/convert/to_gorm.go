package convert

import (
	"encoding/json"

	"github.com/vidsync/engine/internal/model"
	"github.com/vidsync/engine/internal/model/core"
	"gorm.io/datatypes"
)

// CoreToMarker converts a core.Marker to a GORM model.MarkerRecord.
// core.Marker.ID maps to GORM MarkerRecord.MarkerID.
func CoreToMarker(m core.Marker) model.MarkerRecord {
	return model.MarkerRecord{
		MarkerID:    m.ID,
		TimestampMs: m.TimestampMs,
		Label:       m.Label,
		Color:       string(m.Color),
		Category:    string(m.Category),
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// CoreToMarkers converts a slice of core markers, preserving order.
func CoreToMarkers(markers []core.Marker) []model.MarkerRecord {
	records := make([]model.MarkerRecord, len(markers))
	for i, m := range markers {
		records[i] = CoreToMarker(m)
	}
	return records
}

// CoreToSession converts a core.Session to a GORM model.SessionRecord.
// The stream layout is stored as a JSON column.
func CoreToSession(s core.Session) model.SessionRecord {
	var streams datatypes.JSON
	if len(s.Streams) > 0 {
		streams, _ = json.Marshal(s.Streams)
	} else {
		streams = datatypes.JSON("[]")
	}

	return model.SessionRecord{
		SessionUID: s.ID,
		StartedAt:  s.StartedAt,
		SavedAt:    s.SavedAt,
		Master:     s.Master,
		Rate:       s.Rate,
		Streams:    streams,
	}
}
