// internal/storage/file/migrate.go
package file

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage"
)

// snapshotHeader peeks at the version fields without committing to a layout.
// v1 documents carry a string "version"; v2 and later an integer
// "schema_version".
type snapshotHeader struct {
	SchemaVersion *int   `json:"schema_version"`
	Version       string `json:"version"`
}

// v1Document is the legacy flat format: markers keyed by "timestamp" with
// hex colors, no ids and no labels.
type v1Document struct {
	Version   string     `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	Markers   []v1Marker `json:"markers"`
}

type v1Marker struct {
	Timestamp   int64     `json:"timestamp"`
	Color       string    `json:"color"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// v2Document introduced integer schema versions, ids, labels and named
// colors, but not per-marker updated_at or document saved_at.
type v2Document struct {
	SchemaVersion int        `json:"schema_version"`
	Markers       []v2Marker `json:"markers"`
}

type v2Marker struct {
	ID          uint64    `json:"id"`
	TimestampMs int64     `json:"timestamp_ms"`
	Label       string    `json:"label"`
	Color       string    `json:"color"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Migrate decodes raw snapshot bytes at any known schema version and
// carries them forward to the current one, one version at a time.
func Migrate(raw []byte) (*core.Snapshot, error) {
	var head snapshotHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: undecodable snapshot: %v", storage.ErrCorruptState, err)
	}

	switch {
	case head.SchemaVersion == nil && head.Version != "":
		doc, err := decodeV1(raw)
		if err != nil {
			return nil, err
		}
		return v2ToCurrent(v1ToV2(doc), doc.CreatedAt), nil
	case head.SchemaVersion == nil:
		return nil, fmt.Errorf("%w: snapshot has no schema version", storage.ErrCorruptState)
	case *head.SchemaVersion == 2:
		doc, err := decodeV2(raw)
		if err != nil {
			return nil, err
		}
		return v2ToCurrent(doc, time.Time{}), nil
	case *head.SchemaVersion == core.SchemaVersion:
		return decodeCurrent(raw)
	default:
		return nil, fmt.Errorf("%w: unsupported schema version %d", storage.ErrCorruptState, *head.SchemaVersion)
	}
}

func decodeV1(raw []byte) (v1Document, error) {
	var doc v1Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("%w: undecodable v1 snapshot: %v", storage.ErrCorruptState, err)
	}
	return doc, nil
}

func decodeV2(raw []byte) (v2Document, error) {
	var doc v2Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("%w: undecodable v2 snapshot: %v", storage.ErrCorruptState, err)
	}
	return doc, nil
}

func decodeCurrent(raw []byte) (*core.Snapshot, error) {
	var snap core.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: undecodable snapshot: %v", storage.ErrCorruptState, err)
	}
	for i := range snap.Markers {
		normalize(&snap.Markers[i])
	}
	return &snap, nil
}

// v1ToV2 assigns ids in (timestamp, file order), takes the label from the
// description and maps hex colors to their named color, falling back to
// the default for unknown values.
func v1ToV2(doc v1Document) v2Document {
	markers := make([]v2Marker, len(doc.Markers))
	order := make([]int, len(doc.Markers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return doc.Markers[order[a]].Timestamp < doc.Markers[order[b]].Timestamp
	})

	for rank, idx := range order {
		m := doc.Markers[idx]
		color, ok := core.ColorFromHex(m.Color)
		if !ok {
			color = core.DefaultColor
		}
		markers[rank] = v2Marker{
			ID:          uint64(rank) + 1,
			TimestampMs: m.Timestamp,
			Label:       m.Description,
			Color:       string(color),
			Category:    m.Category,
			Description: m.Description,
			CreatedAt:   m.CreatedAt,
		}
	}
	return v2Document{SchemaVersion: 2, Markers: markers}
}

// v2ToCurrent fills the fields v2 lacked: updated_at mirrors created_at
// and the document saved_at falls back to the given time.
func v2ToCurrent(doc v2Document, savedAt time.Time) *core.Snapshot {
	markers := make([]core.Marker, len(doc.Markers))
	for i, m := range doc.Markers {
		markers[i] = core.Marker{
			ID:          m.ID,
			TimestampMs: m.TimestampMs,
			Label:       m.Label,
			Color:       core.Color(m.Color),
			Category:    core.Category(m.Category),
			Description: m.Description,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   m.CreatedAt,
		}
		normalize(&markers[i])
	}
	return &core.Snapshot{
		SchemaVersion: core.SchemaVersion,
		Markers:       markers,
		SavedAt:       savedAt,
	}
}

// normalize coerces unknown color and category values to their defaults.
func normalize(m *core.Marker) {
	if !core.ValidColor(m.Color) {
		m.Color = core.DefaultColor
	}
	if !core.ValidCategory(m.Category) {
		m.Category = core.CategoryDefault
	}
}
