package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&SchemaMeta{},
	&MarkerRecord{},
	&SessionRecord{},
	&SaveAudit{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// SchemaMeta is a key/value table holding schema bookkeeping such as the
// snapshot schema version last written by the engine.
type SchemaMeta struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value" gorm:"size:255"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (*SchemaMeta) TableName() string {
	return "schema_meta"
}

// Well-known SchemaMeta keys.
const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyLastSavedAt   = "last_saved_at"
)

// SaveAudit records one row per persistence pass for diagnostics
type SaveAudit struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time `json:"time" gorm:"index:idx_saveaudit_time"` // Server time when the save completed
	Backend     string    `json:"backend" gorm:"size:32"`               // Backend name: file, sqlite, postgres, memory
	MarkerCount int       `json:"markerCount"`                          // Markers written in this pass
	DurationMs  float32   `json:"durationMs"`                           // Wall time of the write
	Success     bool      `json:"success" gorm:"default:true"`
	Error       string    `json:"error,omitempty" gorm:"size:512"`
}

func (*SaveAudit) TableName() string {
	return "save_audits"
}

////////////////////////
// MARKER MODELS
////////////////////////

// MarkerRecord is the persisted form of a timeline marker.
// MarkerID is the engine-assigned monotonic identifier; the gorm primary key
// is internal to the database and never surfaced to callers.
type MarkerRecord struct {
	ID        uint           `json:"-" gorm:"primarykey;autoIncrement;"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	MarkerID    uint64 `json:"markerId" gorm:"uniqueIndex:idx_marker_record_marker_id"`
	TimestampMs int64  `json:"timestampMs" gorm:"index:idx_marker_record_timestamp"` // Position on the shared timeline
	Label       string `json:"label" gorm:"size:128"`
	Color       string `json:"color" gorm:"size:16"`    // Named color: red, yellow, green, blue, purple, orange, cyan, pink
	Category    string `json:"category" gorm:"size:32"` // default, action, event, note, highlight, review
	Description string `json:"description" gorm:"size:2000"`
}

func (*MarkerRecord) TableName() string {
	return "markers"
}

////////////////////////
// SESSION MODELS
////////////////////////

// SessionRecord captures the transport and stream layout of one viewing
// session at save time. Streams holds []core.SessionStream as JSON.
type SessionRecord struct {
	gorm.Model
	SessionUID string         `json:"sessionUid" gorm:"size:64;index:idx_session_record_uid"`
	StartedAt  time.Time      `json:"startedAt"`
	SavedAt    time.Time      `json:"savedAt" gorm:"index:idx_session_record_saved_at"`
	Master     int            `json:"master" gorm:"default:-1"` // Stream slot of the master, -1 when unset
	Rate       float64        `json:"rate" gorm:"default:1.0"`
	Streams    datatypes.JSON `json:"streams" gorm:"default:'[]'"`
}

func (*SessionRecord) TableName() string {
	return "sessions"
}
