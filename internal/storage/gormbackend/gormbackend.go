// Package gormbackend implements the storage contract on a gorm database
// handle. The sqlite and postgres backends compose it and add their
// connection-specific concerns: this package only assumes a working
// *gorm.DB with a dialect that supports upserts.
package gormbackend

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidsync/engine/internal/model"
	"github.com/vidsync/engine/internal/model/convert"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage"
)

// Dependencies wires the backend to its collaborators.
type Dependencies struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// Backend persists snapshots as marker rows with soft deletes, plus
// schema_meta bookkeeping, session layouts and per-save audit rows.
type Backend struct {
	deps Dependencies
	db   *gorm.DB

	mu                  sync.Mutex
	lastDBWriteDuration time.Duration
}

var (
	_ storage.Backend               = (*Backend)(nil)
	_ storage.Vacuumer              = (*Backend)(nil)
	_ storage.SessionRecorder       = (*Backend)(nil)
	_ storage.WriteDurationProvider = (*Backend)(nil)
)

// New creates a backend over the given dependencies.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps, db: deps.DB}
}

// Init migrates the schema and reconciles the stored schema version.
func (b *Backend) Init() error {
	if b.db == nil {
		return fmt.Errorf("gorm backend requires a database handle")
	}
	if err := b.db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("%w: migrating schema: %v", storage.ErrIOFailure, err)
	}
	return b.reconcileSchemaVersion()
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// reconcileSchemaVersion brings an older database forward to the current
// snapshot schema and rejects databases written by a newer engine.
func (b *Backend) reconcileSchemaVersion() error {
	var meta model.SchemaMeta
	err := b.db.Where("key = ?", model.MetaKeySchemaVersion).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		meta = model.SchemaMeta{Key: model.MetaKeySchemaVersion, Value: strconv.Itoa(core.SchemaVersion)}
		if err := b.db.Create(&meta).Error; err != nil {
			return fmt.Errorf("%w: seeding schema version: %v", storage.ErrIOFailure, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading schema version: %v", storage.ErrIOFailure, err)
	}

	stored, convErr := strconv.Atoi(meta.Value)
	if convErr != nil || stored < 2 || stored > core.SchemaVersion {
		return fmt.Errorf("%w: database schema version %q", storage.ErrCorruptState, meta.Value)
	}
	if stored == core.SchemaVersion {
		return nil
	}

	// v2 rows predate updated_at; the column arrives NULL from AutoMigrate
	if err := b.db.Model(&model.MarkerRecord{}).
		Where("updated_at IS NULL").
		Update("updated_at", gorm.Expr("created_at")).Error; err != nil {
		return fmt.Errorf("%w: backfilling updated_at: %v", storage.ErrIOFailure, err)
	}
	if err := b.db.Model(&model.SchemaMeta{}).
		Where("key = ?", model.MetaKeySchemaVersion).
		Update("value", strconv.Itoa(core.SchemaVersion)).Error; err != nil {
		return fmt.Errorf("%w: bumping schema version: %v", storage.ErrIOFailure, err)
	}
	b.deps.Log.Info().Int("from", stored).Int("to", core.SchemaVersion).Msg("Migrated database schema")
	return nil
}

// LoadSnapshot reads all live marker rows in (timestamp, id) order.
func (b *Backend) LoadSnapshot() (*core.Snapshot, error) {
	var records []model.MarkerRecord
	if err := b.db.Order("timestamp_ms, marker_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: loading markers: %v", storage.ErrIOFailure, err)
	}
	return convert.SnapshotFromRecords(records, b.lastSavedAt()), nil
}

// SaveSnapshot upserts the snapshot's markers, soft-deletes rows missing
// from it and refreshes the schema_meta bookkeeping, all in one
// transaction. A per-save audit row is written regardless of outcome.
func (b *Backend) SaveSnapshot(snap *core.Snapshot) error {
	start := time.Now()

	err := b.db.Transaction(func(tx *gorm.DB) error {
		records := convert.CoreToMarkers(snap.Markers)
		if len(records) > 0 {
			// marker ids assigned after a reload can collide with a
			// tombstoned row; the upsert revives it with the new fields
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "marker_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"timestamp_ms", "label", "color", "category", "description", "updated_at", "deleted_at",
				}),
			}).CreateInBatches(records, 500).Error; err != nil {
				return fmt.Errorf("upserting markers: %w", err)
			}
		}

		ids := make([]uint64, len(snap.Markers))
		for i, m := range snap.Markers {
			ids[i] = m.ID
		}
		var delErr error
		if len(ids) == 0 {
			delErr = tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.MarkerRecord{}).Error
		} else {
			delErr = tx.Where("marker_id NOT IN ?", ids).Delete(&model.MarkerRecord{}).Error
		}
		if delErr != nil {
			return fmt.Errorf("reconciling deletions: %w", delErr)
		}

		if err := upsertMeta(tx, model.MetaKeySchemaVersion, strconv.Itoa(snap.SchemaVersion)); err != nil {
			return err
		}
		return upsertMeta(tx, model.MetaKeyLastSavedAt, snap.SavedAt.UTC().Format(time.RFC3339Nano))
	})

	duration := time.Since(start)
	b.audit(len(snap.Markers), duration, err)
	if err != nil {
		return fmt.Errorf("%w: saving snapshot: %v", storage.ErrIOFailure, err)
	}

	b.mu.Lock()
	b.lastDBWriteDuration = duration
	b.mu.Unlock()
	b.deps.Log.Debug().Dur("duration", duration).Int("markers", len(snap.Markers)).Msg("Snapshot written to database")
	return nil
}

// RecordSession appends the session layout as a history row.
func (b *Backend) RecordSession(s *core.Session) error {
	rec := convert.CoreToSession(*s)
	if err := b.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: recording session: %v", storage.ErrIOFailure, err)
	}
	return nil
}

// Vacuum compacts the underlying database.
func (b *Backend) Vacuum() error {
	if err := b.db.Exec("VACUUM").Error; err != nil {
		return fmt.Errorf("%w: vacuum: %v", storage.ErrIOFailure, err)
	}
	return nil
}

// LastWriteDuration reports the wall time of the last successful save.
func (b *Backend) LastWriteDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastDBWriteDuration
}

func (b *Backend) lastSavedAt() time.Time {
	var meta model.SchemaMeta
	if err := b.db.Where("key = ?", model.MetaKeyLastSavedAt).First(&meta).Error; err != nil {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, meta.Value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// audit records one save_audits row per pass, success or not. Audit
// failures are logged and swallowed; they must not mask the save result.
func (b *Backend) audit(markerCount int, duration time.Duration, saveErr error) {
	row := model.SaveAudit{
		Time:        time.Now().UTC(),
		Backend:     b.db.Dialector.Name(),
		MarkerCount: markerCount,
		DurationMs:  float32(duration.Microseconds()) / 1000,
		Success:     saveErr == nil,
	}
	if saveErr != nil {
		msg := saveErr.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
		row.Error = msg
	}
	if err := b.db.Create(&row).Error; err != nil {
		b.deps.Log.Error().Err(err).Msg("Could not record save audit")
	}
}

func upsertMeta(tx *gorm.DB, key, value string) error {
	meta := model.SchemaMeta{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error; err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
