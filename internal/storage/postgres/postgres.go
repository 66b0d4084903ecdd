// Package postgres implements the storage contract on PostgreSQL. When
// the server is unreachable it falls back to an in-memory SQLite
// database with periodic disk dumps, managed by the database connection
// manager.
package postgres

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/database"
	"github.com/vidsync/engine/internal/logging"
	"github.com/vidsync/engine/internal/storage"
	"github.com/vidsync/engine/internal/storage/gormbackend"
)

func init() {
	storage.Register("postgres", func(cfg config.StorageConfig, log *logging.Manager) (storage.Backend, error) {
		return New(cfg.DB, cfg.SQLite, log.Component("postgres")), nil
	})
}

// Backend wraps the gorm backend with connection management. Whether
// writes go to postgres or to the SQLite fallback is decided once, at
// Init time.
type Backend struct {
	*gormbackend.Backend

	dbCfg    config.DBConfig
	dumpCfg  config.SQLiteConfig
	manager  *database.Manager
	log      zerolog.Logger
	stopChan chan struct{}
}

var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Vacuumer = (*Backend)(nil)
)

// New creates a backend for the given connection settings. Nothing
// connects until Init.
func New(dbCfg config.DBConfig, dumpCfg config.SQLiteConfig, log zerolog.Logger) *Backend {
	return &Backend{
		dbCfg:    dbCfg,
		dumpCfg:  dumpCfg,
		manager:  database.NewManager(log),
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Init connects to the database, migrates the schema and starts the
// fallback dump loop when writes stay local.
func (b *Backend) Init() error {
	if err := b.manager.Connect(b.dbCfg); err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	b.manager.SqliteFilePath = b.dumpCfg.DumpPath

	b.Backend = gormbackend.New(gormbackend.Dependencies{DB: b.manager.DB, Log: b.log})
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.fallbackDumpConfigured() && b.dumpCfg.DumpInterval > 0 {
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine, writes a final fallback dump and
// closes the embedded gorm backend.
func (b *Backend) Close() error {
	close(b.stopChan)

	if b.fallbackDumpConfigured() {
		if err := b.manager.DumpMemoryToDisk(); err != nil {
			b.log.Error().Err(err).Msg("Final database dump failed")
		}
	}
	return b.Backend.Close()
}

// SavingLocally reports whether the backend fell back to SQLite.
func (b *Backend) SavingLocally() bool {
	return b.manager.ShouldSaveLocal
}

func (b *Backend) fallbackDumpConfigured() bool {
	return b.manager.ShouldSaveLocal && b.dumpCfg.DumpPath != ""
}

// dumpLoop periodically dumps the fallback database to disk.
func (b *Backend) dumpLoop() {
	ticker := time.NewTicker(b.dumpCfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.manager.DumpMemoryToDisk(); err != nil {
				b.log.Error().Err(err).Msg("Periodic database dump failed")
			}
		}
	}
}
