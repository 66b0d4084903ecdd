// Package sqlite implements the storage contract on an embedded SQLite
// database. It wraps the shared gorm backend via composition; the only
// SQLite-specific concerns are opening the database (in-memory when no
// path is configured) and the periodic VACUUM INTO dump to disk.
package sqlite

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/database"
	"github.com/vidsync/engine/internal/logging"
	"github.com/vidsync/engine/internal/storage"
	"github.com/vidsync/engine/internal/storage/gormbackend"
)

func init() {
	storage.Register("sqlite", func(cfg config.StorageConfig, log *logging.Manager) (storage.Backend, error) {
		return New(cfg.SQLite, log.Component("sqlite"))
	})
}

// Backend wraps the gorm backend with SQLite connection handling and the
// in-memory dump loop.
type Backend struct {
	*gormbackend.Backend

	db       *gorm.DB
	cfg      config.SQLiteConfig
	log      zerolog.Logger
	stopChan chan struct{}
}

var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Vacuumer = (*Backend)(nil)
)

// New opens the database configured by cfg. An empty cfg.Path keeps the
// database in memory; cfg.DumpPath then receives periodic disk dumps.
func New(cfg config.SQLiteConfig, log zerolog.Logger) (*Backend, error) {
	db, err := database.OpenSqlite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	return &Backend{
		Backend:  gormbackend.New(gormbackend.Dependencies{DB: db, Log: log}),
		db:       db,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded gorm backend and starts the dump
// goroutine when the database lives in memory.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.dumpConfigured() && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the
// embedded gorm backend.
func (b *Backend) Close() error {
	close(b.stopChan)

	if b.dumpConfigured() {
		if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
			b.log.Error().Err(err).Msg("Final database dump failed")
		}
	}
	return b.Backend.Close()
}

func (b *Backend) dumpConfigured() bool {
	return b.cfg.Path == "" && b.cfg.DumpPath != ""
}

// dumpLoop periodically dumps the in-memory database to disk.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is
// needed.
func (b *Backend) dumpLoop() {
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
				b.log.Error().Err(err).Msg("Periodic database dump failed")
			} else {
				b.log.Debug().Dur("duration", time.Since(start)).Str("path", b.cfg.DumpPath).Msg("Dumped in-memory database to disk")
			}
		}
	}
}
