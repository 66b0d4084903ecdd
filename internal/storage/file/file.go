// internal/storage/file/file.go

// Package file persists marker snapshots as a versioned JSON document,
// replaced atomically on every save.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/logging"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage"
)

func init() {
	storage.Register("file", func(cfg config.StorageConfig, log *logging.Manager) (storage.Backend, error) {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("file backend requires storage.file.path")
		}
		return New(cfg.File, log.Component("storage.file")), nil
	})
}

// Backend stores snapshots in a single JSON file.
type Backend struct {
	path string
	log  zerolog.Logger

	mu        sync.Mutex
	lastWrite time.Duration
}

var (
	_ storage.Backend               = (*Backend)(nil)
	_ storage.WriteDurationProvider = (*Backend)(nil)
)

// New creates a file backend writing to cfg.Path.
func New(cfg config.FileConfig, log zerolog.Logger) *Backend {
	return &Backend{path: cfg.Path, log: log}
}

// Init ensures the snapshot directory exists.
func (b *Backend) Init() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("%w: creating snapshot directory: %v", storage.ErrIOFailure, err)
	}
	return nil
}

// Close releases nothing; the file is only held open during saves.
func (b *Backend) Close() error {
	return nil
}

// LoadSnapshot reads the snapshot file, migrating older schemas forward.
// A missing file yields an empty snapshot. State that cannot be decoded or
// sits at an unknown future schema is renamed to <name>.corrupt-<timestamp>
// and reported as ErrCorruptState; the original bytes are never deleted.
func (b *Backend) LoadSnapshot() (*core.Snapshot, error) {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return core.EmptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot: %v", storage.ErrIOFailure, err)
	}

	snap, err := Migrate(raw)
	if err != nil {
		if errors.Is(err, storage.ErrCorruptState) {
			quarantined := b.quarantine()
			b.log.Error().Err(err).Str("quarantined", quarantined).Msg("Snapshot unreadable, starting empty")
		}
		return nil, err
	}
	return snap, nil
}

// SaveSnapshot writes snap atomically: a temp file in the snapshot
// directory, fsync, then rename over the canonical path. A reader never
// observes a partial document.
func (b *Backend) SaveSnapshot(snap *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()

	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp snapshot: %v", storage.ErrIOFailure, err)
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: encoding snapshot: %v", storage.ErrIOFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: syncing snapshot: %v", storage.ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp snapshot: %v", storage.ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing snapshot: %v", storage.ErrIOFailure, err)
	}

	b.lastWrite = time.Since(start)
	b.log.Debug().Dur("duration", b.lastWrite).Int("markers", len(snap.Markers)).Msg("Snapshot written")
	return nil
}

// LastWriteDuration reports how long the last successful save took.
func (b *Backend) LastWriteDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastWrite
}

// quarantine renames the bad snapshot aside and returns the new path,
// or "" if the rename itself failed.
func (b *Backend) quarantine() string {
	dst := fmt.Sprintf("%s.corrupt-%s", b.path, time.Now().UTC().Format("20060102_150405"))
	if err := os.Rename(b.path, dst); err != nil {
		b.log.Error().Err(err).Msg("Could not quarantine corrupt snapshot")
		return ""
	}
	return dst
}
