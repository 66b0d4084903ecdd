package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidsync/engine/internal/config"
)

// probe tables keep these tests independent of the engine schema and of
// each other (the shared-cache in-memory DB is process wide).
type dumpProbe struct {
	ID   uint `gorm:"primarykey"`
	Name string
}

type openProbe struct {
	ID   uint `gorm:"primarykey"`
	Name string
}

func TestOpenSqliteInMemory(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)
	require.NotNil(t, db)

	require.NoError(t, db.AutoMigrate(&openProbe{}))
	require.NoError(t, db.Create(&openProbe{Name: "row"}).Error)

	var count int64
	require.NoError(t, db.Model(&openProbe{}).Count(&count).Error)
	assert.GreaterOrEqual(t, count, int64(1))
}

func TestOpenSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.db")
	db, err := OpenSqlite(path)
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&openProbe{}))
	require.NoError(t, db.Create(&openProbe{Name: "persisted"}).Error)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "file-backed DB should exist on disk")
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&dumpProbe{}))
	require.NoError(t, db.Create(&dumpProbe{Name: "first"}).Error)
	require.NoError(t, db.Create(&dumpProbe{Name: "second"}).Error)

	dumpPath := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, DumpMemoryDBToDisk(db, dumpPath))

	dumped, err := OpenSqlite(dumpPath)
	require.NoError(t, err)
	var count int64
	require.NoError(t, dumped.Model(&dumpProbe{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "dump is a point-in-time copy")
}

func TestDumpMemoryDBToDiskRequiresPath(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)

	err = DumpMemoryDBToDisk(db, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file path not set")
}

func TestDumpMemoryDBToDiskReplacesExisting(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)

	dumpPath := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, os.WriteFile(dumpPath, []byte("stale"), 0644))

	require.NoError(t, DumpMemoryDBToDisk(db, dumpPath))

	raw, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("stale"), raw)
}

func TestGetSnapshotDBPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session1.db"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.db"), 0755))

	paths, err := GetSnapshotDBPaths(dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "session1.db")
}

func TestConnectFallsBackWhenPostgresUnreachable(t *testing.T) {
	m := NewManager(zerolog.Nop())

	err := m.Connect(config.DBConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "nobody",
		Password: "nothing",
		Database: "missing",
	})
	require.NoError(t, err, "fallback should rescue the connection")
	assert.True(t, m.ShouldSaveLocal)
	assert.True(t, m.IsValid)
	require.NotNil(t, m.DB)
}
