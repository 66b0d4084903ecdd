package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBImportAndVacuum(t *testing.T) {
	importFile = writeSnapshotFixture(t, fixtureMarkers())
	dbPath = filepath.Join(t.TempDir(), "markers.db")

	require.NoError(t, runDBImport(nil, nil))

	// The rows are readable through a fresh connection.
	backend, err := openDatabase()
	require.NoError(t, err)
	snap, err := backend.LoadSnapshot()
	require.NoError(t, backend.Close())
	require.NoError(t, err)
	require.Len(t, snap.Markers, 3)
	assert.Equal(t, "goal", snap.Markers[0].Label)

	require.NoError(t, runDBVacuum(nil, nil))
}

func TestDBImportMissingSnapshot(t *testing.T) {
	importFile = filepath.Join(t.TempDir(), "nope.json")
	dbPath = filepath.Join(t.TempDir(), "markers.db")

	require.Error(t, runDBImport(nil, nil))
}
