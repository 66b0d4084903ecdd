package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage"
	"github.com/vidsync/engine/internal/storage/file"
)

// cliLog feeds backend warnings to stderr; command output stays on stdout.
var cliLog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	Level(zerolog.WarnLevel).With().Timestamp().Logger()

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Inspect and maintain marker snapshots offline",
	Long: `syncctl works on marker snapshot files and databases without a
running engine:

  - summarize and export marker collections
  - migrate legacy snapshot files to the current schema
  - import snapshots into SQLite and maintain the database
  - plan clip windows around markers`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSnapshotFile reads a snapshot document, migrating older schemas
// forward in memory. Unlike the engine path a missing file is an error
// here, and the input is never quarantined.
func loadSnapshotFile(path string) (*core.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	snap, err := file.Migrate(raw)
	if err != nil {
		if errors.Is(err, storage.ErrCorruptState) {
			return nil, fmt.Errorf("%s is not a readable snapshot: %w", path, err)
		}
		return nil, err
	}
	return snap, nil
}
