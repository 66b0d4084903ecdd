package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/storage/sqlite"
)

var (
	dbPath     string
	importFile string
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Maintain SQLite marker databases",
}

var dbImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a snapshot file into a SQLite database",
	Long: `Load a snapshot file, migrating older schemas forward, and write
its markers into a SQLite database. The database is created if it does not
exist; existing markers are replaced by the imported set.

Examples:
  syncctl db import -f markers.json --db markers.db`,
	RunE: runDBImport,
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim space in a SQLite database",
	Long: `Run VACUUM against the database. Useful after large imports or
deletions.

Examples:
  syncctl db vacuum --db markers.db`,
	RunE: runDBVacuum,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbImportCmd)
	dbCmd.AddCommand(dbVacuumCmd)

	dbCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (required)")
	dbCmd.MarkPersistentFlagRequired("db")

	dbImportCmd.Flags().StringVarP(&importFile, "file", "f", "", "snapshot file to import (required)")
	dbImportCmd.MarkFlagRequired("file")
}

func openDatabase() (*sqlite.Backend, error) {
	backend, err := sqlite.New(config.SQLiteConfig{Path: dbPath}, cliLog)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		backend.Close()
		return nil, err
	}
	return backend, nil
}

func runDBImport(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshotFile(importFile)
	if err != nil {
		return err
	}

	backend, err := openDatabase()
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.SaveSnapshot(snap); err != nil {
		return fmt.Errorf("failed to import snapshot: %w", err)
	}

	fmt.Printf("Imported %d markers into %s\n", len(snap.Markers), dbPath)
	return nil
}

func runDBVacuum(cmd *cobra.Command, args []string) error {
	backend, err := openDatabase()
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.Vacuum(); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}

	fmt.Println("Vacuum complete.")
	return nil
}
