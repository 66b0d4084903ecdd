package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/marker"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/storage/file"
	"github.com/vidsync/engine/internal/util"
)

var (
	markersFile string
	statsJSON   bool
	exportOut   string
	migrateOut  string
)

var markersCmd = &cobra.Command{
	Use:   "markers",
	Short: "Work with marker snapshot files",
}

var markersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a marker snapshot",
	Long: `Display statistics about a marker snapshot including:
  - total marker count and timestamp range
  - breakdown by category
  - breakdown by color

Examples:
  syncctl markers stats -f markers.json
  syncctl markers stats -f markers.json --json`,
	RunE: runMarkersStats,
}

var markersExportCSVCmd = &cobra.Command{
	Use:   "export-csv",
	Short: "Export a marker snapshot as CSV",
	Long: `Write every marker to a CSV file, one row per marker, ordered by
timestamp. Timestamps are rendered as HH:MM:SS.mmm timecodes.

Examples:
  syncctl markers export-csv -f markers.json -o markers.csv`,
	RunE: runMarkersExportCSV,
}

var markersMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a legacy snapshot to the current schema",
	Long: `Read a snapshot at any supported schema version and rewrite it at
the current version. The input file is left untouched; running against an
already-current snapshot is harmless.

Examples:
  syncctl markers migrate -f legacy.json -o markers.json`,
	RunE: runMarkersMigrate,
}

func init() {
	rootCmd.AddCommand(markersCmd)
	markersCmd.AddCommand(markersStatsCmd)
	markersCmd.AddCommand(markersExportCSVCmd)
	markersCmd.AddCommand(markersMigrateCmd)

	markersCmd.PersistentFlags().StringVarP(&markersFile, "file", "f", "", "snapshot file (required)")
	markersCmd.MarkPersistentFlagRequired("file")

	markersStatsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")

	markersExportCSVCmd.Flags().StringVarP(&exportOut, "out", "o", "", "CSV output path (required)")
	markersExportCSVCmd.MarkFlagRequired("out")

	markersMigrateCmd.Flags().StringVarP(&migrateOut, "out", "o", "", "migrated snapshot path (required)")
	markersMigrateCmd.MarkFlagRequired("out")
}

func runMarkersStats(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshotFile(markersFile)
	if err != nil {
		return err
	}

	store := marker.New()
	store.Hydrate(snap)
	stats := store.Stats()

	if statsJSON {
		output, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Println("Marker Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Total Markers: %d\n", stats.Total)
	if stats.Total > 0 {
		fmt.Printf("Range:         %s to %s\n",
			util.FormatTimecode(stats.FirstMs), util.FormatTimecode(stats.LastMs))
	}
	fmt.Println()

	if len(stats.ByCategory) > 0 {
		fmt.Println("By Category:")
		for _, cat := range core.Categories {
			if count, ok := stats.ByCategory[cat]; ok {
				percentage := float64(count) / float64(stats.Total) * 100
				fmt.Printf("  %-12s %4d  (%.1f%%)\n", cat, count, percentage)
			}
		}
		fmt.Println()
	}

	if len(stats.ByColor) > 0 {
		fmt.Println("By Color:")
		colors := make([]core.Color, 0, len(stats.ByColor))
		for c := range stats.ByColor {
			colors = append(colors, c)
		}
		sort.Slice(colors, func(i, j int) bool {
			if stats.ByColor[colors[i]] != stats.ByColor[colors[j]] {
				return stats.ByColor[colors[i]] > stats.ByColor[colors[j]]
			}
			return colors[i] < colors[j]
		})
		for _, c := range colors {
			count := stats.ByColor[c]
			bar := ""
			for j := 0; j < count && j < 20; j++ {
				bar += "█"
			}
			fmt.Printf("  %-12s %4d  %s\n", c, count, bar)
		}
	}

	return nil
}

func runMarkersExportCSV(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshotFile(markersFile)
	if err != nil {
		return err
	}

	store := marker.New()
	store.Hydrate(snap)

	out, err := os.Create(exportOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", exportOut, err)
	}
	defer out.Close()

	if err := store.ExportCSV(out); err != nil {
		return err
	}

	fmt.Printf("Exported %d markers to %s\n", store.Count(), exportOut)
	return nil
}

func runMarkersMigrate(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshotFile(markersFile)
	if err != nil {
		return err
	}

	out := file.New(config.FileConfig{Path: migrateOut}, cliLog)
	if err := out.Init(); err != nil {
		return err
	}
	if err := out.SaveSnapshot(snap); err != nil {
		return err
	}

	fmt.Printf("Migrated %d markers to schema version %d: %s\n",
		len(snap.Markers), core.SchemaVersion, migrateOut)
	return nil
}
