package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/export"
	"github.com/vidsync/engine/internal/sync"
)

var (
	clipFile       string
	clipDurationMs int64
	clipBeforeSec  int
	clipAfterSec   int
	clipOutDir     string
	clipGzip       bool
)

var clipPlanCmd = &cobra.Command{
	Use:   "clip-plan",
	Short: "Plan clip windows around each marker",
	Long: `Build a clip plan manifest from a marker snapshot against a single
stream of the given duration. Each marker yields a window centered on it,
clamped to the stream bounds; windows that cannot fit their full lead or
trail carry a warning in the manifest.

Examples:
  syncctl clip-plan -f markers.json --duration-ms 3600000
  syncctl clip-plan -f markers.json --duration-ms 3600000 --before 2 --after 8 -o ./plans`,
	RunE: runClipPlan,
}

func init() {
	rootCmd.AddCommand(clipPlanCmd)

	clipPlanCmd.Flags().StringVarP(&clipFile, "file", "f", "", "snapshot file (required)")
	clipPlanCmd.MarkFlagRequired("file")
	clipPlanCmd.Flags().Int64Var(&clipDurationMs, "duration-ms", 0, "stream duration in milliseconds (required)")
	clipPlanCmd.MarkFlagRequired("duration-ms")
	clipPlanCmd.Flags().IntVar(&clipBeforeSec, "before", 5, "seconds of lead before each marker")
	clipPlanCmd.Flags().IntVar(&clipAfterSec, "after", 10, "seconds of trail after each marker")
	clipPlanCmd.Flags().StringVarP(&clipOutDir, "out", "o", ".", "manifest output directory")
	clipPlanCmd.Flags().BoolVar(&clipGzip, "gzip", false, "gzip the manifest")
}

func runClipPlan(cmd *cobra.Command, args []string) error {
	if clipDurationMs <= 0 {
		return fmt.Errorf("--duration-ms must be positive, got %d", clipDurationMs)
	}

	snap, err := loadSnapshotFile(clipFile)
	if err != nil {
		return err
	}

	planner := export.NewPlanner(config.ExportConfig{
		OutputDir:      clipOutDir,
		CompressOutput: clipGzip,
		ClipBefore:     time.Duration(clipBeforeSec) * time.Second,
		ClipAfter:      time.Duration(clipAfterSec) * time.Second,
	}, cliLog)

	streams := []sync.StreamInfo{{ID: 0, DurationMs: clipDurationMs, IsLoaded: true}}
	plan := planner.Build(snap.Markers, streams)

	path, err := planner.Write(plan)
	if err != nil {
		return err
	}

	warned := 0
	for _, c := range plan.Clips {
		if len(c.Warnings) > 0 {
			warned++
		}
	}
	fmt.Printf("Planned %d clips (%d with warnings, %d skipped): %s\n",
		len(plan.Clips), warned, plan.Skipped, path)
	return nil
}
