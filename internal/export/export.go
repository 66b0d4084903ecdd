// Package export plans marker-centered clips across the loaded streams.
// Planning only: the manifest names the windows to cut, the actual
// encoding is done by an external tool.
package export

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/model/core"
	"github.com/vidsync/engine/internal/sync"
	"github.com/vidsync/engine/internal/util"
)

// Warning codes attached to clips whose stream cannot supply the full
// requested window.
const (
	WarnInsufficientLead  = "insufficient_lead"
	WarnInsufficientTrail = "insufficient_trail"
)

// Clip is one plan item: a window on one stream around one marker.
// Start/End are in the stream's local timeline.
type Clip struct {
	MarkerID uint64   `json:"marker_id"`
	StreamID int      `json:"stream_id"`
	Label    string   `json:"label,omitempty"`
	StartMs  int64    `json:"start_ms"`
	EndMs    int64    `json:"end_ms"`
	Timecode string   `json:"timecode"`
	Warnings []string `json:"warnings,omitempty"`
}

// Plan is the manifest written for the external clip encoder.
type Plan struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	BeforeMs  int64     `json:"before_ms"`
	AfterMs   int64     `json:"after_ms"`
	Clips     []Clip    `json:"clips"`
	Skipped   int       `json:"skipped"`
}

// Planner computes clip windows and writes plan manifests.
type Planner struct {
	cfg config.ExportConfig
	log zerolog.Logger
}

// NewPlanner creates a planner for the given export settings.
func NewPlanner(cfg config.ExportConfig, log zerolog.Logger) *Planner {
	return &Planner{cfg: cfg, log: log}
}

// Build computes one clip per marker per loaded stream. The marker
// timestamp lives on the shared timeline; each stream's window is centered
// on the marker mapped through that stream's offset, exactly as a seek
// would land, then clamped to the stream bounds. Windows that collapse to
// nothing are skipped; windows short of the requested lead or trail carry
// a warning.
func (p *Planner) Build(markers []core.Marker, streams []sync.StreamInfo) *Plan {
	beforeMs := p.cfg.ClipBefore.Milliseconds()
	afterMs := p.cfg.ClipAfter.Milliseconds()

	plan := &Plan{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		BeforeMs:  beforeMs,
		AfterMs:   afterMs,
		Clips:     make([]Clip, 0, len(markers)*len(streams)),
	}

	for _, m := range markers {
		for _, s := range streams {
			if !s.IsLoaded {
				continue
			}

			local := util.ClampMs(m.TimestampMs+s.OffsetMs, 0, s.DurationMs)
			start := util.ClampMs(local-beforeMs, 0, s.DurationMs)
			end := util.ClampMs(local+afterMs, 0, s.DurationMs)

			if start >= end {
				plan.Skipped++
				p.log.Debug().
					Uint64("marker", m.ID).
					Int("stream", s.ID).
					Msg("Clip window empty, skipping")
				continue
			}

			clip := Clip{
				MarkerID: m.ID,
				StreamID: s.ID,
				Label:    m.Label,
				StartMs:  start,
				EndMs:    end,
				Timecode: util.FormatTimecode(local),
			}

			availableBefore := local
			availableAfter := s.DurationMs - local
			if availableBefore < beforeMs {
				clip.Warnings = append(clip.Warnings, WarnInsufficientLead)
				p.log.Warn().
					Uint64("marker", m.ID).
					Int("stream", s.ID).
					Int64("available_ms", availableBefore).
					Int64("requested_ms", beforeMs).
					Msg("Insufficient lead time before marker")
			}
			if availableAfter < afterMs {
				clip.Warnings = append(clip.Warnings, WarnInsufficientTrail)
				p.log.Warn().
					Uint64("marker", m.ID).
					Int("stream", s.ID).
					Int64("available_ms", availableAfter).
					Int64("requested_ms", afterMs).
					Msg("Insufficient trail time after marker")
			}

			plan.Clips = append(plan.Clips, clip)
		}
	}

	return plan
}

// Write serializes the plan to the output directory, gzipped when
// configured, and returns the path written.
func (p *Planner) Write(plan *Plan) (string, error) {
	timestamp := plan.CreatedAt.Format("20060102_150405")

	var filename string
	if p.cfg.CompressOutput {
		filename = fmt.Sprintf("clips_%s.json.gz", timestamp)
	} else {
		filename = fmt.Sprintf("clips_%s.json", timestamp)
	}
	outputPath := filepath.Join(p.cfg.OutputDir, filename)

	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if p.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, plan); err != nil {
			return "", err
		}
	} else {
		if err := writeJSON(outputPath, plan); err != nil {
			return "", err
		}
	}

	p.log.Info().
		Str("path", outputPath).
		Int("clips", len(plan.Clips)).
		Int("skipped", plan.Skipped).
		Msg("Clip plan written")
	return outputPath, nil
}

func writeJSON(path string, plan *Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(plan)
}

func writeGzipJSON(path string, plan *Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(plan)
}
