package marker

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/vidsync/engine/internal/util"
)

// csvHeader is the column layout of marker exports.
var csvHeader = []string{"timestamp", "label", "category", "color", "description"}

// ExportCSV writes every marker as CSV, ascending by (timestamp, id).
// Timestamps are rendered as HH:MM:SS.mmm timecodes.
func (s *Store) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, m := range s.All() {
		row := []string{
			util.FormatTimecode(m.TimestampMs),
			m.Label,
			string(m.Category),
			string(m.Color),
			m.Description,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
