// Package core holds the domain types shared across the engine: markers,
// snapshots, sessions and event payloads. These are plain structs with no
// storage or transport concerns.
package core

import "time"

// Color is one of the eight named marker colors.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorPurple Color = "purple"
	ColorOrange Color = "orange"
	ColorCyan   Color = "cyan"
	ColorPink   Color = "pink"
)

// DefaultColor is used when a marker is created without an explicit color.
const DefaultColor = ColorRed

// ColorHex maps each named color to its canonical hex value.
var ColorHex = map[Color]string{
	ColorRed:    "#e74c3c",
	ColorYellow: "#f39c12",
	ColorGreen:  "#2ecc71",
	ColorBlue:   "#3498db",
	ColorPurple: "#9b59b6",
	ColorOrange: "#e67e22",
	ColorCyan:   "#1abc9c",
	ColorPink:   "#e91e63",
}

// ColorFromHex resolves a hex value back to its named color.
// Matching is case-insensitive on the hex digits; unknown values report false.
func ColorFromHex(hex string) (Color, bool) {
	for c, h := range ColorHex {
		if equalFold(h, hex) {
			return c, true
		}
	}
	return "", false
}

// ValidColor reports whether c is one of the eight named colors.
func ValidColor(c Color) bool {
	_, ok := ColorHex[c]
	return ok
}

// Category classifies a marker.
type Category string

const (
	CategoryDefault   Category = "default"
	CategoryAction    Category = "action"
	CategoryEvent     Category = "event"
	CategoryNote      Category = "note"
	CategoryHighlight Category = "highlight"
	CategoryReview    Category = "review"
)

// Categories lists all valid categories in display order.
var Categories = []Category{
	CategoryDefault,
	CategoryAction,
	CategoryEvent,
	CategoryNote,
	CategoryHighlight,
	CategoryReview,
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Marker is a timestamped annotation on the shared timeline.
type Marker struct {
	ID          uint64    `json:"id"`
	TimestampMs int64     `json:"timestamp_ms"`
	Label       string    `json:"label"`
	Color       Color     `json:"color"`
	Category    Category  `json:"category"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewMarker builds a marker with both timestamps set to now.
// Validation happens in the store; this only fills defaults.
func NewMarker(timestampMs int64, label string, color Color, category Category, description string) Marker {
	now := time.Now().UTC()
	if color == "" {
		color = DefaultColor
	}
	if category == "" {
		category = CategoryDefault
	}
	return Marker{
		TimestampMs: timestampMs,
		Label:       label,
		Color:       color,
		Category:    category,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// equalFold is an ASCII-only case-insensitive compare, enough for hex codes.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
