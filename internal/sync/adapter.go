// Package sync keeps multiple playback streams aligned against a shared
// transport clock: per-stream offsets, drift correction on master position
// reports, and coordinated seeks.
package sync

// StreamAdapter is the control surface of one playback stream. The engine
// consumes this interface and never implements it outside tests and the
// simulator. Seek may complete asynchronously; the engine never waits for
// it and converges on the next drift check instead.
type StreamAdapter interface {
	PositionMs() int64
	DurationMs() int64
	Seek(ms int64) error
	SetRate(rate float64) error
	Play() error
	Pause() error
	IsLoaded() bool
}

// StreamInfo describes one stream slot.
type StreamInfo struct {
	ID         int   `json:"id"`
	DurationMs int64 `json:"duration_ms"`
	OffsetMs   int64 `json:"offset_ms"`
	IsMaster   bool  `json:"is_master"`
	IsLoaded   bool  `json:"is_loaded"`
}

// BoundStream pairs a loaded slot with its bound adapter. Poll loops call
// the adapter without holding the manager lock.
type BoundStream struct {
	ID       int
	Adapter  StreamAdapter
	IsMaster bool
}
