package core

// TransportState is the global playback state shared by all streams.
type TransportState struct {
	PositionMs  int64   `json:"position_ms"`
	Playing     bool    `json:"playing"`
	Rate        float64 `json:"rate"`
	SyncEnabled bool    `json:"sync_enabled"`
}

// DefaultRates is the supported playback rate set when none is configured.
var DefaultRates = []float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 2.0, 4.0}
