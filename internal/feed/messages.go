package feed

import (
	"encoding/json"
	"time"
)

// Session message types. Forwarded engine events keep their event type as
// the envelope type (marker_changed, transport_changed, drift_corrected,
// snapshot_saved, ...).
const (
	TypeSessionHello = "session_hello"
	TypeSessionBye   = "session_bye"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload announces a review session to the feed server.
type HelloPayload struct {
	SessionUID string    `json:"session_uid"`
	StartedAt  time.Time `json:"started_at"`
	MaxStreams int       `json:"max_streams"`
}
