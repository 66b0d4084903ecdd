// Package feed streams engine events to a companion review surface over
// WebSocket: JSON envelopes, fire-and-forget delivery, acked session
// boundaries, reconnect with hello replay.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/dispatcher"
	"github.com/vidsync/engine/internal/model/core"
)

// forwardedEvents are the engine events mirrored onto the feed. Position
// reports stay local; at tick rate they carry nothing the review surface
// cannot derive from seeks and transport changes.
var forwardedEvents = []string{
	core.EventMarkerChanged,
	core.EventTransportChanged,
	core.EventUserSought,
	core.EventDriftCorrected,
	core.EventStreamLoaded,
	core.EventStreamUnloaded,
	core.EventMasterChanged,
	core.EventSnapshotSaved,
	core.EventSaveFailed,
}

// Feed is the WebSocket event sink. The engine publishes through the
// dispatcher and never blocks on delivery.
type Feed struct {
	conn *connection
	cfg  config.FeedConfig
	log  zerolog.Logger
}

// New creates a disconnected feed.
func New(cfg config.FeedConfig, log zerolog.Logger) *Feed {
	return &Feed{
		conn: newConnection(log),
		cfg:  cfg,
		log:  log,
	}
}

// Connect dials the feed server and starts the read/write loops.
func (f *Feed) Connect() error {
	return f.conn.dial(f.cfg.URL, f.cfg.Secret)
}

// Close disconnects from the feed server.
func (f *Feed) Close() error {
	return f.conn.close()
}

// StartSession announces the session and waits for the server ack. The
// hello is cached so a reconnect replays it before any further events.
func (f *Feed) StartSession(hello HelloPayload) error {
	data, err := marshalEnvelope(TypeSessionHello, hello)
	if err != nil {
		return err
	}
	f.conn.cacheHello(data)
	return f.conn.sendAndWait(data, TypeSessionHello, ackTimeout)
}

// EndSession closes the session on the server and drops the cached hello
// so a late reconnect cannot resurrect it.
func (f *Feed) EndSession() error {
	data, err := marshalEnvelope(TypeSessionBye, nil)
	if err != nil {
		return err
	}
	err = f.conn.sendAndWait(data, TypeSessionBye, ackTimeout)
	f.conn.cacheHello(nil)
	return err
}

// Attach subscribes the feed to the dispatcher. Each forwarded event is
// wrapped in an envelope carrying the engine event type and pushed through
// the send buffer, dropping when full.
func (f *Feed) Attach(bus *dispatcher.Dispatcher) {
	for _, typ := range forwardedEvents {
		bus.Subscribe(typ, func(e dispatcher.Event) error {
			return f.forward(e.Type, e.Payload)
		})
	}
}

func (f *Feed) forward(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	f.conn.send(data)
	return nil
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
