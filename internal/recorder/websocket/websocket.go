// Package websocket implements the recorder.Backend interface by streaming
// envelopes to a live flight viewer.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams flight data over WebSocket. Session boundary messages
// are acknowledged by the server; everything else is fire-and-forget.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket recorder backend.
func New(log *slog.Logger, cfg Config) *Backend {
	return &Backend{
		conn: newConnection(log.With("backend", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session metadata and waits for a server ack.
// The message is cached for replay after a reconnect.
func (b *Backend) StartSession(session *core.FlightSession) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: session})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedSessionMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for a server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedSessionMsg = nil
	b.conn.mu.Unlock()

	return err
}

func (b *Backend) RecordCommand(c *core.CommandRecord) error {
	return b.sendEnvelope(streaming.TypeCommand, c)
}

func (b *Backend) RecordEvent(e *core.FlightEvent) error {
	return b.sendEnvelope(streaming.TypeEvent, e)
}

func (b *Backend) RecordState(s *core.VehicleState) error {
	return b.sendEnvelope(streaming.TypeState, s)
}

func (b *Backend) RecordObservation(o *core.Observation) error {
	return b.sendEnvelope(streaming.TypeObservation, o)
}
