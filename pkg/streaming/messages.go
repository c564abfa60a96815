// Package streaming defines the wire protocol spoken by the websocket
// recorder backend. Live viewers consume the same envelope format.
package streaming

import (
	"encoding/json"

	"github.com/skysim-labs/dronepilot/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeCommand      = "command"
	TypeEvent        = "event"
	TypeState        = "state"
	TypeObservation  = "observation"
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

// StartSessionPayload carries the session metadata sent before any records.
type StartSessionPayload struct {
	Session *core.FlightSession `json:"session"`
}
