// Package recorder persists the flight timeline through pluggable backends.
// The simulation loop only ever talks to the Recorder wrapper, which absorbs
// backend errors so storage trouble can never stall a tick.
package recorder

import (
	"log/slog"

	"github.com/skysim-labs/dronepilot/pkg/core"
)

// Backend is the interface all recorder implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(session *core.FlightSession) error
	EndSession() error

	// Record writing
	RecordCommand(c *core.CommandRecord) error
	RecordEvent(e *core.FlightEvent) error
	RecordState(s *core.VehicleState) error
	RecordObservation(o *core.Observation) error
}

// Exportable is an optional interface for backends that produce a file
// at session end.
type Exportable interface {
	ExportedFilePath() string
}

// Noop discards everything. Selected with recorder type "none".
type Noop struct{}

func (Noop) Init() error                                 { return nil }
func (Noop) Close() error                                { return nil }
func (Noop) StartSession(_ *core.FlightSession) error    { return nil }
func (Noop) EndSession() error                           { return nil }
func (Noop) RecordCommand(_ *core.CommandRecord) error   { return nil }
func (Noop) RecordEvent(_ *core.FlightEvent) error       { return nil }
func (Noop) RecordState(_ *core.VehicleState) error      { return nil }
func (Noop) RecordObservation(_ *core.Observation) error { return nil }

// Recorder adapts a Backend for the simulation loop. Lifecycle methods
// surface errors to the caller; the per-record methods log and drop them.
type Recorder struct {
	log     *slog.Logger
	backend Backend
}

// New wraps a backend.
func New(log *slog.Logger, backend Backend) *Recorder {
	return &Recorder{
		log:     log.With("component", "recorder"),
		backend: backend,
	}
}

// Backend returns the wrapped backend for capability checks such as
// Exportable.
func (r *Recorder) Backend() Backend {
	return r.backend
}

// StartSession opens the recording. The backend may stamp session.ID.
func (r *Recorder) StartSession(session *core.FlightSession) error {
	return r.backend.StartSession(session)
}

// EndSession finalizes the recording.
func (r *Recorder) EndSession() error {
	return r.backend.EndSession()
}

// Close releases backend resources.
func (r *Recorder) Close() error {
	return r.backend.Close()
}

func (r *Recorder) RecordCommand(c core.CommandRecord) {
	if err := r.backend.RecordCommand(&c); err != nil {
		r.log.Error("failed to record command", "raw", c.Raw, "error", err)
	}
}

func (r *Recorder) RecordEvent(e core.FlightEvent) {
	if err := r.backend.RecordEvent(&e); err != nil {
		r.log.Error("failed to record event", "name", e.Name, "error", err)
	}
}

func (r *Recorder) RecordState(s core.VehicleState) {
	if err := r.backend.RecordState(&s); err != nil {
		r.log.Error("failed to record state sample", "tick", s.Tick, "error", err)
	}
}

func (r *Recorder) RecordObservation(o core.Observation) {
	if err := r.backend.RecordObservation(&o); err != nil {
		r.log.Error("failed to record observation", "name", o.Name, "error", err)
	}
}
