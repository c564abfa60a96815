// Package memory implements the recorder.Backend interface with an
// in-memory store that exports a JSON flight log at session end.
package memory

import (
	"log/slog"
	"sync"

	"github.com/skysim-labs/dronepilot/internal/config"
	"github.com/skysim-labs/dronepilot/internal/geo"
	"github.com/skysim-labs/dronepilot/pkg/core"
)

// Backend stores the flight timeline in memory and exports to JSON.
type Backend struct {
	log  *slog.Logger
	cfg  config.MemoryConfig
	conv *geo.Converter // nil disables the GeoJSON track in exports

	session *core.FlightSession

	commands     []core.CommandRecord
	events       []core.FlightEvent
	states       []core.VehicleState
	observations []core.Observation

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend.
func New(log *slog.Logger, cfg config.MemoryConfig, conv *geo.Converter) *Backend {
	return &Backend{
		log:  log.With("backend", "memory"),
		cfg:  cfg,
		conv: conv,
	}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session.
func (b *Backend) StartSession(session *core.FlightSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = session

	// Reset all collections
	b.commands = nil
	b.events = nil
	b.states = nil
	b.observations = nil
	b.idCounter = 0
	b.lastExportPath = ""

	return nil
}

// EndSession finalizes and exports the session data.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// RecordCommand stores a processed command, assigning it an ID.
func (b *Backend) RecordCommand(c *core.CommandRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	c.ID = b.idCounter
	b.commands = append(b.commands, *c)
	return nil
}

// RecordEvent stores a flight event, assigning it an ID.
func (b *Backend) RecordEvent(e *core.FlightEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	e.ID = b.idCounter
	b.events = append(b.events, *e)
	return nil
}

// RecordState stores a vehicle state sample.
func (b *Backend) RecordState(s *core.VehicleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states = append(b.states, *s)
	return nil
}

// RecordObservation stores an accepted observation.
func (b *Backend) RecordObservation(o *core.Observation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.observations = append(b.observations, *o)
	return nil
}

// Counts returns the number of stored records per kind.
func (b *Backend) Counts() (commands, events, states, observations int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.commands), len(b.events), len(b.states), len(b.observations)
}

// ExportedFilePath returns the path written by the last export, or empty.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lastExportPath
}
