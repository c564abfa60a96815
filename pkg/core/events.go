package core

import "time"

// Flight event names written to the recorder.
const (
	EventModeChange       = "mode_change"
	EventCommandRejected  = "command_rejected"
	EventTargetUnresolved = "target_unresolved"
	EventSessionStart     = "session_start"
	EventSessionEnd       = "session_end"
)

// CommandRecord represents one processed command string.
type CommandRecord struct {
	ID       uint
	Time     time.Time
	Tick     uint64
	Raw      string
	Kind     string
	Accepted bool
	Detail   string
}

// FlightEvent is a generic event in the flight timeline.
type FlightEvent struct {
	ID        uint
	Time      time.Time
	Tick      uint64
	Name      string
	Message   string
	ExtraData map[string]any
}
