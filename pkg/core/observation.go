package core

import (
	"time"

	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// Observation is a sighting of an external entity reported by the
// perception pipeline. Records are immutable once created.
type Observation struct {
	Name        string
	Tag         string
	Position    vec.Vec3
	Orientation vec.Quat
	Distance    float64 // meters from the vehicle at sighting time
	Time        time.Time
}
