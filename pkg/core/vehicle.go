package core

import (
	"time"

	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// Pose is a position plus orientation in world space.
type Pose struct {
	Position    vec.Vec3
	Orientation vec.Quat
}

// VehicleState is a snapshot of the simulated vehicle at a point in time.
type VehicleState struct {
	Time         time.Time
	Tick         uint64
	Position     vec.Vec3
	Orientation  vec.Quat
	Velocity     vec.Vec3
	HeadingDeg   float64
	Mode         string
	SpeedPercent float64
}
