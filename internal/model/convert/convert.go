// Package convert maps the in-memory core types onto the GORM models the
// database backends persist.
package convert

import (
	"encoding/json"

	"github.com/skysim-labs/dronepilot/internal/model"
	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/vec"
	"gorm.io/datatypes"
)

func vec3ToVector3(v vec.Vec3) model.Vector3 {
	return model.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func quatToQuaternion(q vec.Quat) model.Quaternion {
	return model.Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W}
}

// extraDataToJSON converts an event payload map to datatypes.JSON for DB
// storage. Marshal failures degrade to the empty object rather than losing
// the row.
func extraDataToJSON(extra map[string]any) datatypes.JSON {
	if len(extra) == 0 {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.FlightSession to a GORM model.FlightSession.
func CoreToSession(s core.FlightSession) model.FlightSession {
	return model.FlightSession{
		StartTime:      s.StartTime,
		ServiceName:    s.ServiceName,
		ServiceVersion: s.ServiceVersion,
		Hostname:       s.Hostname,
		TickRateHz:     s.TickRateHz,
	}
}

// CoreToCommand converts a core.CommandRecord to a GORM model.CommandLog.
// SessionID is stamped by the write queue, not here.
func CoreToCommand(c core.CommandRecord) model.CommandLog {
	return model.CommandLog{
		Time:     c.Time,
		Tick:     c.Tick,
		Raw:      c.Raw,
		Kind:     c.Kind,
		Accepted: c.Accepted,
		Detail:   c.Detail,
	}
}

// CoreToEvent converts a core.FlightEvent to a GORM model.FlightEventLog.
func CoreToEvent(e core.FlightEvent) model.FlightEventLog {
	return model.FlightEventLog{
		Time:      e.Time,
		Tick:      e.Tick,
		Name:      e.Name,
		Message:   e.Message,
		ExtraData: extraDataToJSON(e.ExtraData),
	}
}

// CoreToState converts a core.VehicleState to a GORM model.StateSample.
func CoreToState(s core.VehicleState) model.StateSample {
	return model.StateSample{
		Time:         s.Time,
		Tick:         s.Tick,
		Position:     vec3ToVector3(s.Position),
		Orientation:  quatToQuaternion(s.Orientation),
		Velocity:     vec3ToVector3(s.Velocity),
		HeadingDeg:   s.HeadingDeg,
		Mode:         s.Mode,
		SpeedPercent: s.SpeedPercent,
	}
}

// CoreToObservation converts a core.Observation to a GORM model.ObservationLog.
func CoreToObservation(o core.Observation) model.ObservationLog {
	return model.ObservationLog{
		Time:           o.Time,
		Name:           o.Name,
		Tag:            o.Tag,
		Position:       vec3ToVector3(o.Position),
		Orientation:    quatToQuaternion(o.Orientation),
		DistanceMeters: o.Distance,
	}
}
