// Package model defines the GORM table schema the flight recorder writes.
// Time columns carry no explicit column type: the postgres driver maps
// time.Time to timestamptz on its own, and the sqlite driver cannot scan
// that type back.
package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent
// tables in the database schema.
var DatabaseModels = []interface{}{
	&FlightSession{},
	&CommandLog{},
	&FlightEventLog{},
	&StateSample{},
	&ObservationLog{},
}

// DatabaseModelsSQLite is the subset migrated on the SQLite path. It matches
// DatabaseModels today; the split exists so the schemas can diverge.
var DatabaseModelsSQLite = []interface{}{
	&FlightSession{},
	&CommandLog{},
	&FlightEventLog{},
	&StateSample{},
	&ObservationLog{},
}

// FlightSession is one recorded run of the service, from boot to shutdown.
// Every other table references it so recordings from successive runs stay
// separable in a shared database.
type FlightSession struct {
	gorm.Model
	StartTime      time.Time    `json:"startTime" gorm:"NOT NULL;index:idx_session_start"`
	EndTime        sql.NullTime `json:"endTime"`
	ServiceName    string       `json:"serviceName" gorm:"size:64"`
	ServiceVersion string       `json:"serviceVersion" gorm:"size:64"`
	Hostname       string       `json:"hostname" gorm:"size:127"`
	TickRateHz     float64      `json:"tickRateHz" gorm:"default:30"`

	Commands     []CommandLog     `gorm:"foreignKey:SessionID"`
	Events       []FlightEventLog `gorm:"foreignKey:SessionID"`
	States       []StateSample    `gorm:"foreignKey:SessionID"`
	Observations []ObservationLog `gorm:"foreignKey:SessionID"`
}

func (*FlightSession) TableName() string {
	return "flight_sessions"
}

// GetOrInsert looks the session up by hostname and start time, inserting it
// when absent. Reconnecting backends reuse the existing row.
func (s *FlightSession) GetOrInsert(db *gorm.DB) (created bool, err error) {
	var existing FlightSession
	err = db.Where("hostname = ? AND start_time = ?", s.Hostname, s.StartTime).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			err = db.Create(s).Error
			return true, err
		}
		return false, err
	}
	*s = existing
	return false, nil
}

// CommandLog is one command string handled by the motion controller,
// accepted or not.
type CommandLog struct {
	ID        uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time     `json:"time" gorm:"index:idx_commandlog_time"` // Server time when the command was processed
	SessionID uint          `json:"sessionId" gorm:"index:idx_commandlog_session_id"`
	Session   FlightSession `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Tick      uint64        `json:"tick"`                          // Simulation tick the command was applied on
	Raw       string        `json:"raw" gorm:"size:512"`           // Command text as received on the wire
	Kind      string        `json:"kind" gorm:"size:32"`           // Parsed class: verb, turn, speed, navigate, orient, go_to, stop
	Accepted  bool          `json:"accepted" gorm:"default:true"`  // False for malformed or unresolvable commands
	Detail    string        `json:"detail" gorm:"size:512"`        // Rejection reason, empty when accepted
}

func (*CommandLog) TableName() string {
	return "command_logs"
}

// FlightEventLog is a timeline event: mode changes, unresolved targets,
// session start and end.
type FlightEventLog struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time" gorm:"index:idx_eventlog_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_eventlog_session_id"`
	Session   FlightSession  `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Tick      uint64         `json:"tick"`
	Name      string         `json:"name" gorm:"size:64;index:idx_eventlog_name"`
	Message   string         `json:"message" gorm:"size:512"`
	ExtraData datatypes.JSON `json:"extraData" gorm:"default:'{}'"` // Event-specific payload as JSON
}

func (*FlightEventLog) TableName() string {
	return "flight_events"
}

// StateSample is a pose and velocity snapshot taken at the configured
// sampling interval.
type StateSample struct {
	ID        uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time     `json:"time" gorm:"index:idx_statesample_time"`
	SessionID uint          `json:"sessionId" gorm:"index:idx_statesample_session_id"`
	Session   FlightSession `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Tick      uint64        `json:"tick" gorm:"index:idx_statesample_tick"`

	Position     Vector3    `json:"position" gorm:"embedded;embeddedPrefix:pos_"`    // World position, meters
	Orientation  Quaternion `json:"orientation" gorm:"embedded;embeddedPrefix:rot_"` // World orientation
	Velocity     Vector3    `json:"velocity" gorm:"embedded;embeddedPrefix:vel_"`    // Linear velocity, meters per second
	HeadingDeg   float64    `json:"headingDeg"`                                      // Yaw about the up axis (0-360 degrees)
	Mode         string     `json:"mode" gorm:"size:32"`                             // Controller mode at sample time
	SpeedPercent float64    `json:"speedPercent" gorm:"default:100"`                 // Active speed multiplier
}

func (*StateSample) TableName() string {
	return "state_samples"
}

// ObservationLog is a sighting of an external entity accepted into the
// interaction history.
type ObservationLog struct {
	ID        uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time     `json:"time" gorm:"index:idx_observationlog_time"`
	SessionID uint          `json:"sessionId" gorm:"index:idx_observationlog_session_id"`
	Session   FlightSession `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Name           string     `json:"name" gorm:"size:127;index:idx_observationlog_name"` // Entity name as reported
	Tag            string     `json:"tag" gorm:"size:64;index:idx_observationlog_tag"`    // Category tag, empty if untagged
	Position       Vector3    `json:"position" gorm:"embedded;embeddedPrefix:pos_"`
	Orientation    Quaternion `json:"orientation" gorm:"embedded;embeddedPrefix:rot_"`
	DistanceMeters float64    `json:"distanceMeters"` // Range from the vehicle at sighting time
}

func (*ObservationLog) TableName() string {
	return "observation_logs"
}

// Vector3 is an embeddable 3D vector column group.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an embeddable rotation column group, stored x, y, z, w.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}
