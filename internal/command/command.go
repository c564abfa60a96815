// Package command defines the closed set of control commands the
// vehicle understands and the parser that turns raw wire tokens into
// them. Parsing is the only way to construct a Command, so every kind
// reaching the motion controller is well formed.
package command

import (
	"fmt"

	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// Kind enumerates the supported command kinds.
type Kind string

const (
	KindVerb     Kind = "verb"
	KindTurn     Kind = "turn_degrees"
	KindSpeed    Kind = "speed"
	KindNavigate Kind = "navigate"
	KindOrient   Kind = "orient"
	KindGoTo     Kind = "go_to"
	KindStop     Kind = "stop"
)

// Axis identifies one of the four control axes.
type Axis int

const (
	AxisForward Axis = iota
	AxisLateral
	AxisVertical
	AxisYaw
)

func (a Axis) String() string {
	switch a {
	case AxisForward:
		return "forward"
	case AxisLateral:
		return "lateral"
	case AxisVertical:
		return "vertical"
	case AxisYaw:
		return "yaw"
	}
	return "unknown"
}

// TurnDirection is the optional direction suffix of a degree turn.
type TurnDirection string

const (
	TurnNone  TurnDirection = ""
	TurnLeft  TurnDirection = "left"
	TurnRight TurnDirection = "right"
)

// VerbCommand is a continuous single-axis verb. Key is the canonical
// verb name (aliases such as go_up resolve to it) and doubles as the
// decay registry key.
type VerbCommand struct {
	Key  string
	Axis Axis
	Sign float64
}

// TurnCommand rotates by a fixed number of degrees relative to the
// current heading. Left subtracts, right adds, no direction adds.
type TurnCommand struct {
	Degrees   float64
	Direction TurnDirection
}

// SpeedCommand sets the command-origin speed multiplier in percent.
type SpeedCommand struct {
	Percent float64
}

// NavigateCommand translates to a world position. LookAt, when set,
// is the point to face during travel and on arrival.
type NavigateCommand struct {
	Target vec.Vec3
	LookAt *vec.Vec3
}

// OrientCommand rotates to an absolute orientation.
type OrientCommand struct {
	Orientation vec.Quat
}

// GoToCommand navigates to an entity looked up in the interaction
// history by tag or name.
type GoToCommand struct {
	Query string
}

// Command is the parsed form of one wire token. Exactly the payload
// matching Kind is non-nil.
type Command struct {
	Kind     Kind
	Raw      string
	Verb     *VerbCommand
	Turn     *TurnCommand
	Speed    *SpeedCommand
	Navigate *NavigateCommand
	Orient   *OrientCommand
	GoTo     *GoToCommand
}

// Detail returns a short human-readable payload summary for logs and
// the flight recorder.
func (c Command) Detail() string {
	switch c.Kind {
	case KindVerb:
		return fmt.Sprintf("%s %s%+g", c.Verb.Key, c.Verb.Axis, c.Verb.Sign)
	case KindTurn:
		if c.Turn.Direction == TurnNone {
			return fmt.Sprintf("%g deg", c.Turn.Degrees)
		}
		return fmt.Sprintf("%g deg %s", c.Turn.Degrees, c.Turn.Direction)
	case KindSpeed:
		return fmt.Sprintf("%g%%", c.Speed.Percent)
	case KindNavigate:
		if c.Navigate.LookAt != nil {
			return fmt.Sprintf("to %s look %s", c.Navigate.Target, *c.Navigate.LookAt)
		}
		return fmt.Sprintf("to %s", c.Navigate.Target)
	case KindOrient:
		return fmt.Sprintf("to quat(%.3f, %.3f, %.3f, %.3f)",
			c.Orient.Orientation.X, c.Orient.Orientation.Y, c.Orient.Orientation.Z, c.Orient.Orientation.W)
	case KindGoTo:
		return c.GoTo.Query
	case KindStop:
		return "stop"
	}
	return ""
}
