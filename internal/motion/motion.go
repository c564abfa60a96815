// Package motion implements the command-driven motion state machine.
// It consumes parsed commands, arbitrates them against manual input,
// decays continuous verbs over time, and emits a velocity and target
// orientation every simulation tick.
//
// A Controller is owned by the simulation goroutine and is not safe
// for concurrent use.
package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/skysim-labs/dronepilot/internal/command"
	"github.com/skysim-labs/dronepilot/internal/decay"
	"github.com/skysim-labs/dronepilot/internal/history"
	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// Mode names the active control mode.
type Mode string

const (
	ModeIdle        Mode = "idle"
	ModePreciseTurn Mode = "precise_turn"
	ModeOrientTo    Mode = "orient_to"
	ModeNavigateTo  Mode = "navigate_to"
)

// Completion tolerances. These are part of the control contract, not
// tuning knobs.
const (
	turnToleranceDeg   = 2.0
	orientToleranceDeg = 5.0
	arrivalTolerance   = 1.0
	lookToleranceDeg   = 5.0
)

// Defaults applied when Config fields are unset.
const (
	DefaultLinearSpeed    = 5.0
	DefaultTurnRateDeg    = 90.0
	DefaultCommandTimeout = 2 * time.Second
)

// Config tunes the controller rates.
type Config struct {
	LinearSpeed    float64 // units per second at 100% speed
	TurnRateDeg    float64 // degrees per second for yaw and mode turns
	CommandTimeout time.Duration
}

// Output is the per-tick result handed to the physics integrator:
// a world-space velocity and the orientation to hold after this tick.
type Output struct {
	Velocity    vec.Vec3
	Orientation vec.Quat
}

// EventSink receives command and flight events, typically the flight
// recorder. Implementations must not block.
type EventSink interface {
	RecordCommand(core.CommandRecord)
	RecordEvent(core.FlightEvent)
}

type contribution struct {
	axis command.Axis
	sign float64
}

type modeState struct {
	kind       Mode
	targetYaw  float64
	targetQuat vec.Quat
	targetPos  vec.Vec3
	lookAt     *vec.Vec3
}

// Controller is the motion state machine.
type Controller struct {
	log    *slog.Logger
	cfg    Config
	hist   *history.Log
	reg    *decay.Registry
	events EventSink

	manual    Axes
	contrib   map[string]contribution
	speedMult float64
	mode      modeState

	processed  metric.Int64Counter
	rejected   metric.Int64Counter
	unresolved metric.Int64Counter
}

// NewController builds a controller reading symbolic targets from hist.
// events may be nil when no recorder is attached.
func NewController(logger *slog.Logger, cfg Config, hist *history.Log, events EventSink) (*Controller, error) {
	if cfg.LinearSpeed <= 0 {
		cfg.LinearSpeed = DefaultLinearSpeed
	}
	if cfg.TurnRateDeg <= 0 {
		cfg.TurnRateDeg = DefaultTurnRateDeg
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	c := &Controller{
		log:       logger,
		cfg:       cfg,
		hist:      hist,
		reg:       decay.NewRegistry(),
		events:    events,
		contrib:   make(map[string]contribution),
		speedMult: 1,
		mode:      modeState{kind: ModeIdle},
	}

	m := meter()
	var err error

	c.processed, err = m.Int64Counter(
		"motion.commands.processed",
		metric.WithDescription("Total commands accepted by the motion controller"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	c.rejected, err = m.Int64Counter(
		"motion.commands.rejected",
		metric.WithDescription("Total commands rejected as unknown or malformed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	c.unresolved, err = m.Int64Counter(
		"motion.commands.unresolved",
		metric.WithDescription("Total symbolic targets that had no history match"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unresolved counter: %w", err)
	}

	return c, nil
}

// Process applies one raw command string. Called once per dequeued
// command, in dequeue order, on the simulation goroutine. Parse and
// resolution failures are logged no-ops; Process never panics.
func (c *Controller) Process(now time.Time, pose core.Pose, raw string) {
	cmd, err := command.Parse(raw)
	if err != nil {
		if errors.Is(err, command.ErrUnknown) {
			c.log.Warn("ignoring unknown command", "raw", raw)
		} else {
			c.log.Warn("ignoring malformed command", "raw", raw, "error", err)
		}
		c.rejected.Add(context.Background(), 1)
		c.emitCommand(core.CommandRecord{Time: now, Raw: raw, Accepted: false, Detail: err.Error()})
		return
	}

	accepted := true
	detail := cmd.Detail()

	switch cmd.Kind {
	case command.KindVerb:
		c.applyVerb(now, cmd)
	case command.KindTurn:
		c.applyTurn(now, pose, cmd)
	case command.KindSpeed:
		c.speedMult = cmd.Speed.Percent / 100
		c.log.Debug("speed multiplier set", "percent", cmd.Speed.Percent)
	case command.KindNavigate:
		c.setMode(now, modeState{
			kind:      ModeNavigateTo,
			targetPos: cmd.Navigate.Target,
			lookAt:    cmd.Navigate.LookAt,
		})
	case command.KindOrient:
		c.setMode(now, modeState{kind: ModeOrientTo, targetQuat: cmd.Orient.Orientation})
	case command.KindGoTo:
		if !c.applyGoTo(now, cmd) {
			accepted = false
			detail = "target not found: " + cmd.GoTo.Query
		}
	case command.KindStop:
		c.applyStop(now)
	}

	c.processed.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", string(cmd.Kind))))
	c.emitCommand(core.CommandRecord{
		Time:     now,
		Raw:      cmd.Raw,
		Kind:     string(cmd.Kind),
		Accepted: accepted,
		Detail:   detail,
	})
}

// ExpireCommands drops every decayed command and resets its axis
// contribution. Called once per tick, before new commands are applied.
func (c *Controller) ExpireCommands(now time.Time) {
	for _, key := range c.reg.Tick(now) {
		delete(c.contrib, key)
		c.log.Debug("command expired", "key", key)
	}
}

// Tick advances the state machine by dt seconds and returns the motion
// to apply. pose is the vehicle's current world transform.
func (c *Controller) Tick(now time.Time, dt float64, pose core.Pose) Output {
	if dt <= 0 {
		return Output{Orientation: pose.Orientation}
	}
	switch c.mode.kind {
	case ModePreciseTurn:
		return c.tickPreciseTurn(now, dt, pose)
	case ModeOrientTo:
		return c.tickOrientTo(now, dt, pose)
	case ModeNavigateTo:
		return c.tickNavigateTo(now, dt, pose)
	default:
		return c.tickIdle(dt, pose)
	}
}

// SetManualAxes replaces the manual input blend. Simulation goroutine
// only.
func (c *Controller) SetManualAxes(a Axes) {
	c.manual = a.Clamped()
}

// Mode returns the active control mode.
func (c *Controller) Mode() Mode {
	return c.mode.kind
}

// SpeedPercent returns the command speed multiplier in percent.
func (c *Controller) SpeedPercent() float64 {
	return c.speedMult * 100
}

// ActiveCommandKeys returns the continuous verbs currently held active.
func (c *Controller) ActiveCommandKeys() []string {
	return c.reg.ActiveKeys()
}

// CommandAxes sums the active command contributions, clamped to
// [-1, 1] per axis.
func (c *Controller) CommandAxes() Axes {
	var a Axes
	for _, ct := range c.contrib {
		switch ct.axis {
		case command.AxisForward:
			a.Forward += ct.sign
		case command.AxisLateral:
			a.Lateral += ct.sign
		case command.AxisVertical:
			a.Vertical += ct.sign
		case command.AxisYaw:
			a.Yaw += ct.sign
		}
	}
	return a.Clamped()
}

func (c *Controller) applyVerb(now time.Time, cmd command.Command) {
	v := cmd.Verb
	c.contrib[v.Key] = contribution{axis: v.Axis, sign: v.Sign}
	c.reg.Refresh(v.Key, now, c.cfg.CommandTimeout)
	c.log.Debug("verb active", "key", v.Key, "axis", v.Axis.String(), "sign", v.Sign)
}

func (c *Controller) applyTurn(now time.Time, pose core.Pose, cmd command.Command) {
	heading := pose.Orientation.YawDeg()
	target := heading + cmd.Turn.Degrees
	if cmd.Turn.Direction == command.TurnLeft {
		target = heading - cmd.Turn.Degrees
	}
	target = vec.NormalizeHeading(target)

	// A precise turn owns the yaw axis; active yaw verbs are dropped.
	for key, ct := range c.contrib {
		if ct.axis == command.AxisYaw {
			delete(c.contrib, key)
			c.reg.Remove(key)
		}
	}
	c.setMode(now, modeState{kind: ModePreciseTurn, targetYaw: target})
	c.log.Debug("precise turn", "from", heading, "target", target)
}

func (c *Controller) applyGoTo(now time.Time, cmd command.Command) bool {
	query := cmd.GoTo.Query
	if c.hist == nil {
		c.reportUnresolved(now, query)
		return false
	}
	rec, ok := c.hist.LastByTag(query)
	if !ok {
		rec, ok = c.hist.ByName(query)
	}
	if !ok {
		c.reportUnresolved(now, query)
		return false
	}

	look := rec.Position
	c.setMode(now, modeState{kind: ModeNavigateTo, targetPos: rec.Position, lookAt: &look})
	c.log.Info("symbolic target resolved", "query", query, "name", rec.Name, "tag", rec.Tag)
	return true
}

func (c *Controller) reportUnresolved(now time.Time, query string) {
	c.log.Warn("symbolic target not found", "query", query)
	c.unresolved.Add(context.Background(), 1)
	c.emitEvent(core.FlightEvent{Time: now, Name: core.EventTargetUnresolved, Message: query})
}

func (c *Controller) applyStop(now time.Time) {
	c.manual = Axes{}
	clear(c.contrib)
	c.reg.Clear()
	c.setMode(now, modeState{kind: ModeIdle})
}

// setMode replaces the active mode, logging and recording transitions.
func (c *Controller) setMode(now time.Time, st modeState) {
	if st.kind != c.mode.kind {
		c.log.Info("mode change", "from", string(c.mode.kind), "to", string(st.kind))
		c.emitEvent(core.FlightEvent{
			Time:    now,
			Name:    core.EventModeChange,
			Message: fmt.Sprintf("%s -> %s", c.mode.kind, st.kind),
		})
	}
	c.mode = st
}

// enterIdle is the goal-reached exit: command-origin axes are zeroed,
// manual input survives.
func (c *Controller) enterIdle(now time.Time, reason string) {
	clear(c.contrib)
	c.reg.Clear()
	c.setMode(now, modeState{kind: ModeIdle})
	c.log.Debug("mode complete", "reason", reason)
}

func (c *Controller) tickIdle(dt float64, pose core.Pose) Output {
	eff := c.effectiveAxes()
	out := Output{
		Velocity:    c.axisVelocity(eff, pose),
		Orientation: pose.Orientation,
	}
	if yawDelta := eff.Yaw * c.cfg.TurnRateDeg * dt; yawDelta != 0 {
		out.Orientation = vec.FromYawDeg(yawDelta).Mul(pose.Orientation)
	}
	return out
}

func (c *Controller) tickPreciseTurn(now time.Time, dt float64, pose core.Pose) Output {
	delta := vec.HeadingDelta(pose.Orientation.YawDeg(), c.mode.targetYaw)
	if math.Abs(delta) <= turnToleranceDeg {
		out := Output{Orientation: vec.FromYawDeg(delta).Mul(pose.Orientation)}
		c.enterIdle(now, "turn complete")
		return out
	}
	step := math.Min(math.Abs(delta), c.cfg.TurnRateDeg*dt)
	if delta < 0 {
		step = -step
	}
	// Hover while turning: translation is suppressed in this mode.
	return Output{Orientation: vec.FromYawDeg(step).Mul(pose.Orientation)}
}

func (c *Controller) tickOrientTo(now time.Time, dt float64, pose core.Pose) Output {
	// Translation stays axis-driven; only yaw control is taken over.
	eff := c.effectiveAxes()
	eff.Yaw = 0
	out := Output{Velocity: c.axisVelocity(eff, pose)}

	target := c.mode.targetQuat
	if pose.Orientation.AngleToDeg(target) <= orientToleranceDeg {
		out.Orientation = target
		c.enterIdle(now, "orientation reached")
		return out
	}
	out.Orientation = pose.Orientation.RotateTowards(target, c.cfg.TurnRateDeg*dt)
	return out
}

func (c *Controller) tickNavigateTo(now time.Time, dt float64, pose core.Pose) Output {
	toTarget := c.mode.targetPos.Sub(pose.Position)
	dist := toTarget.Len()

	if dist > arrivalTolerance {
		dir := toTarget.Normalize()
		lookDir := dir
		if c.mode.lookAt != nil {
			if d := c.mode.lookAt.Sub(pose.Position); !d.IsZero() {
				lookDir = d.Normalize()
			}
		}
		// Cap the step so a slow tick rate cannot overshoot the target.
		speed := math.Min(c.cfg.LinearSpeed, dist/dt)
		return Output{
			Velocity:    dir.Scale(speed),
			Orientation: pose.Orientation.RotateTowards(vec.LookRotation(lookDir, vec.Vec3{Y: 1}), c.cfg.TurnRateDeg*dt),
		}
	}

	if c.mode.lookAt != nil {
		lookDir := c.mode.lookAt.Sub(pose.Position)
		if lookDir.IsZero() {
			out := Output{Orientation: pose.Orientation}
			c.enterIdle(now, "arrived")
			return out
		}
		target := vec.LookRotation(lookDir, vec.Vec3{Y: 1})
		if pose.Orientation.AngleToDeg(target) <= lookToleranceDeg {
			out := Output{Orientation: target}
			c.enterIdle(now, "arrived facing target")
			return out
		}
		return Output{Orientation: pose.Orientation.RotateTowards(target, c.cfg.TurnRateDeg*dt)}
	}

	out := Output{Orientation: pose.Orientation}
	c.enterIdle(now, "arrived")
	return out
}

// effectiveAxes blends manual input with the speed-scaled command axes.
// The result is deliberately not clamped: speed percentages over 100
// are allowed to exceed unit range, scaling velocity directly.
func (c *Controller) effectiveAxes() Axes {
	return c.manual.Add(c.CommandAxes().Scaled(c.speedMult))
}

// axisVelocity converts axes into a world-space velocity in the
// heading-level body basis (forward and right follow the heading, up
// is world up).
func (c *Controller) axisVelocity(eff Axes, pose core.Pose) vec.Vec3 {
	heading := vec.FromYawDeg(pose.Orientation.YawDeg())
	fwd := heading.Forward().Scale(eff.Forward)
	right := heading.Right().Scale(eff.Lateral)
	up := vec.Vec3{Y: eff.Vertical}
	return fwd.Add(right).Add(up).Scale(c.cfg.LinearSpeed)
}

func (c *Controller) emitCommand(rec core.CommandRecord) {
	if c.events != nil {
		c.events.RecordCommand(rec)
	}
}

func (c *Controller) emitEvent(ev core.FlightEvent) {
	if c.events != nil {
		c.events.RecordEvent(ev)
	}
}
