// Package sim runs the fixed-timestep simulation loop. The loop owns
// the vehicle pose and the motion controller; everything else talks to
// it through its inbound queues or the published state snapshot.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/skysim-labs/dronepilot/internal/history"
	"github.com/skysim-labs/dronepilot/internal/motion"
	"github.com/skysim-labs/dronepilot/internal/queue"
	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// DefaultTickRateHz is used when Config.TickRateHz is unset.
const DefaultTickRateHz = 30

// Config tunes the loop.
type Config struct {
	TickRateHz     int
	SampleInterval time.Duration // state sample cadence; <= 0 samples every tick
	Motion         motion.Config
}

// Recorder receives the flight data stream. A nil Recorder is allowed;
// the loop then only serves live state.
type Recorder interface {
	RecordCommand(core.CommandRecord)
	RecordEvent(core.FlightEvent)
	RecordState(core.VehicleState)
	RecordObservation(core.Observation)
}

// Loop is the simulation driver. Run executes on a single goroutine;
// EnqueueCommand, EnqueueObservation and State are safe from any
// goroutine.
type Loop struct {
	log  *slog.Logger
	cfg  Config
	hist *history.Log
	rec  Recorder
	ctrl *motion.Controller

	commands     *queue.Queue[string]
	observations *queue.Queue[core.Observation]

	// Loop goroutine only.
	pose       core.Pose
	tick       uint64
	lastSample time.Time

	mu    sync.RWMutex
	state core.VehicleState

	ticks metric.Int64Counter
}

// NewLoop wires a loop around a fresh motion controller. hist receives
// drained observations and resolves symbolic targets; rec may be nil.
func NewLoop(logger *slog.Logger, cfg Config, hist *history.Log, rec Recorder) (*Loop, error) {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = DefaultTickRateHz
	}

	l := &Loop{
		log:          logger,
		cfg:          cfg,
		hist:         hist,
		rec:          rec,
		commands:     queue.New[string](),
		observations: queue.New[core.Observation](),
		pose:         core.Pose{Orientation: vec.Identity()},
		state:        core.VehicleState{Orientation: vec.Identity(), Mode: string(motion.ModeIdle), SpeedPercent: 100},
	}

	ctrl, err := motion.NewController(logger, cfg.Motion, hist, stamper{l})
	if err != nil {
		return nil, fmt.Errorf("creating motion controller: %w", err)
	}
	l.ctrl = ctrl

	var mErr error
	l.ticks, mErr = meter().Int64Counter(
		"sim.ticks",
		metric.WithDescription("Total simulation ticks executed"),
	)
	if mErr != nil {
		return nil, fmt.Errorf("creating tick counter: %w", mErr)
	}

	return l, nil
}

// EnqueueCommand hands one raw command string to the next tick.
func (l *Loop) EnqueueCommand(raw string) {
	l.commands.Push(raw)
}

// EnqueueObservation hands one observation to the next tick.
func (l *Loop) EnqueueObservation(obs core.Observation) {
	l.observations.Push(obs)
}

// State returns the snapshot published by the most recent tick.
func (l *Loop) State() core.VehicleState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.log.Info("simulation loop started", "tickRateHz", l.cfg.TickRateHz)
	l.recordEvent(core.FlightEvent{Time: time.Now(), Name: core.EventSessionStart})

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.recordEvent(core.FlightEvent{Time: time.Now(), Name: core.EventSessionEnd})
			l.log.Info("simulation loop stopped", "ticks", l.State().Tick)
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			if dt <= 0 {
				dt = 1.0 / float64(l.cfg.TickRateHz)
			}
			last = now
			l.advance(now, dt)
		}
	}
}

// advance executes one tick: drain observations, expire decayed
// commands, apply queued commands in arrival order, then step the
// controller and integrate the result into the pose.
func (l *Loop) advance(now time.Time, dt float64) {
	l.tick++

	for _, obs := range l.observations.DrainAll() {
		if !l.hist.Add(obs) {
			continue
		}
		l.log.Debug("observation logged", "name", obs.Name, "tag", obs.Tag)
		if l.rec != nil {
			l.rec.RecordObservation(obs)
		}
	}

	l.ctrl.ExpireCommands(now)

	for _, raw := range l.commands.DrainAll() {
		l.ctrl.Process(now, l.pose, raw)
	}

	out := l.ctrl.Tick(now, dt, l.pose)
	l.pose.Position = l.pose.Position.Add(out.Velocity.Scale(dt))
	l.pose.Orientation = out.Orientation

	state := core.VehicleState{
		Time:         now,
		Tick:         l.tick,
		Position:     l.pose.Position,
		Orientation:  l.pose.Orientation,
		Velocity:     out.Velocity,
		HeadingDeg:   vec.NormalizeHeading(l.pose.Orientation.YawDeg()),
		Mode:         string(l.ctrl.Mode()),
		SpeedPercent: l.ctrl.SpeedPercent(),
	}

	l.mu.Lock()
	l.state = state
	l.mu.Unlock()

	l.ticks.Add(context.Background(), 1)

	if l.rec != nil && (l.cfg.SampleInterval <= 0 || now.Sub(l.lastSample) >= l.cfg.SampleInterval) {
		l.rec.RecordState(state)
		l.lastSample = now
	}
}

func (l *Loop) recordEvent(ev core.FlightEvent) {
	if l.rec == nil {
		return
	}
	ev.Tick = l.tick
	l.rec.RecordEvent(ev)
}

// stamper forwards controller events to the recorder with the current
// tick number attached. The controller only emits during advance, so
// reading the tick field is safe.
type stamper struct {
	l *Loop
}

func (s stamper) RecordCommand(r core.CommandRecord) {
	if s.l.rec == nil {
		return
	}
	r.Tick = s.l.tick
	s.l.rec.RecordCommand(r)
}

func (s stamper) RecordEvent(ev core.FlightEvent) {
	s.l.recordEvent(ev)
}
