// Package monitor samples the running service once per second and
// ships performance and telemetry points to InfluxDB.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/skysim-labs/dronepilot/internal/history"
	"github.com/skysim-labs/dronepilot/internal/influx"
	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/vec"
)

const sampleInterval = time.Second

// StateSource exposes the latest simulation snapshot.
type StateSource interface {
	State() core.VehicleState
}

// QueueStats reports pending write-queue depths for recorder backends
// that buffer records before flushing.
type QueueStats interface {
	QueueLengths() (commands, events, states, observations int)
}

// Dependencies holds everything the monitor samples.
type Dependencies struct {
	Log      *slog.Logger
	Influx   *influx.Manager // nil disables point writes
	State    StateSource
	History  *history.Log
	Queues   QueueStats    // nil when the recorder has no write queues
	Interval time.Duration // zero means the one second default
}

// Snapshot is one sampled view of the service.
type Snapshot struct {
	Time         time.Time
	Tick         uint64
	Mode         string
	HeadingDeg   float64
	SpeedPercent float64
	Position     vec.Vec3
	Velocity     vec.Vec3
	HistoryLen   int

	QueuedCommands     int
	QueuedEvents       int
	QueuedStates       int
	QueuedObservations int
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}

	lastTick uint64 // sampling goroutine only
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	interval := deps.Interval
	if interval <= 0 {
		interval = sampleInterval
	}
	return &Service{
		deps:     deps,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot samples the current service status.
func (s *Service) Snapshot() Snapshot {
	state := s.deps.State.State()

	snap := Snapshot{
		Time:         time.Now(),
		Tick:         state.Tick,
		Mode:         state.Mode,
		HeadingDeg:   state.HeadingDeg,
		SpeedPercent: state.SpeedPercent,
		Position:     state.Position,
		Velocity:     state.Velocity,
		HistoryLen:   s.deps.History.Len(),
	}

	if s.deps.Queues != nil {
		snap.QueuedCommands, snap.QueuedEvents, snap.QueuedStates, snap.QueuedObservations =
			s.deps.Queues.QueueLengths()
	}

	return snap
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Log.Debug("status monitor started", "interval", s.interval)

		for {
			select {
			case <-s.stopChan:
				return
			default:
				time.Sleep(s.interval)

				snap := s.Snapshot()
				s.deps.Log.Debug("status sample",
					"tick", snap.Tick,
					"mode", snap.Mode,
					"historyLen", snap.HistoryLen,
					"queuedStates", snap.QueuedStates,
				)
				s.ship(snap)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}

// ship writes one performance point and one telemetry point.
func (s *Service) ship(snap Snapshot) {
	if s.deps.Influx == nil {
		return
	}

	tickDelta := snap.Tick - s.lastTick
	s.lastTick = snap.Tick

	perf := influxdb2.NewPointWithMeasurement("sim_status").
		AddTag("mode", snap.Mode).
		AddField("tick", int64(snap.Tick)).
		AddField("tick_rate", float64(tickDelta)/s.interval.Seconds()).
		AddField("history_len", snap.HistoryLen).
		AddField("queued_commands", snap.QueuedCommands).
		AddField("queued_events", snap.QueuedEvents).
		AddField("queued_states", snap.QueuedStates).
		AddField("queued_observations", snap.QueuedObservations).
		SetTime(snap.Time)
	if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketPerformance, perf); err != nil {
		s.deps.Log.Error("failed to write performance point", "error", err)
	}

	tele := influxdb2.NewPointWithMeasurement("vehicle_state").
		AddTag("mode", snap.Mode).
		AddField("x", snap.Position.X).
		AddField("y", snap.Position.Y).
		AddField("z", snap.Position.Z).
		AddField("vx", snap.Velocity.X).
		AddField("vy", snap.Velocity.Y).
		AddField("vz", snap.Velocity.Z).
		AddField("heading_deg", snap.HeadingDeg).
		AddField("speed_percent", snap.SpeedPercent).
		SetTime(snap.Time)
	if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketTelemetry, tele); err != nil {
		s.deps.Log.Error("failed to write telemetry point", "error", err)
	}
}
