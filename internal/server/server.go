// Package server exposes the HTTP control surface: command ingestion,
// observation ingestion, and read-only views of the interaction
// history and live vehicle state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/skysim-labs/dronepilot/internal/geo"
	"github.com/skysim-labs/dronepilot/internal/history"
	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/vec"
)

const (
	shutdownTimeout     = 5 * time.Second
	defaultHistoryCount = 10
	maxHistoryCount     = 100
)

// Sim is the slice of the simulation loop the server talks to.
type Sim interface {
	EnqueueCommand(raw string)
	EnqueueObservation(obs core.Observation)
	State() core.VehicleState
}

// RecorderStats reports pending write-queue depths for recorder
// backends that buffer records before flushing.
type RecorderStats interface {
	QueueLengths() (commands, events, states, observations int)
}

// Server owns the fiber app. conv may be nil, which disables geodetic
// fields in history responses; stats may be nil, which drops queue
// depths from /status.
type Server struct {
	log   *slog.Logger
	app   *fiber.App
	addr  string
	sim   Sim
	hist  *history.Log
	conv  *geo.Converter
	stats RecorderStats

	commandsReceived     metric.Int64Counter
	observationsReceived metric.Int64Counter
}

// New builds the server and registers all routes.
func New(logger *slog.Logger, addr string, sim Sim, hist *history.Log, conv *geo.Converter, stats RecorderStats) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               "dronepilot",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           10 * time.Second,
	})

	s := &Server{
		log:   logger,
		app:   app,
		addr:  addr,
		sim:   sim,
		hist:  hist,
		conv:  conv,
		stats: stats,
	}

	m := meter()
	var err error

	s.commandsReceived, err = m.Int64Counter(
		"server.commands.received",
		metric.WithDescription("Total command strings accepted over HTTP"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating commands counter: %w", err)
	}

	s.observationsReceived, err = m.Int64Counter(
		"server.observations.received",
		metric.WithDescription("Total observations accepted over HTTP"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating observations counter: %w", err)
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/", s.handleRoot)
	s.app.Post("/", s.handleCommand)
	s.app.Post("/receive_command", s.handleCommand)
	s.app.Post("/observations", s.handleObservation)
	s.app.Get("/history", s.handleHistory)
	s.app.Get("/history/tags", s.handleHistoryTags)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/state", s.handleState)
}

// Serve blocks until ctx is done or the listener fails, then shuts the
// app down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.log.Info("http server listening", "addr", s.addr)
		if err := s.app.Listen(s.addr); err != nil {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down http server")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
	}
	return nil
}

func errorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return ctx.Status(code).JSON(errorResponse{Error: err.Error()})
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type commandRequest struct {
	Command string `json:"command"`
	Details string `json:"details"`
}

type observationRequest struct {
	Name             string   `json:"name"`
	Tag              string   `json:"tag"`
	Position         vec.Vec3 `json:"position"`
	Orientation      vec.Quat `json:"orientation"`
	DistanceMeters   float64  `json:"distanceMeters"`
	TimestampSeconds float64  `json:"timestampSeconds"`
}

type historyRecord struct {
	Name             string   `json:"name"`
	Tag              string   `json:"tag"`
	Position         vec.Vec3 `json:"position"`
	Orientation      vec.Quat `json:"orientation"`
	TimestampSeconds float64  `json:"timestampSeconds"`
	DistanceMeters   float64  `json:"distanceMeters"`
	Longitude        *float64 `json:"longitude,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	AltitudeMeters   *float64 `json:"altitudeMeters,omitempty"`
}

type historyResponse struct {
	Found   bool            `json:"found"`
	Count   int             `json:"count"`
	Records []historyRecord `json:"records"`
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

type healthResponse struct {
	IsServerRunning bool   `json:"isServerRunning"`
	IsSimRunning    bool   `json:"isSimRunning"`
	Tick            uint64 `json:"tick"`
}

type statusResponse struct {
	Mode         string       `json:"mode"`
	SpeedPercent float64      `json:"speedPercent"`
	Tick         uint64       `json:"tick"`
	HeadingDeg   float64      `json:"headingDeg"`
	HistoryCount int          `json:"historyCount"`
	QueueDepths  *queueDepths `json:"queueDepths,omitempty"`
}

type queueDepths struct {
	Commands     int `json:"commands"`
	Events       int `json:"events"`
	States       int `json:"states"`
	Observations int `json:"observations"`
}

type stateResponse struct {
	Tick             uint64   `json:"tick"`
	TimestampSeconds float64  `json:"timestampSeconds"`
	Position         vec.Vec3 `json:"position"`
	Orientation      vec.Quat `json:"orientation"`
	Velocity         vec.Vec3 `json:"velocity"`
	HeadingDeg       float64  `json:"headingDeg"`
	Mode             string   `json:"mode"`
	SpeedPercent     float64  `json:"speedPercent"`
}

func (s *Server) handleRoot(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"service": "dronepilot", "status": "ok"})
}

func (s *Server) handleCommand(ctx *fiber.Ctx) error {
	var req commandRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	cmds := splitCommands(req.Command)
	if len(cmds) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "missing command in request")
	}

	for _, cmd := range cmds {
		s.sim.EnqueueCommand(cmd)
	}
	s.commandsReceived.Add(context.Background(), int64(len(cmds)))
	s.log.Debug("commands queued", "count", len(cmds), "details", req.Details)

	return ctx.JSON(ackResponse{Status: "success"})
}

func (s *Server) handleObservation(ctx *fiber.Ctx) error {
	var req observationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing name in observation")
	}

	obs := core.Observation{
		Name:        req.Name,
		Tag:         req.Tag,
		Position:    req.Position,
		Orientation: req.Orientation,
		Distance:    req.DistanceMeters,
	}
	if obs.Orientation == (vec.Quat{}) {
		obs.Orientation = vec.Identity()
	}
	if req.TimestampSeconds > 0 {
		sec := int64(req.TimestampSeconds)
		nsec := int64((req.TimestampSeconds - float64(sec)) * float64(time.Second))
		obs.Time = time.Unix(sec, nsec)
	}

	s.sim.EnqueueObservation(obs)
	s.observationsReceived.Add(context.Background(), 1)

	return ctx.JSON(ackResponse{Status: "success"})
}

func (s *Server) handleHistory(ctx *fiber.Ctx) error {
	tag := ctx.Query("tag")
	name := ctx.Query("name")
	withGeo := ctx.QueryBool("geo", false)

	var records []core.Observation
	switch {
	case tag != "":
		if obs, ok := s.hist.LastByTag(tag); ok {
			records = append(records, obs)
		}
	case name != "":
		if obs, ok := s.hist.ByName(name); ok {
			records = append(records, obs)
		}
	default:
		count := ctx.QueryInt("count", defaultHistoryCount)
		if count < 1 {
			count = 1
		}
		if count > maxHistoryCount {
			count = maxHistoryCount
		}
		records = s.hist.Recent(count)
	}

	resp := historyResponse{
		Found:   len(records) > 0,
		Count:   len(records),
		Records: make([]historyRecord, 0, len(records)),
	}
	for _, obs := range records {
		resp.Records = append(resp.Records, s.toRecord(obs, withGeo))
	}
	return ctx.JSON(resp)
}

func (s *Server) handleHistoryTags(ctx *fiber.Ctx) error {
	return ctx.JSON(tagsResponse{Tags: s.hist.AllTags()})
}

func (s *Server) handleHealth(ctx *fiber.Ctx) error {
	state := s.sim.State()
	return ctx.JSON(healthResponse{
		IsServerRunning: true,
		IsSimRunning:    time.Since(state.Time) < time.Second,
		Tick:            state.Tick,
	})
}

func (s *Server) handleStatus(ctx *fiber.Ctx) error {
	state := s.sim.State()
	resp := statusResponse{
		Mode:         state.Mode,
		SpeedPercent: state.SpeedPercent,
		Tick:         state.Tick,
		HeadingDeg:   state.HeadingDeg,
		HistoryCount: s.hist.Len(),
	}
	if s.stats != nil {
		c, e, st, o := s.stats.QueueLengths()
		resp.QueueDepths = &queueDepths{Commands: c, Events: e, States: st, Observations: o}
	}
	return ctx.JSON(resp)
}

func (s *Server) handleState(ctx *fiber.Ctx) error {
	state := s.sim.State()
	return ctx.JSON(stateResponse{
		Tick:             state.Tick,
		TimestampSeconds: unixSeconds(state.Time),
		Position:         state.Position,
		Orientation:      state.Orientation,
		Velocity:         state.Velocity,
		HeadingDeg:       state.HeadingDeg,
		Mode:             state.Mode,
		SpeedPercent:     state.SpeedPercent,
	})
}

func (s *Server) toRecord(obs core.Observation, withGeo bool) historyRecord {
	rec := historyRecord{
		Name:             obs.Name,
		Tag:              obs.Tag,
		Position:         obs.Position,
		Orientation:      obs.Orientation,
		TimestampSeconds: unixSeconds(obs.Time),
		DistanceMeters:   obs.Distance,
	}
	if withGeo && s.conv != nil {
		lon, lat, alt := s.conv.ToGeodetic(obs.Position)
		rec.Longitude, rec.Latitude, rec.AltitudeMeters = &lon, &lat, &alt
	}
	return rec
}

// splitCommands breaks a compound command value into individual
// commands. The separator is a semicolon so coordinate arguments,
// which contain commas, pass through intact.
func splitCommands(raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}
