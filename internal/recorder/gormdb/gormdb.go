// Package gormdb implements the recorder.Backend interface on a GORM
// database with internal queues and a background writer goroutine, so
// callers never wait on the database.
//
// The same backend serves Postgres and SQLite. The SQLite path records
// into an in-memory database and periodically dumps it to disk with
// VACUUM INTO.
package gormdb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/skysim-labs/dronepilot/internal/database"
	"github.com/skysim-labs/dronepilot/internal/model"
	"github.com/skysim-labs/dronepilot/internal/model/convert"
	"github.com/skysim-labs/dronepilot/internal/queue"
	"github.com/skysim-labs/dronepilot/pkg/core"
)

const (
	writeInterval       = 2 * time.Second
	defaultDumpInterval = 30 * time.Second
)

// Config holds the SQLite-specific settings. Ignored on the Postgres path
// unless the connection falls back to the local database.
type Config struct {
	DumpDir      string
	DumpInterval time.Duration
}

type writeQueues struct {
	Commands     *queue.Queue[model.CommandLog]
	Events       *queue.Queue[model.FlightEventLog]
	States       *queue.Queue[model.StateSample]
	Observations *queue.Queue[model.ObservationLog]
}

func newWriteQueues() writeQueues {
	return writeQueues{
		Commands:     queue.New[model.CommandLog](),
		Events:       queue.New[model.FlightEventLog](),
		States:       queue.New[model.StateSample](),
		Observations: queue.New[model.ObservationLog](),
	}
}

// Backend buffers rows in queues and drains them in batches.
type Backend struct {
	log *slog.Logger
	db  *database.Manager
	cfg Config

	local  bool // skip the Postgres attempt, record straight into SQLite
	queues writeQueues

	sessionID atomic.Int64
	dbReady   atomic.Bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	writers   sync.WaitGroup
}

// NewPostgres creates a backend that connects to the configured Postgres
// server, falling back to local SQLite when it is unreachable.
func NewPostgres(log *slog.Logger, dblog zerolog.Logger) *Backend {
	return &Backend{
		log:      log.With("backend", "postgres"),
		db:       database.NewManager(dblog),
		cfg:      Config{DumpDir: ".", DumpInterval: defaultDumpInterval},
		queues:   newWriteQueues(),
		stopChan: make(chan struct{}),
	}
}

// NewSqlite creates a backend that records into an in-memory SQLite
// database with periodic disk dumps.
func NewSqlite(log *slog.Logger, dblog zerolog.Logger, cfg Config) *Backend {
	if cfg.DumpInterval <= 0 {
		cfg.DumpInterval = defaultDumpInterval
	}
	return &Backend{
		log:      log.With("backend", "sqlite"),
		db:       database.NewManager(dblog),
		cfg:      cfg,
		local:    true,
		queues:   newWriteQueues(),
		stopChan: make(chan struct{}),
	}
}

// Init connects, migrates the schema and starts the background writer.
func (b *Backend) Init() error {
	var err error
	if b.local {
		err = b.db.ConnectLocal()
	} else {
		err = b.db.Connect()
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if err := b.db.Setup(); err != nil {
		return fmt.Errorf("failed to set up schema: %w", err)
	}

	b.dbReady.Store(true)
	b.startWriter()
	return nil
}

// Close stops the writer, flushes what is queued and closes the pool.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.writers.Wait()
	b.flushAll()
	return b.db.Close()
}

// StartSession inserts (or finds) the session row and remembers its ID for
// stamping. On the local path it also fixes the dump file location.
func (b *Backend) StartSession(session *core.FlightSession) error {
	if !b.dbReady.Load() {
		return fmt.Errorf("database not ready")
	}

	row := convert.CoreToSession(*session)
	if _, err := row.GetOrInsert(b.db.DB); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	b.sessionID.Store(int64(row.ID))
	session.ID = row.ID

	if b.db.ShouldSaveLocal {
		filename := fmt.Sprintf("flight_%s.db", session.StartTime.Format("20060102_150405"))
		b.db.SqliteFilePath = filepath.Join(b.cfg.DumpDir, filename)
		b.startDumpLoop()
	}

	b.log.Info("session started", "sessionId", row.ID, "local", b.db.ShouldSaveLocal)
	return nil
}

// EndSession flushes outstanding rows and stamps the session end time.
func (b *Backend) EndSession() error {
	b.flushAll()

	id := uint(b.sessionID.Load())
	if id == 0 {
		return nil
	}

	err := b.db.DB.Model(&model.FlightSession{}).
		Where("id = ?", id).
		Update("end_time", sql.NullTime{Time: time.Now(), Valid: true}).Error
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	if b.db.ShouldSaveLocal && b.db.SqliteFilePath != "" {
		if err := b.db.DumpMemoryToDisk(); err != nil {
			return fmt.Errorf("final dump failed: %w", err)
		}
	}
	return nil
}

// ExportedFilePath returns the SQLite dump location, or empty on the
// Postgres path.
func (b *Backend) ExportedFilePath() string {
	if !b.db.ShouldSaveLocal {
		return ""
	}
	return b.db.SqliteFilePath
}

func (b *Backend) RecordCommand(c *core.CommandRecord) error {
	b.queues.Commands.Push(convert.CoreToCommand(*c))
	return nil
}

func (b *Backend) RecordEvent(e *core.FlightEvent) error {
	b.queues.Events.Push(convert.CoreToEvent(*e))
	return nil
}

func (b *Backend) RecordState(s *core.VehicleState) error {
	b.queues.States.Push(convert.CoreToState(*s))
	return nil
}

func (b *Backend) RecordObservation(o *core.Observation) error {
	b.queues.Observations.Push(convert.CoreToObservation(*o))
	return nil
}

// QueueLengths reports the pending row count per queue.
func (b *Backend) QueueLengths() (commands, events, states, observations int) {
	return b.queues.Commands.Len(),
		b.queues.Events.Len(),
		b.queues.States.Len(),
		b.queues.Observations.Len()
}

// startWriter starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startWriter() {
	b.writers.Add(1)
	go func() {
		defer b.writers.Done()

		ticker := time.NewTicker(writeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-b.stopChan:
				return
			case <-ticker.C:
				b.flushAll()
			}
		}
	}()
}

// startDumpLoop dumps the in-memory database to disk on an interval.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is
// needed.
func (b *Backend) startDumpLoop() {
	if b.cfg.DumpInterval <= 0 {
		return
	}

	b.writers.Add(1)
	go func() {
		defer b.writers.Done()

		ticker := time.NewTicker(b.cfg.DumpInterval)
		defer ticker.Stop()

		for {
			select {
			case <-b.stopChan:
				return
			case <-ticker.C:
				if err := b.db.DumpMemoryToDisk(); err != nil {
					b.log.Error("failed to dump to disk", "error", err)
				}
			}
		}
	}()
}

// flushAll drains every queue into the database, stamping rows with the
// current session ID.
func (b *Backend) flushAll() {
	if !b.dbReady.Load() {
		return
	}

	// Read sessionID once per write cycle
	sessionID := uint(b.sessionID.Load())

	stampCommands := func(items []model.CommandLog) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampEvents := func(items []model.FlightEventLog) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampStates := func(items []model.StateSample) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampObservations := func(items []model.ObservationLog) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}

	writeQueue(b.db.DB, b.queues.Commands, "commands", b.log, stampCommands)
	writeQueue(b.db.DB, b.queues.Events, "events", b.log, stampEvents)
	writeQueue(b.db.DB, b.queues.States, "state samples", b.log, stampStates)
	writeQueue(b.db.DB, b.queues.Observations, "observations", b.log, stampObservations)
}

// writeQueue drains one queue into the database in a single transaction,
// re-queueing the batch on failure so rows survive a transient outage.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, prepare func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.DrainAll()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log.Error("failed to write batch", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		// Return the batch ahead of rows recorded during the attempt so the
		// persisted timeline keeps arrival order.
		q.PushFront(items...)
		return
	}

	tx.Commit()
}
