package memory

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skysim-labs/dronepilot/internal/config"
	"github.com/skysim-labs/dronepilot/pkg/core"
	"github.com/skysim-labs/dronepilot/pkg/vec"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession() *core.FlightSession {
	return &core.FlightSession{
		StartTime:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ServiceName:    "dronepilot",
		ServiceVersion: "1.0.0",
		Hostname:       "sim-host",
		TickRateHz:     30,
	}
}

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{
		OutputDir:      "/tmp/test",
		CompressOutput: true,
	}
	b := New(discardLogger(), cfg, nil)

	if b == nil {
		t.Fatal("New returned nil")
	}
	if b.cfg.OutputDir != "/tmp/test" {
		t.Errorf("expected OutputDir=/tmp/test, got %s", b.cfg.OutputDir)
	}
	if !b.cfg.CompressOutput {
		t.Error("expected CompressOutput=true")
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(discardLogger(), config.MemoryConfig{}, nil)

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestRecordCommand_AssignsIDs(t *testing.T) {
	b := New(discardLogger(), config.MemoryConfig{}, nil)
	_ = b.StartSession(testSession())

	first := &core.CommandRecord{Raw: "move_forward", Kind: "verb", Accepted: true}
	second := &core.CommandRecord{Raw: "stop", Kind: "stop", Accepted: true}

	if err := b.RecordCommand(first); err != nil {
		t.Fatalf("RecordCommand failed: %v", err)
	}
	if err := b.RecordCommand(second); err != nil {
		t.Fatalf("RecordCommand failed: %v", err)
	}

	if first.ID != 1 {
		t.Errorf("expected first ID=1, got %d", first.ID)
	}
	if second.ID != 2 {
		t.Errorf("expected second ID=2, got %d", second.ID)
	}
}

func TestCounts(t *testing.T) {
	b := New(discardLogger(), config.MemoryConfig{}, nil)
	_ = b.StartSession(testSession())

	_ = b.RecordCommand(&core.CommandRecord{Raw: "ascend"})
	_ = b.RecordEvent(&core.FlightEvent{Name: core.EventModeChange})
	_ = b.RecordState(&core.VehicleState{Tick: 1})
	_ = b.RecordState(&core.VehicleState{Tick: 2})
	_ = b.RecordObservation(&core.Observation{Name: "Chair"})

	commands, events, states, observations := b.Counts()
	if commands != 1 {
		t.Errorf("expected 1 command, got %d", commands)
	}
	if events != 1 {
		t.Errorf("expected 1 event, got %d", events)
	}
	if states != 2 {
		t.Errorf("expected 2 states, got %d", states)
	}
	if observations != 1 {
		t.Errorf("expected 1 observation, got %d", observations)
	}
}

func TestStartSessionResetsEverything(t *testing.T) {
	b := New(discardLogger(), config.MemoryConfig{}, nil)
	_ = b.StartSession(testSession())

	_ = b.RecordCommand(&core.CommandRecord{Raw: "move_forward"})
	_ = b.RecordEvent(&core.FlightEvent{Name: core.EventModeChange})
	_ = b.RecordState(&core.VehicleState{Tick: 1})
	_ = b.RecordObservation(&core.Observation{Name: "Chair"})

	if err := b.StartSession(testSession()); err != nil {
		t.Fatalf("second StartSession failed: %v", err)
	}

	commands, events, states, observations := b.Counts()
	if commands != 0 || events != 0 || states != 0 || observations != 0 {
		t.Errorf("expected empty store after restart, got %d/%d/%d/%d",
			commands, events, states, observations)
	}

	next := &core.CommandRecord{Raw: "stop"}
	_ = b.RecordCommand(next)
	if next.ID != 1 {
		t.Errorf("expected ID counter reset to 1, got %d", next.ID)
	}
}

func TestEndSessionWithoutStartSession(t *testing.T) {
	b := New(discardLogger(), config.MemoryConfig{}, nil)

	if err := b.EndSession(); err != nil {
		t.Errorf("EndSession without session should be a no-op, got %v", err)
	}
	if b.ExportedFilePath() != "" {
		t.Errorf("expected no export path, got %s", b.ExportedFilePath())
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := New(discardLogger(), config.MemoryConfig{}, nil)
	_ = b.StartSession(testSession())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.RecordCommand(&core.CommandRecord{Raw: "move_forward", Tick: uint64(n)})
				_ = b.RecordState(&core.VehicleState{Tick: uint64(j), Position: vec.Vec3{X: float64(j)}})
			}
		}(i)
	}
	wg.Wait()

	commands, _, states, _ := b.Counts()
	if commands != 500 {
		t.Errorf("expected 500 commands, got %d", commands)
	}
	if states != 500 {
		t.Errorf("expected 500 states, got %d", states)
	}
}
