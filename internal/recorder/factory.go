package recorder

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/skysim-labs/dronepilot/internal/config"
	"github.com/skysim-labs/dronepilot/internal/geo"
	"github.com/skysim-labs/dronepilot/internal/recorder/gormdb"
	"github.com/skysim-labs/dronepilot/internal/recorder/memory"
	"github.com/skysim-labs/dronepilot/internal/recorder/websocket"
)

// Dependencies carries the shared services a backend may need.
type Dependencies struct {
	Log   *slog.Logger
	DBLog zerolog.Logger
	Geo   *geo.Converter // nil when no world origin is configured
}

// NewBackend creates a recorder backend based on configuration.
func NewBackend(deps Dependencies, cfg config.RecorderConfig) (Backend, error) {
	switch cfg.Type {
	case "", "none":
		return Noop{}, nil
	case "memory":
		return memory.New(deps.Log, cfg.Memory, deps.Geo), nil
	case "sqlite":
		return gormdb.NewSqlite(deps.Log, deps.DBLog, gormdb.Config{
			DumpDir:      cfg.SQLite.DumpDir,
			DumpInterval: cfg.SQLite.DumpInterval,
		}), nil
	case "postgres":
		return gormdb.NewPostgres(deps.Log, deps.DBLog), nil
	case "websocket":
		return websocket.New(deps.Log, websocket.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}), nil
	default:
		return nil, fmt.Errorf("unknown recorder type: %s", cfg.Type)
	}
}
