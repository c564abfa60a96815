// Package database manages GORM connections for the flight recorder,
// preferring Postgres and falling back to a local SQLite database.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/skysim-labs/dronepilot/internal/model"
)

// Manager tracks the active connection and whether rows are headed for
// Postgres or the in-memory SQLite database.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	SqliteFilePath  string
	Logger          zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect tries Postgres first and falls back to SQLite on any dial or
// ping failure, so a flight recording is never lost to a down server.
func (m *Manager) Connect() error {
	db, err := m.GetPostgresDB()
	if err == nil {
		err = m.adopt(db)
	}
	if err == nil && m.SqlDB.Ping() != nil {
		err = fmt.Errorf("postgres ping failed")
	}
	if err != nil {
		m.Logger.Error().Err(err).Msg("Postgres unavailable, falling back to SQLite")
		return m.ConnectLocal()
	}

	m.ShouldSaveLocal = false
	m.SqlDB.SetMaxOpenConns(10)
	m.IsValid = true
	m.Logger.Info().Msg("Connected to Postgres")
	return nil
}

// ConnectLocal opens the in-memory SQLite database directly, skipping the
// Postgres attempt. Used by the sqlite recorder backend.
func (m *Manager) ConnectLocal() error {
	m.ShouldSaveLocal = true

	db, err := m.GetSqliteDB("")
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to get local SQLite DB: %s", err)
	}
	if err := m.adopt(db); err != nil {
		return err
	}

	m.IsValid = true
	return nil
}

// adopt installs db on the manager and resolves its sql.DB handle.
func (m *Manager) adopt(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %s", err)
	}
	m.DB = db
	m.SqlDB = sqlDB
	return nil
}

func gormConfig(batchSize int) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        batchSize,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// GetPostgresDB dials Postgres with the db.* settings from the config file.
func (m *Manager) GetPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	m.Logger.Debug().Msgf("Connecting to Postgres DB at '%s'", dsn)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB opens a SQLite database at path, or the shared in-memory
// database when path is empty. Pragmas trade durability for write speed;
// the periodic disk dump covers crash recovery.
func (m *Manager) GetSqliteDB(path string) (*gorm.DB, error) {
	source := path
	if source == "" {
		source = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(source), gormConfig(2000))
	if err != nil {
		m.IsValid = false
		return nil, err
	}
	if path != "" {
		m.Logger.Info().Str("path", path).Msg("Using local SQLite DB")
	} else {
		m.Logger.Info().Msg("Using in-memory SQLite DB with periodic disk dump")
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
		"PRAGMA page_size = 32768;",
		"PRAGMA mmap_size = 30000000000;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %s", err)
		}
	}

	return db, nil
}

// Setup migrates the recording schema. The SQLite model set skips the
// Postgres-only column types.
func (m *Manager) Setup() error {
	m.Logger.Info().Msg("Migrating schema")

	models := model.DatabaseModels
	if m.ShouldSaveLocal {
		models = model.DatabaseModelsSQLite
	}
	if err := m.DB.AutoMigrate(models...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %s", err)
	}

	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// DumpMemoryToDisk vacuums the in-memory database into SqliteFilePath,
// replacing any previous dump.
func (m *Manager) DumpMemoryToDisk() error {
	if m.SqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	if _, err := os.Stat(m.SqliteFilePath); err == nil {
		if err := os.Remove(m.SqliteFilePath); err != nil {
			return fmt.Errorf("error removing existing DB file: %s", err)
		}
	}

	start := time.Now()
	if err := m.DB.Exec("VACUUM INTO 'file:" + m.SqliteFilePath + "';").Error; err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %s", err)
	}

	m.Logger.Debug().Dur("duration", time.Since(start)).Msg("Dumped memory DB to disk")
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	m.IsValid = false
	return m.SqlDB.Close()
}
