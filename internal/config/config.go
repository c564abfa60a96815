package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MemoryConfig holds in-memory/JSON recorder backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// WebSocketConfig holds websocket recorder backend settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// SQLiteConfig holds settings for the in-memory SQLite recorder with
// periodic disk dumps
type SQLiteConfig struct {
	DumpDir      string `json:"dumpDir" mapstructure:"dumpDir"`
	DumpInterval time.Duration
}

// RecorderConfig selects and configures the flight recorder backend
type RecorderConfig struct {
	Type           string // none, memory, sqlite, postgres, websocket
	SampleInterval time.Duration
	Memory         MemoryConfig
	SQLite         SQLiteConfig
	WebSocket      WebSocketConfig
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string
	Port int
}

// SimConfig holds simulation loop settings
type SimConfig struct {
	TickRateHz float64
}

// MotionConfig holds motion controller tuning
type MotionConfig struct {
	LinearSpeed    float64 // units per second at 100% speed
	TurnRateDeg    float64 // degrees per second for yaw and mode turns
	CommandTimeout time.Duration
}

// HistoryConfig holds interaction history settings
type HistoryConfig struct {
	Capacity          int
	DuplicateCooldown time.Duration
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GeoConfig anchors the sim-local frame to a geodetic origin for exports
type GeoConfig struct {
	Enabled   bool
	OriginLat float64
	OriginLon float64
}

// MonitorConfig holds performance monitor settings
type MonitorConfig struct {
	Interval time.Duration
}

// ViewerConfig points at the flight viewer web service
type ViewerConfig struct {
	URL        string
	APIKey     string
	AutoUpload bool // upload exported recordings at session end
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 5005)

	viper.SetDefault("sim.tickRateHz", 30.0)

	viper.SetDefault("motion.linearSpeed", 5.0)
	viper.SetDefault("motion.turnRateDeg", 90.0)
	viper.SetDefault("motion.commandTimeout", "2s")

	viper.SetDefault("history.capacity", 100)
	viper.SetDefault("history.duplicateCooldown", "10s")

	viper.SetDefault("recorder.type", "memory")
	viper.SetDefault("recorder.sampleInterval", "1s")
	viper.SetDefault("recorder.memory.outputDir", "./recordings")
	viper.SetDefault("recorder.memory.compressOutput", true)
	viper.SetDefault("recorder.sqlite.dumpDir", "./recordings")
	viper.SetDefault("recorder.sqlite.dumpInterval", "30s")
	viper.SetDefault("recorder.websocket.url", "")
	viper.SetDefault("recorder.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "dronepilot")
	viper.SetDefault("db.localDir", "./recordings")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "dronepilot-metrics")

	viper.SetDefault("monitor.interval", "10s")

	viper.SetDefault("viewer.url", "")
	viper.SetDefault("viewer.apiKey", "")
	viper.SetDefault("viewer.autoUpload", false)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "dronepilot")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("geo.enabled", false)
	viper.SetDefault("geo.originLat", 0.0)
	viper.SetDefault("geo.originLon", 0.0)

	viper.SetConfigName("dronepilot.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetServerConfig returns the HTTP listener configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Host: viper.GetString("server.host"),
		Port: viper.GetInt("server.port"),
	}
}

// GetSimConfig returns the simulation loop configuration.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRateHz: viper.GetFloat64("sim.tickRateHz"),
	}
}

// GetMotionConfig returns the motion controller configuration.
func GetMotionConfig() MotionConfig {
	return MotionConfig{
		LinearSpeed:    viper.GetFloat64("motion.linearSpeed"),
		TurnRateDeg:    viper.GetFloat64("motion.turnRateDeg"),
		CommandTimeout: viper.GetDuration("motion.commandTimeout"),
	}
}

// GetHistoryConfig returns the interaction history configuration.
func GetHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Capacity:          viper.GetInt("history.capacity"),
		DuplicateCooldown: viper.GetDuration("history.duplicateCooldown"),
	}
}

// GetRecorderConfig returns the flight recorder configuration.
func GetRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Type:           viper.GetString("recorder.type"),
		SampleInterval: viper.GetDuration("recorder.sampleInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("recorder.memory.outputDir"),
			CompressOutput: viper.GetBool("recorder.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpDir:      viper.GetString("recorder.sqlite.dumpDir"),
			DumpInterval: viper.GetDuration("recorder.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("recorder.websocket.url"),
			Secret: viper.GetString("recorder.websocket.secret"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGeoConfig returns the geodetic export configuration.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		Enabled:   viper.GetBool("geo.enabled"),
		OriginLat: viper.GetFloat64("geo.originLat"),
		OriginLon: viper.GetFloat64("geo.originLon"),
	}
}

// GetMonitorConfig returns the performance monitor configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: viper.GetDuration("monitor.interval"),
	}
}

// GetViewerConfig returns the flight viewer configuration.
func GetViewerConfig() ViewerConfig {
	return ViewerConfig{
		URL:        viper.GetString("viewer.url"),
		APIKey:     viper.GetString("viewer.apiKey"),
		AutoUpload: viper.GetBool("viewer.autoUpload"),
	}
}
