// Command dronepilot runs the simulated drone flight service: an HTTP
// command surface, a fixed-timestep motion sim, a bounded interaction
// history and a pluggable flight recorder.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/skysim-labs/dronepilot/internal/api"
	"github.com/skysim-labs/dronepilot/internal/config"
	"github.com/skysim-labs/dronepilot/internal/geo"
	"github.com/skysim-labs/dronepilot/internal/history"
	"github.com/skysim-labs/dronepilot/internal/influx"
	"github.com/skysim-labs/dronepilot/internal/logging"
	"github.com/skysim-labs/dronepilot/internal/monitor"
	"github.com/skysim-labs/dronepilot/internal/motion"
	intOtel "github.com/skysim-labs/dronepilot/internal/otel"
	"github.com/skysim-labs/dronepilot/internal/recorder"
	"github.com/skysim-labs/dronepilot/internal/server"
	"github.com/skysim-labs/dronepilot/internal/sim"
	"github.com/skysim-labs/dronepilot/pkg/core"
)

// service defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	ServiceName string = "dronepilot"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// GraylogHandler forwards log records to Graylog when enabled
	GraylogHandler *logging.GelfHandler

	SessionStartTime time.Time = time.Now()

	LogFilePath string
	LogFile     *os.File
)

func main() {
	// Console logging until the session log file is open.
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}
	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	setupLogging()

	err := run()
	if err != nil {
		Logger.Error("Service failed", "error", err)
	}

	shutdownLogging()
	if err != nil {
		os.Exit(1)
	}
}

// setupLogging opens the session log file and rebuilds the slog
// pipeline around it: file text handler, optional OTel bridge and
// optional Graylog handler.
func setupLogging() {
	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
		}
	}

	LogFilePath = logging.LogFilePath(logsDir, ServiceName, SessionStartTime)

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file, staying on console", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	// The OTel provider writes its log stream into the same session file.
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && LogFile != nil {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else if otelCfg.Endpoint != "" {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var extras []slog.Handler
	if viper.GetBool("graylog.enabled") {
		GraylogHandler, err = logging.NewGelfHandler(
			viper.GetString("graylog.address"),
			"",
			logging.ParseLevel(viper.GetString("logLevel")),
		)
		if err != nil {
			Logger.Error("Failed to connect Graylog handler", "error", err)
		} else {
			extras = append(extras, GraylogHandler)
			Logger.Info("Graylog handler connected", "address", viper.GetString("graylog.address"))
		}
	}

	// A nil *os.File must not reach Setup as a non-nil io.Writer.
	var logWriter io.Writer
	if LogFile != nil {
		logWriter = LogFile
	}
	SlogManager.Setup(logWriter, viper.GetString("logLevel"), otelLogProvider, extras...)
	Logger = SlogManager.Logger()
	if LogFile != nil {
		Logger.Info("Logging to file", "path", LogFilePath)
	}
}

// shutdownLogging flushes and releases every log sink. Called last so
// shutdown of the other services is still logged.
func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if GraylogHandler != nil {
		_ = GraylogHandler.Close()
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

func run() error {
	// Subsystems that predate slog keep zerolog, pointed at the same sink.
	var zerologOut io.Writer = os.Stdout
	if LogFile != nil {
		zerologOut = LogFile
	}
	dbLog := zerolog.New(zerologOut).With().Timestamp().Logger().Level(zerologLevel(viper.GetString("logLevel")))

	var conv *geo.Converter
	geoCfg := config.GetGeoConfig()
	if geoCfg.Enabled {
		var err error
		conv, err = geo.NewConverter(geoCfg.OriginLon, geoCfg.OriginLat)
		if err != nil {
			Logger.Error("Invalid world origin, geodetic export disabled", "error", err)
		} else {
			Logger.Info("Geodetic export enabled", "originLat", geoCfg.OriginLat, "originLon", geoCfg.OriginLon)
		}
	}

	recCfg := config.GetRecorderConfig()
	backend, err := recorder.NewBackend(recorder.Dependencies{
		Log:   Logger,
		DBLog: dbLog,
		Geo:   conv,
	}, recCfg)
	if err != nil {
		return fmt.Errorf("creating recorder backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing %s recorder: %w", recCfg.Type, err)
	}
	Logger.Info("Recorder initialized", "type", recCfg.Type)

	rec := recorder.New(Logger, backend)

	hostname, _ := os.Hostname()
	simCfg := config.GetSimConfig()
	session := &core.FlightSession{
		StartTime:      SessionStartTime,
		ServiceName:    ServiceName,
		ServiceVersion: CurrentVersion,
		Hostname:       hostname,
		TickRateHz:     simCfg.TickRateHz,
	}
	if err := rec.StartSession(session); err != nil {
		Logger.Error("Failed to start recording session", "error", err)
	}

	histCfg := config.GetHistoryConfig()
	hist := history.NewLog(histCfg.Capacity, histCfg.DuplicateCooldown)

	motionCfg := config.GetMotionConfig()
	loop, err := sim.NewLoop(Logger, sim.Config{
		TickRateHz:     int(simCfg.TickRateHz),
		SampleInterval: recCfg.SampleInterval,
		Motion: motion.Config{
			LinearSpeed:    motionCfg.LinearSpeed,
			TurnRateDeg:    motionCfg.TurnRateDeg,
			CommandTimeout: motionCfg.CommandTimeout,
		},
	}, hist, rec)
	if err != nil {
		return fmt.Errorf("creating simulation loop: %w", err)
	}

	// Every log line carries the live tick and mode from here on.
	SlogManager.ContextAttrs = func() []slog.Attr {
		st := loop.State()
		return []slog.Attr{slog.Uint64("tick", st.Tick), slog.String("mode", st.Mode)}
	}

	var stats server.RecorderStats
	if qs, ok := backend.(server.RecorderStats); ok {
		stats = qs
	}

	srvCfg := config.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", srvCfg.Host, srvCfg.Port)
	srv, err := server.New(Logger, addr, loop, hist, conv, stats)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	var influxManager *influx.Manager
	if viper.GetBool("influx.enabled") {
		backupPath := filepath.Join(viper.GetString("logsDir"),
			fmt.Sprintf("%s_influx_backup_%s.gz", ServiceName, SessionStartTime.Format("20060102_150405")))
		influxManager = influx.NewManager(dbLog, backupPath)
		if err := influxManager.Connect(); err != nil {
			Logger.Error("InfluxDB unavailable, metrics disabled", "error", err)
			influxManager = nil
		}
	}

	var queueStats monitor.QueueStats
	if qs, ok := backend.(monitor.QueueStats); ok {
		queueStats = qs
	}
	monitorService := monitor.NewService(monitor.Dependencies{
		Log:      Logger,
		Influx:   influxManager,
		State:    loop,
		History:  hist,
		Queues:   queueStats,
		Interval: config.GetMonitorConfig().Interval,
	})
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}

	var viewer *api.Client
	viewerCfg := config.GetViewerConfig()
	if viewerCfg.URL != "" {
		viewer = api.New(viewerCfg.URL, viewerCfg.APIKey)
		go func() {
			if err := viewer.Healthcheck(); err != nil {
				Logger.Info("Flight viewer is offline", "error", err)
			} else {
				Logger.Info("Flight viewer is online")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- loop.Run(ctx) }()
	go func() { errCh <- srv.Serve(ctx) }()

	Logger.Info("Service started",
		"version", CurrentVersion,
		"build", BuildDate,
		"addr", addr,
		"tickRateHz", simCfg.TickRateHz,
		"recorder", recCfg.Type,
	)

	// The first component to exit cancels the context and brings the
	// other one down. A context cancellation is a clean shutdown.
	var runErr error
	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
		}
		stop()
	}
	Logger.Info("Shutting down")

	monitorService.Stop()

	if err := rec.EndSession(); err != nil {
		Logger.Error("Failed to end recording session", "error", err)
	}
	if err := rec.Close(); err != nil {
		Logger.Error("Failed to close recorder", "error", err)
	}
	if exp, ok := backend.(recorder.Exportable); ok {
		if path := exp.ExportedFilePath(); path != "" {
			Logger.Info("Recording exported", "path", path)
			if viewer != nil && viewerCfg.AutoUpload {
				meta := api.UploadMetadata{
					Hostname:        hostname,
					SessionStart:    SessionStartTime,
					DurationSeconds: time.Since(SessionStartTime).Seconds(),
				}
				if err := viewer.Upload(path, meta); err != nil {
					Logger.Error("Failed to upload recording", "error", err)
				} else {
					Logger.Info("Recording uploaded", "url", viewerCfg.URL)
				}
			}
		}
	}

	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB manager", "error", err)
		}
	}

	return runErr
}

// zerologLevel maps the shared logLevel config value onto zerolog.
func zerologLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
