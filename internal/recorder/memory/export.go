package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// FlightExport is the root JSON structure written at session end.
type FlightExport struct {
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Hostname       string  `json:"hostname"`
	StartTime      string  `json:"startTime"`
	EndTime        string  `json:"endTime"`
	TickRateHz     float64 `json:"tickRateHz"`

	Commands     [][]any         `json:"commands"`
	Events       [][]any         `json:"events"`
	Track        [][]any         `json:"track"`
	Observations [][]any         `json:"observations"`
	GeoTrack     json.RawMessage `json:"geoTrack,omitempty"` // GeoJSON LineString, present when a world origin is configured
}

// exportJSON writes the session data to a JSON file, gzipped when
// configured. Caller holds b.mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	name := strings.ReplaceAll(b.session.ServiceName, " ", "_")
	if name == "" {
		name = "flight"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	b.log.Info("exported flight log", "path", outputPath)
	return nil
}

func (b *Backend) buildExport() FlightExport {
	export := FlightExport{
		ServiceName:    b.session.ServiceName,
		ServiceVersion: b.session.ServiceVersion,
		Hostname:       b.session.Hostname,
		StartTime:      b.session.StartTime.UTC().Format(time.RFC3339),
		EndTime:        time.Now().UTC().Format(time.RFC3339),
		TickRateHz:     b.session.TickRateHz,
		Commands:       make([][]any, 0, len(b.commands)),
		Events:         make([][]any, 0, len(b.events)),
		Track:          make([][]any, 0, len(b.states)),
		Observations:   make([][]any, 0, len(b.observations)),
	}

	// Convert commands
	// Format: [tick, raw, kind, accepted, detail]
	for _, c := range b.commands {
		export.Commands = append(export.Commands, []any{
			c.Tick,
			c.Raw,
			c.Kind,
			c.Accepted,
			c.Detail,
		})
	}

	// Convert events
	// Format: [tick, name, message]
	for _, e := range b.events {
		export.Events = append(export.Events, []any{
			e.Tick,
			e.Name,
			e.Message,
		})
	}

	// Convert state samples
	// Format: [tick, [x, y, z], headingDeg, mode, speedPercent]
	for _, s := range b.states {
		export.Track = append(export.Track, []any{
			s.Tick,
			[]float64{s.Position.X, s.Position.Y, s.Position.Z},
			s.HeadingDeg,
			s.Mode,
			s.SpeedPercent,
		})
	}

	// Convert observations
	// Format: [name, tag, [x, y, z], distanceMeters, unixSeconds]
	for _, o := range b.observations {
		export.Observations = append(export.Observations, []any{
			o.Name,
			o.Tag,
			[]float64{o.Position.X, o.Position.Y, o.Position.Z},
			o.Distance,
			o.Time.Unix(),
		})
	}

	if b.conv != nil && len(b.states) >= 2 {
		positions := make([]vec.Vec3, 0, len(b.states))
		for _, s := range b.states {
			positions = append(positions, s.Position)
		}
		track, err := b.conv.TrackGeoJSON(positions)
		if err != nil {
			b.log.Warn("failed to build GeoJSON track", "error", err)
		} else {
			export.GeoTrack = track
		}
	}

	return export
}

func writeJSON(path string, data FlightExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data FlightExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
