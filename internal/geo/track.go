package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// TrackLine converts a flown path into a geodetic geom.LineString,
// suitable for GeoJSON export.
func (c *Converter) TrackLine(points []vec.Vec3) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(points))
	}

	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		lon, lat, _ := c.ToGeodetic(p)
		flatCoords = append(flatCoords, lon, lat)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq)
}

// TrackGeoJSON renders a flown path as a GeoJSON geometry.
func (c *Converter) TrackGeoJSON(points []vec.Vec3) ([]byte, error) {
	line, err := c.TrackLine(points)
	if err != nil {
		return nil, err
	}
	return line.AsGeometry().MarshalJSON()
}
