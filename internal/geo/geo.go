// Package geo anchors the simulation frame to a geodetic origin so
// positions can be exported as real-world coordinates. Sim space is a
// local tangent plane at the origin: X east, Y up, Z north, in meters.
package geo

import (
	"errors"
	"math"

	"github.com/wroge/wgs84"

	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// ErrInvalidCoordinates is returned when the origin is outside valid
// longitude or latitude ranges.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Converter maps sim-local positions to WGS84. Conversion goes through
// EPSG:3857 so offsets stay linear: meters east and north are scaled by
// the mercator distortion at the origin latitude and added to the
// projected origin.
type Converter struct {
	originLon float64
	originLat float64

	mercX float64
	mercY float64
	scale float64

	toGeodetic func(x, y, z float64) (float64, float64, float64)
}

// NewConverter builds a converter anchored at the given origin.
func NewConverter(originLon, originLat float64) (*Converter, error) {
	if originLon < -180 || originLon > 180 || originLat < -85 || originLat > 85 {
		return nil, ErrInvalidCoordinates
	}

	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	mercX, mercY, _ := toMercator(originLon, originLat, 0)

	return &Converter{
		originLon:  originLon,
		originLat:  originLat,
		mercX:      mercX,
		mercY:      mercY,
		scale:      1 / math.Cos(originLat*math.Pi/180),
		toGeodetic: epsg.Transform(3857, 4326),
	}, nil
}

// Origin returns the configured anchor point.
func (c *Converter) Origin() (lon, lat float64) {
	return c.originLon, c.originLat
}

// ToGeodetic converts a sim-local position to longitude, latitude and
// altitude above the origin.
func (c *Converter) ToGeodetic(pos vec.Vec3) (lon, lat, alt float64) {
	x := c.mercX + pos.X*c.scale
	y := c.mercY + pos.Z*c.scale
	lon, lat, _ = c.toGeodetic(x, y, 0)
	return lon, lat, pos.Y
}
