// Package geo holds the coordinate math used by the simulation.
//
// Distances inside the engine are planar distances in degree space: the
// difference in latitude and longitude is treated as a flat vector. Only the
// conversion from meters to degrees applies a cos(latitude) factor to the
// longitude axis, and only where a shape must look round on a map.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// MetersPerDegree is the length of one degree of latitude.
const MetersPerDegree = 111319.0

// ErrInvalidCoordinate is returned for NaN or out-of-range coordinates.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewCoordinate validates lat/lon and returns the coordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, lat, lon)
	}
	return c, nil
}

// Valid reports whether c is a usable WGS84 coordinate.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Point converts to an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// FromPoint converts an orb point back into a Coordinate.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// Distance is the planar distance between a and b, in degrees.
func Distance(a, b Coordinate) float64 {
	return planar.Distance(a.Point(), b.Point())
}

// Bearing returns the planar angle from -> to in radians, using the same
// convention as Destination: 0 points north, pi/2 points east.
func Bearing(from, to Coordinate) float64 {
	return math.Atan2(to.Lon-from.Lon, to.Lat-from.Lat)
}

// Destination moves dist degrees from origin along angle (radians).
func Destination(origin Coordinate, angle, dist float64) Coordinate {
	return Coordinate{
		Lat: origin.Lat + dist*math.Cos(angle),
		Lon: origin.Lon + dist*math.Sin(angle),
	}
}

// MetersToDegrees converts a length in meters to degrees of latitude.
func MetersToDegrees(meters float64) float64 {
	return meters / MetersPerDegree
}

// Offset moves meters from origin along angle, scaling the longitude
// component by cos(latitude) so the result is metrically correct.
func Offset(origin Coordinate, meters, angle float64) Coordinate {
	dLat := MetersToDegrees(meters) * math.Cos(angle)
	dLon := meters / (MetersPerDegree * math.Cos(origin.Lat*math.Pi/180)) * math.Sin(angle)
	return Coordinate{Lat: origin.Lat + dLat, Lon: origin.Lon + dLon}
}

// Circle builds a closed ring approximating a circle of radiusMeters around
// center, one vertex every stepDeg degrees.
func Circle(center Coordinate, radiusMeters float64, stepDeg int) orb.Ring {
	if stepDeg <= 0 {
		stepDeg = 10
	}
	ring := make(orb.Ring, 0, 360/stepDeg+1)
	for a := 0; a < 360; a += stepDeg {
		rad := float64(a) * math.Pi / 180
		ring = append(ring, Offset(center, radiusMeters, rad).Point())
	}
	ring = append(ring, ring[0])
	return ring
}

// DegreeCircle builds a closed ring of radius degrees around center in the
// engine's degree space, so its containment matches Distance. Geofences are
// drawn with it.
func DegreeCircle(center Coordinate, radius float64, stepDeg int) orb.Ring {
	if stepDeg <= 0 {
		stepDeg = 10
	}
	ring := make(orb.Ring, 0, 360/stepDeg+1)
	for a := 0; a < 360; a += stepDeg {
		ring = append(ring, Destination(center, float64(a)*math.Pi/180, radius).Point())
	}
	ring = append(ring, ring[0])
	return ring
}

// GeodesicMeters returns the great-circle distance in meters. Used for
// display values only; the engine itself works in degree space.
func GeodesicMeters(a, b Coordinate) float64 {
	return orbgeo.Distance(a.Point(), b.Point())
}
