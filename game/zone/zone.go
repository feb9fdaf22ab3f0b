// Package zone implements the geofences of a session: the play boundary and
// the safe zones in which agents stand still.
package zone

import (
	"math"
	"math/rand"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
)

// SafeZone is a circular sanctuary. Radius is in degrees.
type SafeZone struct {
	ID     int            `json:"id"`
	Center geo.Coordinate `json:"center"`
	Radius float64        `json:"radius"`
}

// Contains reports whether pos lies inside the zone.
func (z SafeZone) Contains(pos geo.Coordinate) bool {
	return geo.Distance(pos, z.Center) <= z.Radius
}

// InsideBoundary reports whether pos lies within radius degrees of center.
func InsideBoundary(pos, center geo.Coordinate, radius float64) bool {
	return geo.Distance(pos, center) <= radius
}

// InSafeZone returns the first zone containing pos.
func InSafeZone(pos geo.Coordinate, zones []SafeZone) (SafeZone, bool) {
	for _, z := range zones {
		if z.Contains(pos) {
			return z, true
		}
	}
	return SafeZone{}, false
}

// Generate places count safe zones of zoneRadius degrees at uniformly
// distributed points of the play circle, keeping each one fully inside it
// and clear of the start point.
func Generate(rng *rand.Rand, center geo.Coordinate, playRadius, zoneRadius float64, count int) []SafeZone {
	if count <= 0 || zoneRadius <= 0 || zoneRadius*2 >= playRadius {
		return nil
	}
	minDist := zoneRadius * 2
	maxDist := playRadius - zoneRadius
	zones := make([]SafeZone, 0, count)
	for i := 0; i < count; i++ {
		angle := rng.Float64() * 2 * math.Pi
		dist := math.Sqrt(minDist*minDist + rng.Float64()*(maxDist*maxDist-minDist*minDist))
		zones = append(zones, SafeZone{
			ID:     i + 1,
			Center: geo.Destination(center, angle, dist),
			Radius: zoneRadius,
		})
	}
	return zones
}
