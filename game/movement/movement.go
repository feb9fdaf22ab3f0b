// Package movement interpolates agent positions toward targets at a bounded
// per-tick speed.
package movement

import "github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"

// MoveToward advances pos toward target by exactly speed degrees. When the
// target is within reach it returns target itself, which keeps agents from
// oscillating around it.
func MoveToward(pos, target geo.Coordinate, speed float64) geo.Coordinate {
	dist := geo.Distance(pos, target)
	if dist <= speed {
		return target
	}
	ratio := speed / dist
	return geo.Coordinate{
		Lat: pos.Lat + (target.Lat-pos.Lat)*ratio,
		Lon: pos.Lon + (target.Lon-pos.Lon)*ratio,
	}
}

// Path is an externally computed route with a cursor on the next waypoint.
type Path struct {
	Points []geo.Coordinate
	Cursor int
}

// NewPath wraps points in a Path positioned on the first waypoint.
func NewPath(points []geo.Coordinate) *Path {
	return &Path{Points: points}
}

// Remaining reports whether waypoints are left to visit.
func (p *Path) Remaining() bool {
	return p != nil && p.Cursor < len(p.Points)
}

// Next returns the waypoint under the cursor.
func (p *Path) Next() (geo.Coordinate, bool) {
	if !p.Remaining() {
		return geo.Coordinate{}, false
	}
	return p.Points[p.Cursor], true
}

// Follow moves pos one tick along p, falling back to a straight line toward
// fallback once the path is nil or exhausted. The cursor advances when a
// waypoint is reached.
func Follow(pos geo.Coordinate, p *Path, fallback geo.Coordinate, speed float64) geo.Coordinate {
	wp, ok := p.Next()
	if !ok {
		return MoveToward(pos, fallback, speed)
	}
	next := MoveToward(pos, wp, speed)
	if next == wp {
		p.Cursor++
	}
	return next
}
