package movement

import (
	"testing"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveToward_SnapsWhenInReach(t *testing.T) {
	p := geo.Coordinate{Lat: 48.0, Lon: 2.0}
	target := geo.Coordinate{Lat: 48.000001, Lon: 2.000001}
	got := MoveToward(p, target, 0.00001)
	assert.Equal(t, target, got)

	// Exactly at the boundary also snaps.
	edge := geo.Destination(p, 1.0, 0.00002)
	assert.Equal(t, edge, MoveToward(p, edge, geo.Distance(p, edge)))
}

func TestMoveToward_AdvancesBySpeed(t *testing.T) {
	p := geo.Coordinate{Lat: 0, Lon: 0}
	target := geo.Coordinate{Lat: 0.003, Lon: 0.004}
	got := MoveToward(p, target, 0.001)
	assert.InDelta(t, 0.001, geo.Distance(p, got), 1e-12)
	assert.InDelta(t, 0.0006, got.Lat, 1e-12)
	assert.InDelta(t, 0.0008, got.Lon, 1e-12)
	assert.InDelta(t, 0.004, geo.Distance(got, target), 1e-12)
}

func TestMoveToward_SamePoint(t *testing.T) {
	p := geo.Coordinate{Lat: 1, Lon: 1}
	assert.Equal(t, p, MoveToward(p, p, 0.1))
}

func TestFollow_AdvancesCursor(t *testing.T) {
	start := geo.Coordinate{Lat: 0, Lon: 0}
	path := NewPath([]geo.Coordinate{
		{Lat: 0.001, Lon: 0},
		{Lat: 0.001, Lon: 0.001},
	})
	player := geo.Coordinate{Lat: 0.005, Lon: 0.005}

	pos := Follow(start, path, player, 0.0006)
	assert.Equal(t, 0, path.Cursor)
	pos = Follow(pos, path, player, 0.0006)
	require.Equal(t, 1, path.Cursor)
	assert.Equal(t, path.Points[0], pos)

	pos = Follow(pos, path, player, 0.0006)
	pos = Follow(pos, path, player, 0.0006)
	assert.Equal(t, path.Points[1], pos)
	assert.False(t, path.Remaining())

	// Exhausted: straight to the fallback target.
	next := Follow(pos, path, player, 0.0006)
	assert.InDelta(t, geo.Distance(pos, player)-0.0006, geo.Distance(next, player), 1e-12)
}

func TestFollow_NilPathIsStraightLine(t *testing.T) {
	pos := geo.Coordinate{Lat: 0, Lon: 0}
	target := geo.Coordinate{Lat: 0, Lon: 0.01}
	got := Follow(pos, nil, target, 0.001)
	assert.Equal(t, MoveToward(pos, target, 0.001), got)
}
