package session

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
)

// Halo radii drawn around targets, in meters. Halos are display-only and
// look round on the map; geofences are drawn in degree space.
const (
	ObjectiveHaloMeters  = 20
	ExtractionHaloMeters = 30
	haloStepDeg          = 10
)

// FeatureCollection renders the snapshot as GeoJSON. Every feature carries
// a "kind" property: boundary, safe_zone, trail, player, agent, objective,
// objective_halo, extraction or extraction_halo.
func (snap Snapshot) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	boundary := geojson.NewFeature(orb.Polygon{geo.DegreeCircle(snap.Center, snap.PlayRadius, haloStepDeg)})
	boundary.Properties["kind"] = "boundary"
	fc.Append(boundary)

	for _, z := range snap.SafeZones {
		f := geojson.NewFeature(orb.Polygon{geo.DegreeCircle(z.Center, z.Radius, haloStepDeg)})
		f.Properties["kind"] = "safe_zone"
		f.Properties["id"] = z.ID
		fc.Append(f)
	}

	if len(snap.Trail) > 1 {
		line := make(orb.LineString, len(snap.Trail))
		for i, p := range snap.Trail {
			line[i] = p.Point()
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "trail"
		fc.Append(f)
	}

	if snap.Player != nil {
		f := geojson.NewFeature(snap.Player.Point())
		f.Properties["kind"] = "player"
		f.Properties["lives"] = snap.Lives
		fc.Append(f)
	}

	for _, a := range snap.Agents {
		f := geojson.NewFeature(a.Position.Point())
		f.Properties["kind"] = "agent"
		f.Properties["id"] = a.ID
		f.Properties["state"] = a.State.String()
		fc.Append(f)
	}

	for _, o := range snap.Objectives {
		f := geojson.NewFeature(o.Position.Point())
		f.Properties["kind"] = "objective"
		f.Properties["id"] = o.ID
		fc.Append(f)

		halo := geojson.NewFeature(orb.Polygon{geo.Circle(o.Position, ObjectiveHaloMeters, haloStepDeg)})
		halo.Properties["kind"] = "objective_halo"
		halo.Properties["id"] = o.ID
		fc.Append(halo)
	}

	ex := geojson.NewFeature(snap.Extraction.Position.Point())
	ex.Properties["kind"] = "extraction"
	ex.Properties["locked"] = snap.Extraction.Locked
	fc.Append(ex)
	if !snap.Extraction.Locked {
		halo := geojson.NewFeature(orb.Polygon{geo.Circle(snap.Extraction.Position, ExtractionHaloMeters, haloStepDeg)})
		halo.Properties["kind"] = "extraction_halo"
		fc.Append(halo)
	}
	return fc
}
