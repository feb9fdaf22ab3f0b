package ai

import "github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"

// Radii groups the detection tunables. Distances are in degrees.
type Radii struct {
	Visual            float64 `mapstructure:"visual"`
	Hearing           float64 `mapstructure:"hearing"`
	PackAlert         float64 `mapstructure:"pack_alert"`
	NoiseThresholdKmh float64 `mapstructure:"noise_threshold_kmh"`
	DisengageFactor   float64 `mapstructure:"disengage_factor"`
	PackAlertEnabled  bool    `mapstructure:"pack_alert_enabled"`
}

// DefaultRadii returns the dual-radius model with pack alerting on.
func DefaultRadii() Radii {
	return Radii{
		Visual:            0.00020, // ~20 m
		Hearing:           0.00200, // ~200 m
		PackAlert:         0.00100,
		NoiseThresholdKmh: 5.0,
		DisengageFactor:   1.5,
		PackAlertEnabled:  true,
	}
}

// SingleRadius returns the degraded model: one detection radius, no
// acoustic range extension and no pack alerting.
func SingleRadius(radius float64) Radii {
	r := DefaultRadii()
	r.Visual = radius
	r.Hearing = radius
	r.PackAlertEnabled = false
	return r
}

// Engage is the widest radius at which a wandering agent can detect.
func (r Radii) Engage() float64 {
	return max(r.Visual, r.Hearing)
}

// Disengage is the distance beyond which a chasing agent gives up. It is
// always larger than Engage so the state does not flicker at the edge.
func (r Radii) Disengage() float64 {
	f := r.DisengageFactor
	if f <= 1 {
		f = 1.5
	}
	return r.Engage() * f
}

// Detection is the outcome of a single detection check.
type Detection int

const (
	NoChange Detection = iota
	StartChase
)

// Outcome lists the agent IDs whose state changed during Resolve.
type Outcome struct {
	Engaged    []int // detected the player directly
	Alerted    []int // joined through a pack alert
	Disengaged []int // lost the player
}

// Detector evaluates player detection and pack alerting.
type Detector struct {
	radii Radii
}

// NewDetector creates a Detector using r.
func NewDetector(r Radii) *Detector {
	return &Detector{radii: r}
}

// Radii returns the configured tunables.
func (d *Detector) Radii() Radii { return d.radii }

// Noisy reports whether a player at speedKmh is audible.
func (d *Detector) Noisy(speedKmh float64) bool {
	return speedKmh > d.radii.NoiseThresholdKmh
}

// Detect checks whether a wandering agent notices the player. Sight works at
// any speed; hearing only when the player is noisy.
func (d *Detector) Detect(a *Agent, player geo.Coordinate, speedKmh float64) Detection {
	if a.State != StateWandering {
		return NoChange
	}
	dist := geo.Distance(a.Pos, player)
	if dist < d.radii.Visual {
		return StartChase
	}
	if d.Noisy(speedKmh) && dist < d.radii.Hearing {
		return StartChase
	}
	return NoChange
}

// ShouldDisengage reports whether a chasing agent has lost the player.
func (d *Detector) ShouldDisengage(a *Agent, player geo.Coordinate) bool {
	return a.State == StateChasing && geo.Distance(a.Pos, player) > d.radii.Disengage()
}

// Resolve runs the detection pass for every agent, then one hop of pack
// alerting. The alerting set is fixed before any alert is applied, so an
// agent alerted this tick only spreads the alert on the next one, and the
// result does not depend on the order of agents.
func (d *Detector) Resolve(agents []*Agent, player geo.Coordinate, speedKmh float64) Outcome {
	var out Outcome
	for _, a := range agents {
		switch a.State {
		case StateWandering:
			if d.Detect(a, player, speedKmh) == StartChase {
				a.StartChase()
				out.Engaged = append(out.Engaged, a.ID)
			}
		case StateChasing:
			if d.ShouldDisengage(a, player) {
				a.StopChase()
				out.Disengaged = append(out.Disengaged, a.ID)
			}
		}
	}

	if !d.radii.PackAlertEnabled {
		return out
	}

	var hunters []*Agent
	for _, a := range agents {
		if a.IsChasing() {
			hunters = append(hunters, a)
		}
	}
	if len(hunters) == 0 {
		return out
	}

	var alerted []*Agent
	for _, other := range agents {
		if other.State != StateWandering {
			continue
		}
		for _, h := range hunters {
			if geo.Distance(h.Pos, other.Pos) < d.radii.PackAlert {
				alerted = append(alerted, other)
				break
			}
		}
	}
	for _, a := range alerted {
		a.StartChase()
		out.Alerted = append(out.Alerted, a.ID)
	}
	return out
}
