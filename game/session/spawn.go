package session

import (
	"math"
	"math/rand"
	"time"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/ai"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/zone"
)

// NewRNG returns the generator a session draws every random value from.
// A zero seed picks a time-based one.
func NewRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// samplePolar picks a point of the annulus [minR, maxR] around center with
// uniform area density. minR = 0 gives the full disc.
func samplePolar(rng *rand.Rand, center geo.Coordinate, minR, maxR float64) geo.Coordinate {
	angle := rng.Float64() * 2 * math.Pi
	dist := math.Sqrt(minR*minR + rng.Float64()*(maxR*maxR-minR*minR))
	return geo.Destination(center, angle, dist)
}

// Objective is a collectible target.
type Objective struct {
	ID        int            `json:"id"`
	Position  geo.Coordinate `json:"position"`
	Collected bool           `json:"collected"`
}

// Extraction is the exit point. It is placed once at spawn time and never
// moves; unlocking only flips Locked.
type Extraction struct {
	Position geo.Coordinate `json:"position"`
	Locked   bool           `json:"locked"`
}

// layout is everything placed at the start of a run.
type layout struct {
	objectives []*Objective
	agents     []*ai.Agent
	extraction *Extraction
	zones      []zone.SafeZone
}

// spawn places objectives, agents, the extraction and safe zones, always
// in that order so a seed reproduces the same layout.
func spawn(rng *rand.Rand, cfg Config, center geo.Coordinate) layout {
	playRadius := geo.MetersToDegrees(cfg.PlayRadiusMeters)

	var l layout
	l.objectives = make([]*Objective, 0, cfg.ObjectiveCount)
	for i := 1; i <= cfg.ObjectiveCount; i++ {
		l.objectives = append(l.objectives, &Objective{
			ID:       i,
			Position: samplePolar(rng, center, 0, playRadius),
		})
	}

	agentRadius := playRadius
	if cfg.AgentSpawnRadiusMeters > 0 {
		agentRadius = geo.MetersToDegrees(cfg.AgentSpawnRadiusMeters)
	}
	clearance := math.Min(geo.MetersToDegrees(cfg.SpawnClearanceMeters), agentRadius)
	l.agents = make([]*ai.Agent, 0, cfg.AgentCount)
	for i := 1; i <= cfg.AgentCount; i++ {
		pos := samplePolar(rng, center, clearance, agentRadius)
		l.agents = append(l.agents, ai.NewAgent(i, pos, rng))
	}

	minRatio := cfg.Tuning.ExtractionMinRatio
	angle := rng.Float64() * 2 * math.Pi
	ratio := minRatio + rng.Float64()*(1-minRatio)
	l.extraction = &Extraction{
		Position: geo.Destination(center, angle, playRadius*ratio),
		Locked:   true,
	}

	if cfg.SafeZoneCount > 0 && cfg.SafeZoneRadiusMeters > 0 {
		l.zones = zone.Generate(rng, center, playRadius,
			geo.MetersToDegrees(cfg.SafeZoneRadiusMeters), cfg.SafeZoneCount)
	}
	return l
}
