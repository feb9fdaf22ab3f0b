package ai

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/movement"
)

// State enumerates the behavior states of an agent.
type State int

const (
	StateWandering State = iota // patrols around its spawn point
	StateChasing                // actively pursuing the player
)

func (s State) String() string {
	switch s {
	case StateWandering:
		return "wandering"
	case StateChasing:
		return "chasing"
	}
	return "unknown"
}

// MarshalText encodes the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "wandering":
		*s = StateWandering
	case "chasing":
		*s = StateChasing
	default:
		return fmt.Errorf("ai: unknown state %q", b)
	}
	return nil
}

// Speed personality bounds. Each agent draws its factor once.
const (
	MinSpeedFactor = 0.8
	MaxSpeedFactor = 1.3
)

// Agent is the runtime state of one zombie.
type Agent struct {
	ID           int
	Pos          geo.Coordinate
	Spawn        geo.Coordinate // wander anchor
	State        State
	SpeedFactor  float64
	WanderTarget *geo.Coordinate
	Path         *movement.Path

	PathRequestedAt time.Time
	PathPending     bool
}

// NewAgent creates a wandering agent at pos with a random speed factor.
func NewAgent(id int, pos geo.Coordinate, rng *rand.Rand) *Agent {
	return &Agent{
		ID:          id,
		Pos:         pos,
		Spawn:       pos,
		State:       StateWandering,
		SpeedFactor: MinSpeedFactor + rng.Float64()*(MaxSpeedFactor-MinSpeedFactor),
	}
}

// StartChase switches the agent to Chasing and drops its wander target.
func (a *Agent) StartChase() {
	a.State = StateChasing
	a.WanderTarget = nil
}

// StopChase returns the agent to Wandering. Any route is discarded; a
// request still in flight stays pending until its result arrives.
func (a *Agent) StopChase() {
	a.State = StateWandering
	a.WanderTarget = nil
	a.Path = nil
}

// IsChasing reports whether the agent is pursuing the player.
func (a *Agent) IsChasing() bool {
	return a.State == StateChasing
}
