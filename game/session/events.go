package session

import (
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/ai"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
)

// Event is emitted by Session for the presentation layer to consume.
type Event interface {
	EventType() string
}

// Event type names.
const (
	TypeObjectiveCollected = "objective_collected"
	TypePlayerHit          = "player_hit"
	TypeExtractionUnlocked = "extraction_unlocked"
	TypeVictory            = "victory"
	TypeDefeat             = "defeat"
	TypeAborted            = "aborted"
	TypeTick               = "tick"
)

type ObjectiveCollected struct {
	Index     int `json:"index"`
	Remaining int `json:"remaining"`
}

func (ObjectiveCollected) EventType() string { return TypeObjectiveCollected }

type PlayerHit struct {
	AgentID        int `json:"agent_id"`
	LivesRemaining int `json:"lives_remaining"`
}

func (PlayerHit) EventType() string { return TypePlayerHit }

type ExtractionUnlocked struct {
	Position geo.Coordinate `json:"position"`
}

func (ExtractionUnlocked) EventType() string { return TypeExtractionUnlocked }

type Victory struct {
	ElapsedMs int64 `json:"elapsed_ms"`
	Score     int   `json:"score"`
}

func (Victory) EventType() string { return TypeVictory }

type Defeat struct {
	ElapsedMs int64 `json:"elapsed_ms"`
	Score     int   `json:"score"`
}

func (Defeat) EventType() string { return TypeDefeat }

// Aborted is emitted when the player stops the run.
type Aborted struct {
	ElapsedMs int64 `json:"elapsed_ms"`
	Score     int   `json:"score"`
}

func (Aborted) EventType() string { return TypeAborted }

// AgentView is the render-facing state of one agent.
type AgentView struct {
	ID       int            `json:"id"`
	Position geo.Coordinate `json:"position"`
	State    ai.State       `json:"state"`
}

// ObjectiveView is the render-facing state of one active objective.
type ObjectiveView struct {
	ID       int            `json:"id"`
	Position geo.Coordinate `json:"position"`
}

// Tick closes every processed tick with the state to render.
type Tick struct {
	Seq        uint64          `json:"seq"`
	ElapsedMs  int64           `json:"elapsed_ms"`
	Player     geo.Coordinate  `json:"player"`
	SpeedKmh   float64         `json:"speed_kmh"`
	Noisy      bool            `json:"noisy"`
	Agents     []AgentView     `json:"agents"`
	Objectives []ObjectiveView `json:"objectives"`
	Extraction Extraction      `json:"extraction"`
	PlayerSafe bool            `json:"player_safe"`
	InBounds   bool            `json:"in_bounds"`
	Score      int             `json:"score"`
	Total      int             `json:"total"`
	Lives      int             `json:"lives"`
}

func (Tick) EventType() string { return TypeTick }

// IsTerminal reports whether ev ends the session.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Victory, Defeat, Aborted:
		return true
	}
	return false
}
