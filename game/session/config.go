package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/ai"
)

// ErrInvalidConfig is returned when a session cannot start with the given
// settings.
var ErrInvalidConfig = errors.New("session: invalid config")

// Difficulty selects the chase speed of agents.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Normal Difficulty = "normal"
	Hard   Difficulty = "hard"
)

// chaseSpeeds maps difficulty to the base chase speed, in degrees per tick.
var chaseSpeeds = map[Difficulty]float64{
	Easy:   0.0000010,
	Normal: 0.0000025,
	Hard:   0.0000055,
}

// ChaseSpeed returns the base chase speed for d.
func (d Difficulty) ChaseSpeed() (float64, bool) {
	v, ok := chaseSpeeds[d]
	return v, ok
}

// Tuning holds distances and speeds in degree space.
type Tuning struct {
	WanderSpeed        float64 `mapstructure:"wander_speed"`
	WanderRadius       float64 `mapstructure:"wander_radius"`
	HitRadius          float64 `mapstructure:"hit_radius"`
	CollectRadius      float64 `mapstructure:"collect_radius"`
	KnockbackDistance  float64 `mapstructure:"knockback_distance"`
	TrailMinStep       float64 `mapstructure:"trail_min_step"`
	ExtractionMinRatio float64 `mapstructure:"extraction_min_ratio"`
}

// DefaultTuning returns the stock values.
func DefaultTuning() Tuning {
	return Tuning{
		WanderSpeed:        0.0000008,
		WanderRadius:       0.0027,
		HitRadius:          0.00005,
		CollectRadius:      0.00015,
		KnockbackDistance:  0.0003,
		TrailMinStep:       0.000005,
		ExtractionMinRatio: 0.8,
	}
}

// Config is set once per session.
type Config struct {
	PlayRadiusMeters       float64
	ObjectiveCount         int
	AgentCount             int
	AgentSpawnRadiusMeters float64 // 0 means the play radius
	SpawnClearanceMeters   float64 // agents never spawn closer than this
	Difficulty             Difficulty
	Seed                   int64 // 0 picks a time-based seed
	Lives                  int
	TickPeriod             time.Duration
	SafeZoneCount          int
	SafeZoneRadiusMeters   float64
	Radii                  ai.Radii
	Tuning                 Tuning
}

// DefaultConfig returns a playable normal-difficulty configuration.
func DefaultConfig() Config {
	return Config{
		PlayRadiusMeters:     500,
		ObjectiveCount:       5,
		AgentCount:           30,
		SpawnClearanceMeters: 50,
		Difficulty:           Normal,
		Lives:                3,
		TickPeriod:           100 * time.Millisecond,
		SafeZoneCount:        2,
		SafeZoneRadiusMeters: 25,
		Radii:                ai.DefaultRadii(),
		Tuning:               DefaultTuning(),
	}
}

// Validate checks the configuration before a session starts.
func (c Config) Validate() error {
	switch {
	case c.ObjectiveCount <= 0:
		return fmt.Errorf("%w: objective count must be positive, got %d", ErrInvalidConfig, c.ObjectiveCount)
	case c.PlayRadiusMeters <= 0:
		return fmt.Errorf("%w: play radius must be positive, got %v", ErrInvalidConfig, c.PlayRadiusMeters)
	case c.AgentCount < 0:
		return fmt.Errorf("%w: agent count must not be negative, got %d", ErrInvalidConfig, c.AgentCount)
	case c.Lives <= 0:
		return fmt.Errorf("%w: lives must be positive, got %d", ErrInvalidConfig, c.Lives)
	case c.TickPeriod <= 0:
		return fmt.Errorf("%w: tick period must be positive, got %v", ErrInvalidConfig, c.TickPeriod)
	case c.SafeZoneCount < 0:
		return fmt.Errorf("%w: safe zone count must not be negative, got %d", ErrInvalidConfig, c.SafeZoneCount)
	}
	if _, ok := c.Difficulty.ChaseSpeed(); !ok {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidConfig, c.Difficulty)
	}
	return nil
}
