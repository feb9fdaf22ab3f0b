package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/ai"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/zone"
)

func nop() *zap.Logger { return zap.NewNop() }

var center = geo.Coordinate{Lat: 48.8566, Lon: 2.3522}

func east(c geo.Coordinate, d float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat, Lon: c.Lon + d}
}
func north(c geo.Coordinate, d float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat + d, Lon: c.Lon}
}

func at(c geo.Coordinate) Sample { return Sample{Position: &c} }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.SafeZoneCount = 0
	return cfg
}

func newTestSession(t *testing.T, cfg Config, deps Deps) *Session {
	t.Helper()
	deps.Logger = nop()
	s, err := New(cfg, center, deps)
	require.NoError(t, err)
	return s
}

func types(evs []Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.EventType()
	}
	return out
}

// place moves an agent and anchors its wander area there.
func place(a *ai.Agent, pos geo.Coordinate) {
	a.Pos = pos
	a.Spawn = pos
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"no objectives":      func(c *Config) { c.ObjectiveCount = 0 },
		"zero radius":        func(c *Config) { c.PlayRadiusMeters = 0 },
		"negative agents":    func(c *Config) { c.AgentCount = -1 },
		"unknown difficulty": func(c *Config) { c.Difficulty = "nightmare" },
		"no lives":           func(c *Config) { c.Lives = 0 },
		"no tick period":     func(c *Config) { c.TickPeriod = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			s, err := New(cfg, center, Deps{Logger: nop()})
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestNew_InvalidCenter(t *testing.T) {
	_, err := New(testConfig(), geo.Coordinate{Lat: 120}, Deps{})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestDifficulty_ChaseSpeed(t *testing.T) {
	easy, ok := Easy.ChaseSpeed()
	require.True(t, ok)
	normal, _ := Normal.ChaseSpeed()
	hard, _ := Hard.ChaseSpeed()
	assert.Less(t, easy, normal)
	assert.Less(t, normal, hard)
	assert.InDelta(t, 2.5e-6, normal, 1e-12)

	_, ok = Difficulty("nightmare").ChaseSpeed()
	assert.False(t, ok)
}

func TestTick_VictoryScenario(t *testing.T) {
	cfg := testConfig()
	cfg.ObjectiveCount = 2
	cfg.AgentCount = 0
	s := newTestSession(t, cfg, Deps{})

	obj1 := east(center, 0.001)
	obj2 := north(center, 0.001)
	s.objectives[0].Position = obj1
	s.objectives[1].Position = obj2
	exit := s.Snapshot().Extraction
	require.True(t, exit.Locked)

	// A locked extraction does nothing.
	evs := s.Tick(at(exit.Position))
	assert.Equal(t, []string{TypeTick}, types(evs))

	evs = s.Tick(at(obj1))
	require.Equal(t, []string{TypeObjectiveCollected, TypeTick}, types(evs))
	assert.Equal(t, ObjectiveCollected{Index: 1, Remaining: 1}, evs[0])

	evs = s.Tick(at(obj2))
	require.Equal(t, []string{TypeObjectiveCollected, TypeExtractionUnlocked, TypeTick}, types(evs))
	assert.Equal(t, ObjectiveCollected{Index: 2, Remaining: 0}, evs[0])
	assert.Equal(t, ExtractionUnlocked{Position: exit.Position}, evs[1])

	tick := evs[2].(Tick)
	assert.Equal(t, 2, tick.Score)
	assert.Empty(t, tick.Objectives)
	assert.False(t, tick.Extraction.Locked)

	evs = s.Tick(at(exit.Position))
	require.Equal(t, []string{TypeVictory}, types(evs))
	assert.Equal(t, Victory{ElapsedMs: 400, Score: 2}, evs[0])
	assert.True(t, IsTerminal(evs[0]))
	assert.Equal(t, StatusFinished, s.Status())
	assert.Equal(t, OutcomeVictory, s.Outcome())

	assert.Nil(t, s.Tick(at(exit.Position)))
	assert.Equal(t, 400*time.Millisecond, s.Elapsed())
}

func TestTick_DefeatScenario(t *testing.T) {
	cfg := testConfig()
	cfg.AgentCount = 1
	cfg.Lives = 3
	s := newTestSession(t, cfg, Deps{})
	a := s.agents[0]

	var last []Event
	for i := 0; i < 3; i++ {
		// knockback pushes the agent away after every hit
		place(a, center)
		last = s.Tick(at(center))
		require.NotEmpty(t, last)
		hit, ok := last[0].(PlayerHit)
		require.True(t, ok, "tick %d: %v", i, types(last))
		assert.Equal(t, 2-i, hit.LivesRemaining)
		if i < 2 {
			assert.InDelta(t, cfg.Tuning.KnockbackDistance, geo.Distance(a.Pos, center), 1e-12)
		}
	}
	assert.Equal(t, []string{TypePlayerHit, TypeDefeat}, types(last))
	assert.Equal(t, OutcomeDefeat, s.Outcome())
	assert.Equal(t, 0, s.Lives())

	place(a, center)
	assert.Nil(t, s.Tick(at(center)))
	assert.Equal(t, 0, s.Lives())
}

func TestTick_WanderingAgentDoesNotHit(t *testing.T) {
	cfg := testConfig()
	cfg.AgentCount = 1
	cfg.Radii = ai.SingleRadius(0.00001)
	s := newTestSession(t, cfg, Deps{})
	a := s.agents[0]

	// inside hit radius but outside detection: stays wandering
	place(a, east(center, 0.00003))
	evs := s.Tick(at(center))
	assert.Equal(t, []string{TypeTick}, types(evs))
	assert.Equal(t, 3, s.Lives())
}

func TestTick_MissingPositionIsNoop(t *testing.T) {
	cfg := testConfig()
	s := newTestSession(t, cfg, Deps{})
	before := s.Snapshot()

	assert.Nil(t, s.Tick(Sample{}))
	bad := geo.Coordinate{Lat: 200}
	assert.Nil(t, s.Tick(Sample{Position: &bad}))

	after := s.Snapshot()
	assert.Equal(t, before.Agents, after.Agents)
	assert.Equal(t, before.Objectives, after.Objectives)
	assert.Equal(t, before.Lives, after.Lives)
	assert.Empty(t, after.Trail)
	assert.Equal(t, 2*cfg.TickPeriod, s.Elapsed())
}

func TestTick_SafeZoneFreezesAgents(t *testing.T) {
	cfg := testConfig()
	cfg.AgentCount = 1
	s := newTestSession(t, cfg, Deps{})
	s.zones = []zone.SafeZone{{ID: 1, Center: center, Radius: 0.0005}}
	s.objectives[0].Position = east(center, 0.0001)

	a := s.agents[0]
	place(a, center)
	evs := s.Tick(at(center))

	assert.Equal(t, []string{TypeObjectiveCollected, TypeTick}, types(evs))
	assert.Equal(t, center, a.Pos)
	assert.Equal(t, ai.StateWandering, a.State)
	assert.Equal(t, 3, s.Lives())
	assert.True(t, evs[len(evs)-1].(Tick).PlayerSafe)

	// leaving the zone brings the agent back to life
	out := east(center, 0.001)
	place(a, east(out, 0.0001))
	s.Tick(at(out))
	assert.Equal(t, ai.StateChasing, a.State)
}

func TestTick_ReportsBoundsAndNoise(t *testing.T) {
	cfg := testConfig()
	cfg.AgentCount = 0
	s := newTestSession(t, cfg, Deps{})

	evs := s.Tick(Sample{Position: &center, SpeedKmh: 9})
	tick := evs[len(evs)-1].(Tick)
	assert.True(t, tick.InBounds)
	assert.True(t, tick.Noisy)
	assert.Equal(t, 9.0, tick.SpeedKmh)

	far := east(center, 1)
	evs = s.Tick(Sample{Position: &far, SpeedKmh: 3})
	tick = evs[len(evs)-1].(Tick)
	assert.False(t, tick.InBounds)
	assert.False(t, tick.Noisy)
}

func TestTick_ScoreMonotonicAndExtractionFixed(t *testing.T) {
	cfg := testConfig()
	cfg.PlayRadiusMeters = 150
	cfg.ObjectiveCount = 6
	cfg.AgentCount = 5
	cfg.Lives = 1000
	s := newTestSession(t, cfg, Deps{})
	exit := s.Snapshot().Extraction.Position

	walk := rand.New(rand.NewSource(3))
	pos := center
	score := 0
	unlocked := 0
	for i := 0; i < 5000 && s.Status() == StatusRunning; i++ {
		pos = geo.Destination(pos, walk.Float64()*6.3, 0.00005)
		if geo.Distance(pos, center) > 0.0015 {
			pos = center
		}
		for _, ev := range s.Tick(at(pos)) {
			if _, ok := ev.(ExtractionUnlocked); ok {
				unlocked++
			}
		}
		snap := s.Snapshot()
		require.GreaterOrEqual(t, snap.Score, score)
		score = snap.Score
		assert.Equal(t, snap.Total, snap.Score+len(snap.Objectives))
		assert.Equal(t, exit, snap.Extraction.Position)
	}
	assert.LessOrEqual(t, unlocked, 1)
}

func TestPauseResumeAbort(t *testing.T) {
	cfg := testConfig()
	cfg.AgentCount = 0
	s := newTestSession(t, cfg, Deps{})

	s.Tick(at(center))
	require.NoError(t, s.Pause())
	assert.Equal(t, StatusPaused, s.Status())
	assert.Nil(t, s.Tick(at(center)))
	assert.Equal(t, cfg.TickPeriod, s.Elapsed())

	require.NoError(t, s.Resume())
	s.Tick(at(center))
	assert.Equal(t, 2*cfg.TickPeriod, s.Elapsed())

	ev, err := s.Abort()
	require.NoError(t, err)
	require.IsType(t, Aborted{}, ev)
	assert.Equal(t, int64(200), ev.(Aborted).ElapsedMs)
	assert.Equal(t, OutcomeAborted, s.Outcome())

	_, err = s.Abort()
	assert.ErrorIs(t, err, ErrSessionFinished)
	assert.ErrorIs(t, s.Pause(), ErrSessionFinished)
	assert.ErrorIs(t, s.Resume(), ErrSessionFinished)
}

func TestTrail(t *testing.T) {
	cfg := testConfig()
	cfg.AgentCount = 0
	s := newTestSession(t, cfg, Deps{})

	s.Tick(at(center))
	s.Tick(at(east(center, 0.000001)))
	assert.Len(t, s.Snapshot().Trail, 1)

	s.Tick(at(east(center, 0.00001)))
	assert.Len(t, s.Snapshot().Trail, 2)
}

func TestWander_StaysNearSpawn(t *testing.T) {
	cfg := testConfig()
	cfg.AgentCount = 1
	s := newTestSession(t, cfg, Deps{})
	a := s.agents[0]
	far := east(center, 0.05)

	for i := 0; i < 3000; i++ {
		s.Tick(at(far))
		require.Equal(t, ai.StateWandering, a.State)
		require.LessOrEqual(t, geo.Distance(a.Spawn, a.Pos), cfg.Tuning.WanderRadius+1e-9)
	}
}

// heldProvider keeps callbacks until the test releases them.
type heldProvider struct {
	mu    sync.Mutex
	calls []path.Callback
}

func (p *heldProvider) RequestPath(_ context.Context, _ int, _, _ geo.Coordinate, cb path.Callback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, cb)
}

func (p *heldProvider) take() path.Callback {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	cb := p.calls[0]
	p.calls = p.calls[1:]
	return cb
}

func routedSession(t *testing.T) (*Session, *heldProvider, *ai.Agent) {
	cfg := testConfig()
	cfg.AgentCount = 1
	p := &heldProvider{}
	s := newTestSession(t, cfg, Deps{Paths: p})
	a := s.agents[0]
	place(a, east(center, -0.0001))
	s.Tick(at(center))
	require.True(t, a.IsChasing())
	require.True(t, a.PathPending)
	return s, p, a
}

func TestRoute_AppliedOnNextTick(t *testing.T) {
	s, p, a := routedSession(t)
	cb := p.take()
	require.NotNil(t, cb)
	assert.Nil(t, p.take(), "one request in flight per agent")

	waypoint := north(a.Pos, 0.001)
	cb([]geo.Coordinate{waypoint}, nil)

	before := a.Pos
	s.Tick(at(center))
	assert.False(t, a.PathPending)
	require.NotNil(t, a.Path)
	assert.True(t, a.Path.Remaining())
	assert.Greater(t, a.Pos.Lat, before.Lat)
}

func TestRoute_FailureFallsBackToStraightLine(t *testing.T) {
	s, p, a := routedSession(t)
	cb := p.take()
	require.NotNil(t, cb)
	cb(nil, errors.New("router down"))

	before := geo.Distance(a.Pos, center)
	s.Tick(at(center))
	assert.Nil(t, a.Path)
	assert.Less(t, geo.Distance(a.Pos, center), before)
}

func TestRoute_StaleResultDroppedAfterRestart(t *testing.T) {
	s, p, _ := routedSession(t)
	cb := p.take()
	require.NotNil(t, cb)

	require.NoError(t, s.Restart(center))
	cb([]geo.Coordinate{north(center, 0.001)}, nil)

	s.Tick(at(center))
	for _, a := range s.agents {
		assert.Nil(t, a.Path)
	}
	assert.Equal(t, 0, s.Score())
	assert.Equal(t, StatusRunning, s.Status())
}

func TestRoute_DroppedForWanderingAgent(t *testing.T) {
	s, p, a := routedSession(t)
	cb := p.take()
	require.NotNil(t, cb)

	// player runs off; the agent gives up before the route arrives
	far := east(center, 0.05)
	s.Tick(at(far))
	require.False(t, a.IsChasing())

	cb([]geo.Coordinate{north(center, 0.001)}, nil)
	s.Tick(at(far))
	assert.Nil(t, a.Path)
	assert.False(t, a.PathPending)
}

func TestRoute_SilentOracleKeepsStraightPursuit(t *testing.T) {
	s, p, a := routedSession(t)
	require.NotNil(t, p.take())

	player := east(center, 0.002)
	last := geo.Distance(a.Pos, player)
	for i := 0; i < 200; i++ {
		s.Tick(at(player))
		require.True(t, a.IsChasing(), "tick %d", i)
		d := geo.Distance(a.Pos, player)
		assert.Less(t, d, last, "tick %d", i)
		last = d
		assert.InDelta(t, center.Lat, a.Pos.Lat, 1e-12, "tick %d", i)
		assert.True(t, a.PathPending, "tick %d", i)
		assert.Nil(t, a.Path)
	}
	assert.Nil(t, p.take(), "no second request while the first is unanswered")
}
