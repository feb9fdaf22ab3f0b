package session

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/ai"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/movement"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/zone"
)

// ErrSessionFinished is returned by control operations on a session that
// already reached victory, defeat or abort.
var ErrSessionFinished = errors.New("session: finished")

// Status is the lifecycle state of a session.
type Status int

const (
	StatusRunning Status = iota
	StatusPaused
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	}
	return "unknown"
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for _, st := range []Status{StatusRunning, StatusPaused, StatusFinished} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown status %q", b)
}

// Outcome tells how a finished session ended.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeAborted Outcome = "aborted"
)

// Sample is one reading from the location source. A nil Position means no
// fix was available this tick.
type Sample struct {
	Position *geo.Coordinate `json:"position"`
	SpeedKmh float64         `json:"speed_kmh"`
}

// Deps carries the collaborators of a session. Every field is optional.
type Deps struct {
	Logger *zap.Logger
	// Paths enables routed pursuit. Without it chasers head straight for
	// the player every tick.
	Paths    path.Provider
	Dispatch path.DispatcherConfig
	// RNG overrides the generator seeded from Config.Seed.
	RNG *rand.Rand
	// Epoch anchors the session clock. Session time is Epoch plus elapsed
	// ticks, never the wall clock.
	Epoch time.Time
}

// Session owns one run: spawned entities, score, lives and the tick
// algorithm. It is not safe for concurrent use; a single goroutine drives
// Tick and the control methods.
type Session struct {
	cfg        Config
	logger     *zap.Logger
	rng        *rand.Rand
	detector   *ai.Detector
	tree       *ai.BehaviorTree
	paths      *path.Dispatcher
	chaseSpeed float64
	epoch      time.Time

	center     geo.Coordinate
	playRadius float64

	agents     []*ai.Agent
	agentIndex map[int]*ai.Agent
	objectives []*Objective
	collected  []*Objective
	total      int
	extraction *Extraction
	zones      []zone.SafeZone

	score   int
	lives   int
	elapsed time.Duration
	seq     uint64
	status  Status
	outcome Outcome
	trail   []geo.Coordinate
	player  *geo.Coordinate
}

// New validates cfg and spawns a run centred on center.
func New(cfg Config, center geo.Coordinate, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !center.Valid() {
		return nil, geo.ErrInvalidCoordinate
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := deps.RNG
	if rng == nil {
		rng = NewRNG(cfg.Seed)
	}
	epoch := deps.Epoch
	if epoch.IsZero() {
		epoch = time.Unix(0, 0)
	}
	speed, _ := cfg.Difficulty.ChaseSpeed()

	s := &Session{
		cfg:        cfg,
		logger:     logger,
		rng:        rng,
		detector:   ai.NewDetector(cfg.Radii),
		chaseSpeed: speed,
		epoch:      epoch,
	}
	s.tree = ai.NewMovementTree(s.chase, s.wander)
	if deps.Paths != nil {
		s.paths = path.NewDispatcher(deps.Paths, deps.Dispatch, logger)
	}
	s.reset(center)
	return s, nil
}

func (s *Session) reset(center geo.Coordinate) {
	l := spawn(s.rng, s.cfg, center)
	s.center = center
	s.playRadius = geo.MetersToDegrees(s.cfg.PlayRadiusMeters)
	s.agents = l.agents
	s.agentIndex = make(map[int]*ai.Agent, len(l.agents))
	for _, a := range l.agents {
		s.agentIndex[a.ID] = a
	}
	s.objectives = l.objectives
	s.collected = nil
	s.total = len(l.objectives)
	s.extraction = l.extraction
	s.zones = l.zones
	s.score = 0
	s.lives = s.cfg.Lives
	s.elapsed = 0
	s.seq = 0
	s.status = StatusRunning
	s.outcome = OutcomeNone
	s.trail = nil
	s.player = nil
}

// Restart respawns the run around center. Route results requested before
// the restart are discarded when they arrive.
func (s *Session) Restart(center geo.Coordinate) error {
	if !center.Valid() {
		return geo.ErrInvalidCoordinate
	}
	if s.paths != nil {
		s.paths.Reset()
	}
	s.reset(center)
	s.logger.Info("session restarted", zap.Float64("lat", center.Lat), zap.Float64("lon", center.Lon))
	return nil
}

// Tick advances the simulation by one period and returns the events it
// produced, in order. Paused and finished sessions return nil.
func (s *Session) Tick(in Sample) []Event {
	if s.status != StatusRunning {
		return nil
	}
	s.elapsed += s.cfg.TickPeriod
	if in.Position == nil || !in.Position.Valid() {
		return nil
	}
	s.seq++
	player := *in.Position
	s.recordTrail(player)
	s.applyRoutes()

	_, safe := zone.InSafeZone(player, s.zones)
	var events []Event

	if !safe {
		s.detector.Resolve(s.agents, player, in.SpeedKmh)
		for _, a := range s.agents {
			s.tree.Tick(&ai.AIContext{Agent: a, Player: player, Tick: s.seq})
		}
		events = s.resolveHits(player, events)
		if s.status == StatusFinished {
			return events
		}
	}

	events = s.collectObjectives(player, events)

	if !s.extraction.Locked && s.score >= s.total &&
		geo.Distance(player, s.extraction.Position) <= s.cfg.Tuning.CollectRadius {
		s.finish(OutcomeVictory)
		return append(events, Victory{ElapsedMs: s.elapsed.Milliseconds(), Score: s.score})
	}

	return append(events, s.tickEvent(player, in.SpeedKmh, safe))
}

func (s *Session) now() time.Time {
	return s.epoch.Add(s.elapsed)
}

func (s *Session) recordTrail(pos geo.Coordinate) {
	s.player = &pos
	if n := len(s.trail); n > 0 && geo.Distance(s.trail[n-1], pos) <= s.cfg.Tuning.TrailMinStep {
		return
	}
	s.trail = append(s.trail, pos)
}

// applyRoutes installs route results delivered since the previous tick.
func (s *Session) applyRoutes() {
	if s.paths == nil {
		return
	}
	gen := s.paths.Generation()
	for _, dl := range s.paths.Drain() {
		if dl.Generation != gen {
			continue
		}
		a, ok := s.agentIndex[dl.AgentID]
		if !ok {
			continue
		}
		a.PathPending = false
		if dl.Err != nil {
			s.logger.Warn("route request failed, pursuing in a straight line",
				zap.Int("agent_id", dl.AgentID), zap.Error(dl.Err))
			a.Path = nil
			continue
		}
		if !a.IsChasing() {
			continue
		}
		a.Path = movement.NewPath(dl.Points)
	}
}

func (s *Session) chase(ctx *ai.AIContext) ai.Status {
	a := ctx.Agent
	if !a.Path.Remaining() {
		s.requestRoute(a, ctx.Player)
	}
	a.Pos = movement.Follow(a.Pos, a.Path, ctx.Player, s.chaseSpeed*a.SpeedFactor)
	return ai.StatusRunning
}

func (s *Session) requestRoute(a *ai.Agent, player geo.Coordinate) {
	if s.paths == nil || a.PathPending {
		return
	}
	now := s.now()
	if !s.paths.RetryDue(a.PathRequestedAt, now) {
		return
	}
	if s.paths.Request(now, a.ID, a.Pos, player) {
		a.PathPending = true
		a.PathRequestedAt = now
	}
}

func (s *Session) wander(ctx *ai.AIContext) ai.Status {
	a := ctx.Agent
	t := s.cfg.Tuning
	if a.WanderTarget == nil {
		target := geo.Destination(a.Spawn, s.rng.Float64()*2*math.Pi, s.rng.Float64()*t.WanderRadius)
		a.WanderTarget = &target
	}
	if geo.Distance(a.Pos, *a.WanderTarget) < t.WanderSpeed {
		// linger at the target half of the time
		if s.rng.Intn(2) == 0 {
			a.WanderTarget = nil
		}
		return ai.StatusSuccess
	}
	a.Pos = movement.MoveToward(a.Pos, *a.WanderTarget, t.WanderSpeed)
	return ai.StatusRunning
}

func (s *Session) resolveHits(player geo.Coordinate, events []Event) []Event {
	t := s.cfg.Tuning
	for _, a := range s.agents {
		if !a.IsChasing() || geo.Distance(a.Pos, player) > t.HitRadius {
			continue
		}
		s.lives--
		a.Pos = geo.Destination(a.Pos, s.rng.Float64()*2*math.Pi, t.KnockbackDistance)
		a.Path = nil
		events = append(events, PlayerHit{AgentID: a.ID, LivesRemaining: s.lives})
		if s.lives <= 0 {
			s.finish(OutcomeDefeat)
			return append(events, Defeat{ElapsedMs: s.elapsed.Milliseconds(), Score: s.score})
		}
	}
	return events
}

// collectObjectives gathers every objective in reach first and removes them
// afterwards, so the active set is never mutated while it is scanned.
func (s *Session) collectObjectives(player geo.Coordinate, events []Event) []Event {
	var hit []*Objective
	for _, o := range s.objectives {
		if geo.Distance(player, o.Position) <= s.cfg.Tuning.CollectRadius {
			hit = append(hit, o)
		}
	}
	if len(hit) == 0 {
		return events
	}
	remaining := make([]*Objective, 0, len(s.objectives)-len(hit))
	for _, o := range s.objectives {
		if !containsObjective(hit, o) {
			remaining = append(remaining, o)
		}
	}
	s.objectives = remaining

	for _, o := range hit {
		o.Collected = true
		s.collected = append(s.collected, o)
		s.score++
		events = append(events, ObjectiveCollected{Index: o.ID, Remaining: s.total - s.score})
	}
	if s.score >= s.total && s.extraction.Locked {
		s.extraction.Locked = false
		events = append(events, ExtractionUnlocked{Position: s.extraction.Position})
	}
	return events
}

func containsObjective(list []*Objective, o *Objective) bool {
	for _, x := range list {
		if x == o {
			return true
		}
	}
	return false
}

func (s *Session) finish(o Outcome) {
	s.status = StatusFinished
	s.outcome = o
	if s.paths != nil {
		s.paths.Close()
	}
	s.logger.Info("session finished",
		zap.String("outcome", string(o)),
		zap.Int("score", s.score),
		zap.Duration("elapsed", s.elapsed))
}

// Pause freezes the session. Time spent paused does not count as elapsed.
func (s *Session) Pause() error {
	if s.status == StatusFinished {
		return ErrSessionFinished
	}
	s.status = StatusPaused
	return nil
}

// Resume continues a paused session.
func (s *Session) Resume() error {
	if s.status == StatusFinished {
		return ErrSessionFinished
	}
	s.status = StatusRunning
	return nil
}

// Abort ends the run without victory.
func (s *Session) Abort() (Event, error) {
	if s.status == StatusFinished {
		return nil, ErrSessionFinished
	}
	s.finish(OutcomeAborted)
	return Aborted{ElapsedMs: s.elapsed.Milliseconds(), Score: s.score}, nil
}

func (s *Session) tickEvent(player geo.Coordinate, speedKmh float64, safe bool) Tick {
	return Tick{
		Seq:        s.seq,
		ElapsedMs:  s.elapsed.Milliseconds(),
		Player:     player,
		SpeedKmh:   speedKmh,
		Noisy:      s.detector.Noisy(speedKmh),
		Agents:     s.agentViews(),
		Objectives: s.objectiveViews(),
		Extraction: *s.extraction,
		PlayerSafe: safe,
		InBounds:   zone.InsideBoundary(player, s.center, s.playRadius),
		Score:      s.score,
		Total:      s.total,
		Lives:      s.lives,
	}
}

func (s *Session) agentViews() []AgentView {
	out := make([]AgentView, len(s.agents))
	for i, a := range s.agents {
		out[i] = AgentView{ID: a.ID, Position: a.Pos, State: a.State}
	}
	return out
}

func (s *Session) objectiveViews() []ObjectiveView {
	out := make([]ObjectiveView, len(s.objectives))
	for i, o := range s.objectives {
		out[i] = ObjectiveView{ID: o.ID, Position: o.Position}
	}
	return out
}

// Status returns the lifecycle state.
func (s *Session) Status() Status { return s.status }

// Outcome returns how the session ended, or OutcomeNone while it runs.
func (s *Session) Outcome() Outcome { return s.outcome }

// Score returns the number of collected objectives.
func (s *Session) Score() int { return s.score }

// Lives returns the remaining lives.
func (s *Session) Lives() int { return s.lives }

// Elapsed returns the running time, pauses excluded.
func (s *Session) Elapsed() time.Duration { return s.elapsed }

// Config returns the configuration the session was created with.
func (s *Session) Config() Config { return s.cfg }

// Snapshot is a copy of the session state for reporting.
type Snapshot struct {
	Status     Status           `json:"status"`
	Outcome    Outcome          `json:"outcome,omitempty"`
	Center     geo.Coordinate   `json:"center"`
	PlayRadius float64          `json:"play_radius"`
	Player     *geo.Coordinate  `json:"player,omitempty"`
	Agents     []AgentView      `json:"agents"`
	Objectives []ObjectiveView  `json:"objectives"`
	Collected  []ObjectiveView  `json:"collected"`
	Extraction Extraction       `json:"extraction"`
	SafeZones  []zone.SafeZone  `json:"safe_zones"`
	Trail      []geo.Coordinate `json:"trail"`
	Score      int              `json:"score"`
	Total      int              `json:"total"`
	Lives      int              `json:"lives"`
	ElapsedMs  int64            `json:"elapsed_ms"`
	Difficulty Difficulty       `json:"difficulty"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	collected := make([]ObjectiveView, len(s.collected))
	for i, o := range s.collected {
		collected[i] = ObjectiveView{ID: o.ID, Position: o.Position}
	}
	var player *geo.Coordinate
	if s.player != nil {
		p := *s.player
		player = &p
	}
	return Snapshot{
		Status:     s.status,
		Outcome:    s.outcome,
		Center:     s.center,
		PlayRadius: s.playRadius,
		Player:     player,
		Agents:     s.agentViews(),
		Objectives: s.objectiveViews(),
		Collected:  collected,
		Extraction: *s.extraction,
		SafeZones:  append([]zone.SafeZone(nil), s.zones...),
		Trail:      append([]geo.Coordinate(nil), s.trail...),
		Score:      s.score,
		Total:      s.total,
		Lives:      s.lives,
		ElapsedMs:  s.elapsed.Milliseconds(),
		Difficulty: s.cfg.Difficulty,
	}
}
