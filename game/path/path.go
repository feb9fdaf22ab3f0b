// Package path defines the route capability agents use to chase the player
// and the dispatcher that rate-limits requests and hands results back to the
// tick loop.
package path

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyRoute is delivered when a provider answers without points.
	ErrEmptyRoute = errors.New("path: empty route")
	// ErrMalformedRoute is delivered when a route contains invalid coordinates.
	ErrMalformedRoute = errors.New("path: malformed route")
)

// Callback receives the outcome of a route request.
type Callback func(points []geo.Coordinate, err error)

// Provider computes a route between two coordinates. Implementations may
// invoke cb synchronously or from another goroutine, at most once, and may
// never invoke it at all.
type Provider interface {
	RequestPath(ctx context.Context, agentID int, from, to geo.Coordinate, cb Callback)
}

// Straight is the always-available provider: the route is the direct segment.
type Straight struct{}

func (Straight) RequestPath(_ context.Context, _ int, _, to geo.Coordinate, cb Callback) {
	cb([]geo.Coordinate{to}, nil)
}

// Delivery is a route result waiting to be applied by the tick loop.
type Delivery struct {
	Generation uint64
	AgentID    int
	Points     []geo.Coordinate
	Err        error
}

// DispatcherConfig tunes request pacing.
type DispatcherConfig struct {
	MinInterval   time.Duration // global gap between two dispatches
	RetryInterval time.Duration // per-agent gap between two requests
	Timeout       time.Duration // deadline handed to the provider
}

// Dispatcher forwards route requests to a Provider. It allows one request
// in flight per agent and at most one dispatch per MinInterval across all
// agents; requests over budget are skipped. Results are queued and tagged
// with the generation they were issued in, so results that outlive a reset
// are dropped.
type Dispatcher struct {
	provider Provider
	limiter  *rate.Limiter
	cfg      DispatcherConfig
	logger   *zap.Logger

	mu         sync.Mutex
	generation uint64
	inflight   map[int]uint64
	inbox      []Delivery
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewDispatcher creates a Dispatcher around p. A nil provider falls back to
// Straight.
func NewDispatcher(p Provider, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if p == nil {
		p = Straight{}
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		provider: p,
		limiter:  rate.NewLimiter(limit, 1),
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[int]uint64),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Generation returns the current request generation.
func (d *Dispatcher) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

// RetryDue reports whether an agent that last asked at last may ask again.
func (d *Dispatcher) RetryDue(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= d.cfg.RetryInterval
}

// Request dispatches a route request for agentID unless the agent already
// has one in flight or the global interval has not elapsed. It returns true
// when the request was handed to the provider.
func (d *Dispatcher) Request(now time.Time, agentID int, from, to geo.Coordinate) bool {
	d.mu.Lock()
	if _, busy := d.inflight[agentID]; busy {
		d.mu.Unlock()
		return false
	}
	if !d.limiter.AllowN(now, 1) {
		d.mu.Unlock()
		return false
	}
	gen := d.generation
	d.inflight[agentID] = gen
	ctx := d.ctx
	d.mu.Unlock()

	cancel := context.CancelFunc(func() {})
	if d.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
	}
	d.provider.RequestPath(ctx, agentID, from, to, func(points []geo.Coordinate, err error) {
		cancel()
		d.deliver(Delivery{Generation: gen, AgentID: agentID, Points: points, Err: err})
	})
	return true
}

func (d *Dispatcher) deliver(dl Delivery) {
	if dl.Err == nil {
		dl.Err = validate(dl.Points)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen, ok := d.inflight[dl.AgentID]; ok && gen == dl.Generation {
		delete(d.inflight, dl.AgentID)
	}
	if dl.Generation != d.generation {
		d.logger.Debug("dropping stale route",
			zap.Int("agent_id", dl.AgentID),
			zap.Uint64("generation", dl.Generation))
		return
	}
	d.inbox = append(d.inbox, dl)
}

func validate(points []geo.Coordinate) error {
	if len(points) == 0 {
		return ErrEmptyRoute
	}
	for _, p := range points {
		if !p.Valid() {
			return ErrMalformedRoute
		}
	}
	return nil
}

// Drain returns and clears the queued deliveries of the current generation.
func (d *Dispatcher) Drain() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.inbox
	d.inbox = nil
	return out
}

// Pending returns the number of requests still in flight.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Reset starts a new generation: outstanding requests are cancelled and any
// result they still produce is discarded.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel()
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.generation++
	d.inflight = make(map[int]uint64)
	d.inbox = nil
}

// Close cancels outstanding requests and discards their results.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel()
	d.generation++
	d.inbox = nil
}
