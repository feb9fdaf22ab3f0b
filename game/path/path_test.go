package path

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	from = geo.Coordinate{Lat: 48.85, Lon: 2.29}
	to   = geo.Coordinate{Lat: 48.86, Lon: 2.30}
	t0   = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

// manualProvider parks callbacks until the test resolves them.
type manualProvider struct {
	mu    sync.Mutex
	calls map[int]Callback
	ctxs  map[int]context.Context
}

func newManual() *manualProvider {
	return &manualProvider{calls: map[int]Callback{}, ctxs: map[int]context.Context{}}
}

func (m *manualProvider) RequestPath(ctx context.Context, agentID int, _, _ geo.Coordinate, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[agentID] = cb
	m.ctxs[agentID] = ctx
}

func (m *manualProvider) resolve(agentID int, pts []geo.Coordinate, err error) {
	m.mu.Lock()
	cb := m.calls[agentID]
	delete(m.calls, agentID)
	m.mu.Unlock()
	cb(pts, err)
}

func TestStraight_DeliversTarget(t *testing.T) {
	d := NewDispatcher(nil, DispatcherConfig{}, zap.NewNop())
	require.True(t, d.Request(t0, 1, from, to))
	out := d.Drain()
	require.Len(t, out, 1)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, []geo.Coordinate{to}, out[0].Points)
	assert.Empty(t, d.Drain())
	assert.Zero(t, d.Pending())
}

func TestDispatcher_OneInFlightPerAgent(t *testing.T) {
	m := newManual()
	d := NewDispatcher(m, DispatcherConfig{}, zap.NewNop())
	assert.True(t, d.Request(t0, 1, from, to))
	assert.False(t, d.Request(t0.Add(time.Hour), 1, from, to))
	assert.True(t, d.Request(t0, 2, from, to))
	assert.Equal(t, 2, d.Pending())

	m.resolve(1, []geo.Coordinate{to}, nil)
	assert.True(t, d.Request(t0.Add(time.Hour), 1, from, to))
}

func TestDispatcher_GlobalIntervalSkips(t *testing.T) {
	d := NewDispatcher(Straight{}, DispatcherConfig{MinInterval: time.Second}, zap.NewNop())
	assert.True(t, d.Request(t0, 1, from, to))
	assert.False(t, d.Request(t0.Add(500*time.Millisecond), 2, from, to), "skipped, not queued")
	assert.True(t, d.Request(t0.Add(time.Second), 2, from, to))
	assert.Len(t, d.Drain(), 2)
}

func TestDispatcher_FailureIsDelivered(t *testing.T) {
	m := newManual()
	d := NewDispatcher(m, DispatcherConfig{}, zap.NewNop())
	boom := errors.New("boom")
	d.Request(t0, 1, from, to)
	m.resolve(1, nil, boom)
	out := d.Drain()
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, boom)
}

func TestDispatcher_ValidatesRoutes(t *testing.T) {
	m := newManual()
	d := NewDispatcher(m, DispatcherConfig{}, zap.NewNop())
	d.Request(t0, 1, from, to)
	d.Request(t0, 2, from, to)
	m.resolve(1, nil, nil)
	m.resolve(2, []geo.Coordinate{{Lat: math.NaN()}}, nil)
	out := d.Drain()
	require.Len(t, out, 2)
	assert.ErrorIs(t, out[0].Err, ErrEmptyRoute)
	assert.ErrorIs(t, out[1].Err, ErrMalformedRoute)
}

func TestDispatcher_ResetDropsStale(t *testing.T) {
	m := newManual()
	d := NewDispatcher(m, DispatcherConfig{}, zap.NewNop())
	d.Request(t0, 1, from, to)
	m.mu.Lock()
	ctx := m.ctxs[1]
	m.mu.Unlock()

	d.Reset()
	assert.Equal(t, uint64(1), d.Generation())
	assert.Error(t, ctx.Err(), "outstanding request is cancelled")

	m.resolve(1, []geo.Coordinate{to}, nil)
	assert.Empty(t, d.Drain())
	assert.True(t, d.Request(t0, 1, from, to), "agent slot freed by reset")
}

func TestDispatcher_AsyncDelivery(t *testing.T) {
	async := providerFunc(func(_ context.Context, _ int, _, dst geo.Coordinate, cb Callback) {
		go cb([]geo.Coordinate{dst}, nil)
	})
	d := NewDispatcher(async, DispatcherConfig{Timeout: time.Second}, zap.NewNop())
	for i := 0; i < 10; i++ {
		d.Request(t0, i, from, to)
	}
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	assert.Len(t, d.Drain(), 10)
}

func TestDispatcher_RetryDue(t *testing.T) {
	d := NewDispatcher(nil, DispatcherConfig{RetryInterval: 2 * time.Second}, zap.NewNop())
	assert.True(t, d.RetryDue(time.Time{}, t0))
	assert.False(t, d.RetryDue(t0, t0.Add(time.Second)))
	assert.True(t, d.RetryDue(t0, t0.Add(2*time.Second)))
}

type providerFunc func(ctx context.Context, agentID int, from, to geo.Coordinate, cb Callback)

func (f providerFunc) RequestPath(ctx context.Context, agentID int, from, to geo.Coordinate, cb Callback) {
	f(ctx, agentID, from, to, cb)
}
