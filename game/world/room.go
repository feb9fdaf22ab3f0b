package world

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
)

// ErrRoomStopped is returned when a command reaches a room whose loop has
// exited.
var ErrRoomStopped = errors.New("world: room stopped")

const inboxSize = 64

// Envelope wraps a session event for the hook sinks.
type Envelope struct {
	SessionID string        `json:"session_id"`
	Type      string        `json:"type"`
	Event     session.Event `json:"data"`
	At        time.Time     `json:"at"`
}

// Result summarises a finished session.
type Result struct {
	SessionID  string             `json:"session_id"`
	PlayerName string             `json:"player_name"`
	Outcome    session.Outcome    `json:"outcome"`
	Difficulty session.Difficulty `json:"difficulty"`
	Score      int                `json:"score"`
	Total      int                `json:"total"`
	Lives      int                `json:"lives"`
	ElapsedMs  int64              `json:"elapsed_ms"`
	FinishedAt time.Time          `json:"finished_at"`
}

type commandKind int

const (
	cmdSample commandKind = iota
	cmdPause
	cmdResume
	cmdAbort
	cmdRestart
)

type command struct {
	kind   commandKind
	sample session.Sample
	center geo.Coordinate
	reply  chan error
}

// Room drives one session on its own goroutine. Location samples and
// control commands arrive through the inbox; the session is never touched
// from any other goroutine.
type Room struct {
	ID         string
	PlayerName string
	CreatedAt  time.Time

	sess   *session.Session
	period time.Duration
	hooks  *hook.Center
	logger *zap.Logger

	inbox  chan command
	stopCh chan struct{}
	doneCh chan struct{}

	// latest sample; replayed every tick until a newer one arrives
	latest session.Sample

	mu         sync.RWMutex
	snapshot   session.Snapshot
	finishedAt time.Time
}

func newRoom(id, playerName string, sess *session.Session, hooks *hook.Center, logger *zap.Logger) *Room {
	r := &Room{
		ID:         id,
		PlayerName: playerName,
		CreatedAt:  time.Now(),
		sess:       sess,
		period:     sess.Config().TickPeriod,
		hooks:      hooks,
		logger:     logger.With(zap.String("session_id", id)),
		inbox:      make(chan command, inboxSize),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	r.snapshot = sess.Snapshot()
	return r
}

// Run executes the tick loop until Stop is called. Call in a goroutine.
func (r *Room) Run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.tick()
		case cmd := <-r.inbox:
			r.handle(cmd)
		case <-r.stopCh:
			return
		}
	}
}

// Stop signals the loop to exit.
func (r *Room) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

// Done is closed once the loop has exited.
func (r *Room) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Room) tick() {
	if r.sess.Status() != session.StatusRunning {
		return
	}
	r.publish(r.sess.Tick(r.latest))
}

func (r *Room) handle(cmd command) {
	var err error
	switch cmd.kind {
	case cmdSample:
		r.latest = cmd.sample
	case cmdPause:
		err = r.sess.Pause()
	case cmdResume:
		err = r.sess.Resume()
	case cmdAbort:
		var ev session.Event
		if ev, err = r.sess.Abort(); err == nil {
			r.publish([]session.Event{ev})
		}
	case cmdRestart:
		r.latest = session.Sample{}
		if err = r.sess.Restart(cmd.center); err == nil {
			r.mu.Lock()
			r.finishedAt = time.Time{}
			r.mu.Unlock()
		}
	}
	r.refresh()
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

// publish hands events to the hook sinks in emission order and records the
// result once a terminal event shows up.
func (r *Room) publish(events []session.Event) {
	r.refresh()
	if len(events) == 0 {
		return
	}
	ctx := context.Background()
	now := time.Now()
	for _, ev := range events {
		env := Envelope{SessionID: r.ID, Type: ev.EventType(), Event: ev, At: now}
		r.trigger(ctx, env.Type, env)
		r.trigger(ctx, hook.OnSessionEvent, env)
		if session.IsTerminal(ev) {
			r.mu.Lock()
			r.finishedAt = now
			r.mu.Unlock()
			r.trigger(ctx, hook.OnSessionFinished, r.result(now))
			r.logger.Info("session ended", zap.String("outcome", string(r.sess.Outcome())))
		}
	}
}

func (r *Room) trigger(ctx context.Context, event string, data any) {
	if r.hooks == nil {
		return
	}
	if _, err := r.hooks.Trigger(ctx, event, data); err != nil && !errors.Is(err, hook.ErrInterrupt) {
		r.logger.Warn("hook failed", zap.String("event", event), zap.Error(err))
	}
}

func (r *Room) result(at time.Time) Result {
	return Result{
		SessionID:  r.ID,
		PlayerName: r.PlayerName,
		Outcome:    r.sess.Outcome(),
		Difficulty: r.sess.Config().Difficulty,
		Score:      r.sess.Score(),
		Total:      r.sess.Config().ObjectiveCount,
		Lives:      r.sess.Lives(),
		ElapsedMs:  r.sess.Elapsed().Milliseconds(),
		FinishedAt: at,
	}
}

func (r *Room) refresh() {
	snap := r.sess.Snapshot()
	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()
}

// Snapshot returns the state as of the last processed tick or command.
func (r *Room) Snapshot() session.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// FinishedAt returns when the session ended, or the zero time.
func (r *Room) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

// Submit queues a location sample without waiting for the loop.
func (r *Room) Submit(s session.Sample) error {
	select {
	case <-r.stopCh:
		return ErrRoomStopped
	default:
	}
	select {
	case r.inbox <- command{kind: cmdSample, sample: s}:
		return nil
	case <-r.stopCh:
		return ErrRoomStopped
	}
}

// Pause freezes the session.
func (r *Room) Pause(ctx context.Context) error {
	return r.send(ctx, command{kind: cmdPause})
}

// Resume continues a paused session.
func (r *Room) Resume(ctx context.Context) error {
	return r.send(ctx, command{kind: cmdResume})
}

// Abort ends the session without victory.
func (r *Room) Abort(ctx context.Context) error {
	return r.send(ctx, command{kind: cmdAbort})
}

// Restart respawns the session around center.
func (r *Room) Restart(ctx context.Context, center geo.Coordinate) error {
	return r.send(ctx, command{kind: cmdRestart, center: center})
}

func (r *Room) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case r.inbox <- cmd:
	case <-r.stopCh:
		return ErrRoomStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-r.doneCh:
		return ErrRoomStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
