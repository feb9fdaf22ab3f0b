package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
)

const commandTimeout = 2 * time.Second

// SessionHandlers implements the in-game packets of a connected runner.
type SessionHandlers struct {
	mgr    *world.Manager
	logger *zap.Logger
}

// NewSessionHandlers creates SessionHandlers.
func NewSessionHandlers(mgr *world.Manager, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{mgr: mgr, logger: logger}
}

// RegisterHandlers wires the packet types into r.
func (h *SessionHandlers) RegisterHandlers(r *Router) {
	r.On("position", h.HandlePosition)
	r.On("pause", h.control(func(ctx context.Context, room *world.Room) error { return room.Pause(ctx) }))
	r.On("resume", h.control(func(ctx context.Context, room *world.Room) error { return room.Resume(ctx) }))
	r.On("abort", h.control(func(ctx context.Context, room *world.Room) error { return room.Abort(ctx) }))
	r.On("restart", h.HandleRestart)
	r.On("snapshot", h.HandleSnapshot)
	r.On("ping", h.HandlePing)
}

// positionPayload is a device fix. Lat/Lon are omitted when the device
// has no fix.
type positionPayload struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	SpeedKmh float64  `json:"speed_kmh"`
}

// HandlePosition queues a location sample for the next tick.
func (h *SessionHandlers) HandlePosition(_ context.Context, c *Client, payload json.RawMessage) error {
	var p positionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad position payload: %w", err)
	}
	sample := session.Sample{SpeedKmh: p.SpeedKmh}
	if p.Lat != nil && p.Lon != nil {
		pos, err := geo.NewCoordinate(*p.Lat, *p.Lon)
		if err != nil {
			return err
		}
		sample.Position = &pos
	}
	room, err := h.mgr.Get(c.SessionID)
	if err != nil {
		return err
	}
	return room.Submit(sample)
}

func (h *SessionHandlers) control(op func(ctx context.Context, room *world.Room) error) HandlerFunc {
	return func(ctx context.Context, c *Client, _ json.RawMessage) error {
		room, err := h.mgr.Get(c.SessionID)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if err := op(ctx, room); err != nil {
			return err
		}
		c.Send("snapshot", room.Snapshot())
		return nil
	}
}

// HandleRestart respawns the run, optionally around a new center.
func (h *SessionHandlers) HandleRestart(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req struct {
		Center *geo.Coordinate `json:"center"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("bad restart payload: %w", err)
		}
	}
	return h.control(func(ctx context.Context, room *world.Room) error {
		center := room.Snapshot().Center
		if req.Center != nil {
			center = *req.Center
		}
		return room.Restart(ctx, center)
	})(ctx, c, nil)
}

// HandleSnapshot sends the full state back to the client.
func (h *SessionHandlers) HandleSnapshot(_ context.Context, c *Client, _ json.RawMessage) error {
	room, err := h.mgr.Get(c.SessionID)
	if err != nil {
		return err
	}
	c.Send("snapshot", room.Snapshot())
	return nil
}

// HandlePing answers an application-level heartbeat.
func (h *SessionHandlers) HandlePing(_ context.Context, c *Client, payload json.RawMessage) error {
	var req struct {
		ClientTS int64 `json:"client_ts"`
	}
	_ = json.Unmarshal(payload, &req)
	c.Send("pong", map[string]int64{
		"client_ts": req.ClientTS,
		"server_ts": time.Now().UnixMilli(),
	})
	return nil
}
