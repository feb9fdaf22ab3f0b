package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	mw "github.com/ClementNoelRenard/Running-Map-Run-For-Life/middleware"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
)

const maxPlayerName = 32

// SessionHandler serves the lifecycle endpoints of a game session.
type SessionHandler struct {
	mgr    *world.Manager
	cache  cache.Cache
	game   config.GameConfig
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(mgr *world.Manager, c cache.Cache, game config.GameConfig, sec config.SecurityConfig, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{mgr: mgr, cache: c, game: game, sec: sec, logger: logger}
}

// Register revokes a session's token once its room is removed, whether by
// the player, an admin or the reaper.
func (h *SessionHandler) Register(hooks *hook.Center) {
	hooks.Register(hook.OnSessionRemoved, 0, "revoke_token", func(ctx context.Context, _ string, data any) (any, error) {
		if id, ok := data.(string); ok {
			return data, h.cache.Del(ctx, mw.TokenKey(id))
		}
		return data, nil
	})
}

// CreateRequest starts a run. Zero-valued overrides keep the server
// defaults.
type CreateRequest struct {
	Center      *geo.Coordinate    `json:"center" binding:"required"`
	PlayerName  string             `json:"player_name"`
	Difficulty  session.Difficulty `json:"difficulty"`
	Objectives  int                `json:"objectives"`
	Agents      *int               `json:"agents"`
	PlayRadiusM float64            `json:"play_radius_m"`
	Lives       int                `json:"lives"`
	Seed        int64              `json:"seed"`
}

// CreateResponse carries the player token for the new session.
type CreateResponse struct {
	SessionID string           `json:"session_id"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Session   session.Snapshot `json:"session"`
}

func (h *SessionHandler) buildConfig(req CreateRequest) (session.Config, string) {
	cfg := h.game.SessionDefaults()
	if req.Difficulty != "" {
		cfg.Difficulty = req.Difficulty
	}
	if req.Objectives != 0 {
		if req.Objectives > h.game.MaxObjectives {
			return cfg, "too many objectives"
		}
		cfg.ObjectiveCount = req.Objectives
	}
	if req.Agents != nil {
		if *req.Agents > h.game.MaxAgents {
			return cfg, "too many agents"
		}
		cfg.AgentCount = *req.Agents
	}
	if req.PlayRadiusM != 0 {
		if req.PlayRadiusM > h.game.MaxPlayRadiusM {
			return cfg, "play radius too large"
		}
		cfg.PlayRadiusMeters = req.PlayRadiusM
		if cfg.AgentSpawnRadiusMeters > req.PlayRadiusM {
			cfg.AgentSpawnRadiusMeters = req.PlayRadiusM
		}
	}
	if req.Lives != 0 {
		cfg.Lives = req.Lives
	}
	cfg.Seed = req.Seed
	return cfg, ""
}

// Create starts a new session and issues its player token.
// POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.PlayerName) > maxPlayerName {
		c.JSON(http.StatusBadRequest, gin.H{"error": "player name too long"})
		return
	}
	cfg, msg := h.buildConfig(req)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	room, err := h.mgr.Create(cfg, *req.Center, req.PlayerName)
	if err != nil {
		h.fail(c, err)
		return
	}

	token, err := mw.GenerateToken(room.ID, req.PlayerName, h.sec.JWTSecret, h.sec.TokenTTL)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		_ = h.mgr.Destroy(room.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	if err := h.cache.Set(c.Request.Context(), mw.TokenKey(room.ID), token, h.sec.TokenTTL); err != nil {
		h.logger.Error("token store failed", zap.Error(err))
		_ = h.mgr.Destroy(room.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token store failed"})
		return
	}

	c.JSON(http.StatusCreated, CreateResponse{
		SessionID: room.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(h.sec.TokenTTL),
		Session:   room.Snapshot(),
	})
}

func (h *SessionHandler) room(c *gin.Context) (*world.Room, bool) {
	room, err := h.mgr.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return room, true
}

// fail maps domain errors onto HTTP status codes.
func (h *SessionHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, world.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, session.ErrInvalidConfig), errors.Is(err, geo.ErrInvalidCoordinate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionFinished), errors.Is(err, world.ErrRoomStopped):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session busy"})
	default:
		h.logger.Error("session request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Get returns the session state.
// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, room.Snapshot())
}

// GeoJSON renders the session as a FeatureCollection for map clients.
// GET /api/sessions/:id/geojson
func (h *SessionHandler) GeoJSON(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, room.Snapshot().FeatureCollection())
}

// PositionRequest is one location sample from the device.
type PositionRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	SpeedKmh float64  `json:"speed_kmh"`
}

// Sample converts the request; a missing fix yields a nil position.
func (p PositionRequest) Sample() (session.Sample, error) {
	s := session.Sample{SpeedKmh: p.SpeedKmh}
	if p.Lat == nil || p.Lon == nil {
		return s, nil
	}
	pos, err := geo.NewCoordinate(*p.Lat, *p.Lon)
	if err != nil {
		return s, err
	}
	s.Position = &pos
	return s, nil
}

// Position submits a location sample. It is applied on the next tick.
// POST /api/sessions/:id/position
func (h *SessionHandler) Position(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sample, err := req.Sample()
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := room.Submit(sample); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

func (h *SessionHandler) control(c *gin.Context, op func(ctx context.Context, room *world.Room) error) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := op(ctx, room); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room.Snapshot())
}

// Pause freezes the session clock and agents.
// POST /api/sessions/:id/pause
func (h *SessionHandler) Pause(c *gin.Context) {
	h.control(c, func(ctx context.Context, room *world.Room) error { return room.Pause(ctx) })
}

// Resume continues a paused session.
// POST /api/sessions/:id/resume
func (h *SessionHandler) Resume(c *gin.Context) {
	h.control(c, func(ctx context.Context, room *world.Room) error { return room.Resume(ctx) })
}

// Abort ends the run without victory.
// POST /api/sessions/:id/abort
func (h *SessionHandler) Abort(c *gin.Context) {
	h.control(c, func(ctx context.Context, room *world.Room) error { return room.Abort(ctx) })
}

// Restart respawns the run, around a new center when one is given.
// POST /api/sessions/:id/restart
func (h *SessionHandler) Restart(c *gin.Context) {
	var req struct {
		Center *geo.Coordinate `json:"center"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	h.control(c, func(ctx context.Context, room *world.Room) error {
		center := room.Snapshot().Center
		if req.Center != nil {
			center = *req.Center
		}
		return room.Restart(ctx, center)
	})
}

// Delete stops the session and revokes its token.
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.mgr.Destroy(id); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.cache.Del(c.Request.Context(), mw.TokenKey(id)); err != nil {
		h.logger.Warn("token revoke failed", zap.String("session_id", id), zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}
