package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/broadcast"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/ranking"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/scheduler"
)

// AdminHandler handles operator endpoints. Routes should be protected by
// the IP whitelist middleware.
type AdminHandler struct {
	mgr    *world.Manager
	board  *ranking.Board
	pub    *broadcast.Publisher
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	mgr *world.Manager,
	board *ranking.Board,
	pub *broadcast.Publisher,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{mgr: mgr, board: board, pub: pub, sched: sched, logger: logger}
}

// Metrics returns server health figures.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	running := 0
	for _, r := range h.mgr.List() {
		if r.FinishedAt().IsZero() {
			running++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"rooms":         h.mgr.ActiveRoomCount(),
		"running_rooms": running,
	})
}

type roomInfo struct {
	SessionID  string    `json:"session_id"`
	PlayerName string    `json:"player_name"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
	Outcome    string    `json:"outcome,omitempty"`
	Difficulty string    `json:"difficulty"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Lives      int       `json:"lives"`
	ElapsedMs  int64     `json:"elapsed_ms"`
}

// ListSessions returns a summary of every room.
// GET /api/admin/sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	rooms := h.mgr.List()
	out := make([]roomInfo, 0, len(rooms))
	for _, r := range rooms {
		snap := r.Snapshot()
		out = append(out, roomInfo{
			SessionID:  r.ID,
			PlayerName: r.PlayerName,
			CreatedAt:  r.CreatedAt,
			Status:     snap.Status.String(),
			Outcome:    string(snap.Outcome),
			Difficulty: string(snap.Difficulty),
			Score:      snap.Score,
			Total:      snap.Total,
			Lives:      snap.Lives,
			ElapsedMs:  snap.ElapsedMs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

// KillSession removes a room regardless of its state.
// DELETE /api/admin/sessions/:id
func (h *AdminHandler) KillSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.mgr.Destroy(id); err != nil {
		if errors.Is(err, world.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("admin removed session", zap.String("session_id", id))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RebuildRanking reloads the leaderboards from the database.
// POST /api/admin/ranking/rebuild
func (h *AdminHandler) RebuildRanking(c *gin.Context) {
	n, err := h.board.Rebuild(c.Request.Context())
	if err != nil {
		h.logger.Error("ranking rebuild failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rebuild failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": n})
}

// Announce pushes a message to every connected stream.
// POST /api/admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message required"})
		return
	}
	if err := h.pub.Announce(c.Request.Context(), req.Message); err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "announce failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns the periodic maintenance tasks and their
// last outcome.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunSchedulerTask triggers a maintenance task immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	err := h.sched.RunNow(c.Request.Context(), c.Param("name"))
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
