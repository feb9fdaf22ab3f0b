package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/ranking"
)

// RankingHandler handles leaderboard REST endpoints.
type RankingHandler struct {
	board  *ranking.Board
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(board *ranking.Board, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{board: board, logger: logger}
}

func limitParam(c *gin.Context) int {
	l, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return l
}

// Fastest lists the quickest victories for a difficulty.
// GET /api/ranking/fastest?difficulty=normal&limit=20
func (h *RankingHandler) Fastest(c *gin.Context) {
	d := session.Difficulty(c.DefaultQuery("difficulty", string(session.Normal)))
	if _, ok := d.ChaseSpeed(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown difficulty"})
		return
	}
	entries, err := h.board.Fastest(c.Request.Context(), d, limitParam(c))
	if err != nil {
		h.logger.Error("ranking query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ranking unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"difficulty": d, "ranking": entries})
}

// Recent lists the latest finished runs of any outcome.
// GET /api/ranking/recent?limit=20
func (h *RankingHandler) Recent(c *gin.Context) {
	entries, err := h.board.Recent(c.Request.Context(), limitParam(c))
	if err != nil {
		h.logger.Error("ranking query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ranking unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": entries})
}
