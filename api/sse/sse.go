package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/broadcast"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	mw "github.com/ClementNoelRenard/Running-Map-Run-For-Life/middleware"
)

const keepaliveInterval = 30 * time.Second

// Handler streams session events as server-sent events for clients that
// only watch, such as a map view or a spectator page.
type Handler struct {
	pubsub    cache.PubSub
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, keepalive: keepaliveInterval, logger: logger}
}

// ServeSSE handles GET /api/sessions/:id/events. The route must sit behind
// SessionAuth. Each session event is written with its type as the SSE
// event name; announcements use "announce".
func (h *Handler) ServeSSE(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	subCtx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, broadcast.Channel(claims.SessionID), broadcast.AnnounceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"session_id\":%q}\n\n", claims.SessionID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			name := "announce"
			if msg.Channel != broadcast.AnnounceChannel {
				name = broadcast.EventType(msg.Payload)
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
