package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/broadcast"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	mw "github.com/ClementNoelRenard/Running-Map-Run-For-Life/middleware"
)

// Handler upgrades GET /api/sessions/:id/ws. The route must sit behind
// SessionAuth so the claims are present.
type Handler struct {
	mgr      *world.Manager
	pubsub   cache.PubSub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket Handler. sec.AllowedOrigins restricts the
// accepted origins; an empty list accepts any.
func NewHandler(mgr *world.Manager, ps cache.PubSub, sec config.SecurityConfig, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{mgr: mgr, pubsub: ps, router: router, logger: logger}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS streams session events to the client and feeds its packets to
// the router until either side hangs up.
func (h *Handler) ServeWS(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	room, err := h.mgr.Get(claims.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(claims.SessionID, conn, h.logger)

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, unsub, err := h.pubsub.Subscribe(subCtx, broadcast.Channel(claims.SessionID), broadcast.AnnounceChannel)
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.Error(err))
		client.Close()
		return
	}
	defer unsub()

	client.Send("snapshot", room.Snapshot())
	go h.forward(client, msgs)

	h.logger.Info("runner connected", zap.String("session_id", claims.SessionID))
	h.readPump(client)
	h.logger.Info("runner disconnected", zap.String("session_id", claims.SessionID))
}

// forward relays pub/sub messages until the client closes.
func (h *Handler) forward(c *Client, msgs <-chan *cache.Message) {
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			typ := "event"
			if m.Channel == broadcast.AnnounceChannel {
				typ = "announce"
			}
			data, err := json.Marshal(Packet{Type: typ, Payload: json.RawMessage(m.Payload)})
			if err != nil {
				continue
			}
			c.SendRaw(data)
		case <-c.Done:
			return
		}
	}
}

func (h *Handler) readPump(c *Client) {
	defer c.Close()

	c.SetReadDeadline()
	c.Conn.SetPongHandler(func(string) error {
		c.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("session_id", c.SessionID), zap.Error(err))
			}
			return
		}
		c.SetReadDeadline()
		h.router.Dispatch(c, raw)
	}
}
