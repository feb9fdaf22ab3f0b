package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// Packet is the WebSocket message envelope in both directions.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one WebSocket connection bound to a game session.
type Client struct {
	SessionID string
	Conn      *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}

	// Touched only by the read goroutine.
	TraceID string
	LastSeq uint64

	logger *zap.Logger
}

// NewClient wraps conn and starts its write goroutine.
func NewClient(sessionID string, conn *websocket.Conn, logger *zap.Logger) *Client {
	c := &Client{
		SessionID: sessionID,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		logger:    logger,
	}
	go c.writePump()
	return c
}

// writePump drains SendChan and pings the peer so dead connections are
// noticed within readDeadline.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Conn.Close()
	for {
		select {
		case data := <-c.SendChan:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error", zap.String("session_id", c.SessionID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.Done:
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes a packet of the given type and queues it.
func (c *Client) Send(msgType string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.logger.Warn("ws encode failed", zap.String("type", msgType), zap.Error(err))
			return
		}
		raw = b
	}
	data, err := json.Marshal(Packet{Type: msgType, Payload: raw})
	if err != nil {
		return
	}
	c.SendRaw(data)
}

// SendRaw queues data without blocking. Data is dropped when the buffer is
// full or the client is closed.
func (c *Client) SendRaw(data []byte) {
	if c.IsClosed() {
		return
	}
	select {
	case c.SendChan <- data:
	case <-c.Done:
	default:
		c.logger.Warn("send channel full, dropping packet", zap.String("session_id", c.SessionID))
	}
}

// Close signals the write goroutine to shut down.
func (c *Client) Close() {
	select {
	case <-c.Done:
	default:
		close(c.Done)
	}
}

// IsClosed reports whether Close was called.
func (c *Client) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline pushes the read deadline readDeadline into the future.
func (c *Client) SetReadDeadline() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
