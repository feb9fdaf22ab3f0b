package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded packet payload.
type HandlerFunc func(ctx context.Context, c *Client, payload json.RawMessage) error

// Router dispatches incoming packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers fn for msgType.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// ErrorPayload is sent back to the client when a handler fails.
type ErrorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Dispatch decodes raw, rejects replayed sequence numbers and runs the
// handler for the packet type. Handler errors are reported to the client.
func (r *Router) Dispatch(c *Client, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.String("session_id", c.SessionID), zap.Error(err))
		c.Send("error", ErrorPayload{Error: "malformed packet"})
		return
	}

	// Seq 0 disables ordering checks.
	if pkt.Seq != 0 && pkt.Seq <= c.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("session_id", c.SessionID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", c.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		c.LastSeq = pkt.Seq
	}

	c.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, c.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("session_id", c.SessionID))
		c.Send("error", ErrorPayload{Type: pkt.Type, Error: "unknown message type"})
		return
	}

	if err := fn(ctx, c, pkt.Payload); err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.String("session_id", c.SessionID),
			zap.String("trace_id", c.TraceID),
			zap.Error(err))
		c.Send("error", ErrorPayload{Type: pkt.Type, Error: err.Error()})
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
