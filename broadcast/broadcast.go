// Package broadcast fans session events out over pub/sub so every stream
// endpoint, on any node, can follow a session.
package broadcast

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
)

// AnnounceChannel carries server-wide announcements.
const AnnounceChannel = "announce"

// Channel is the pub/sub channel of one session.
func Channel(sessionID string) string {
	return "session:" + sessionID
}

// Publisher pushes envelopes to the session channels.
type Publisher struct {
	ps     cache.PubSub
	logger *zap.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(ps cache.PubSub, logger *zap.Logger) *Publisher {
	return &Publisher{ps: ps, logger: logger}
}

// Register subscribes the publisher to every session event.
func (p *Publisher) Register(hooks *hook.Center) {
	hooks.Register(hook.OnSessionEvent, 50, "broadcast", func(ctx context.Context, _ string, data any) (any, error) {
		if env, ok := data.(world.Envelope); ok {
			if err := p.Publish(ctx, env); err != nil {
				return data, err
			}
		}
		return data, nil
	})
}

// Publish encodes env as JSON and sends it to the session channel.
func (p *Publisher) Publish(ctx context.Context, env world.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.ps.Publish(ctx, Channel(env.SessionID), string(raw))
}

// Announce sends a message to every connected stream.
func (p *Publisher) Announce(ctx context.Context, message string) error {
	raw, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	return p.ps.Publish(ctx, AnnounceChannel, string(raw))
}

// EventType reads the type field of an encoded envelope. It returns
// "message" when the payload is not an envelope.
func EventType(payload string) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}
