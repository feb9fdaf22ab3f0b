package local

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch     chan *LocalMessage
	closed bool
}

// LocalPubSub fans messages out to in-process subscribers. Slow
// subscribers lose messages instead of blocking the publisher.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string][]*subscription
	bufSize int
	dropped atomic.Int64
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subs:    make(map[string][]*subscription),
		bufSize: bufSize,
	}
}

// Publish sends message to every subscriber of channel without blocking.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.subs[channel] {
		select {
		case s.ch <- msg:
		default:
			ps.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many messages were discarded for full buffers.
func (ps *LocalPubSub) Dropped() int64 {
	return ps.dropped.Load()
}

// Subscribe returns one channel receiving the messages of all channels,
// and a cancel function that unsubscribes and closes it.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	sub := &subscription{ch: make(chan *LocalMessage, ps.bufSize)}

	ps.mu.Lock()
	for _, c := range channels {
		ps.subs[c] = append(ps.subs[c], sub)
	}
	ps.mu.Unlock()

	cancel := func() {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		for _, c := range channels {
			list := ps.subs[c]
			for j, s := range list {
				if s == sub {
					list = append(list[:j], list[j+1:]...)
					break
				}
			}
			if len(list) == 0 {
				delete(ps.subs, c)
			} else {
				ps.subs[c] = list
			}
		}
		close(sub.ch)
	}
	return sub.ch, cancel, nil
}
