// Package hook lets independent sinks react to session events without the
// room knowing about them.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInterrupt stops the remaining handlers of a Trigger call.
var ErrInterrupt = errors.New("hook interrupted")

// Fn handles one triggered event. It returns the value passed to the next
// handler.
type Fn func(ctx context.Context, event string, data any) (any, error)

type entry struct {
	priority int
	name     string
	fn       Fn
}

// Center keeps the handlers registered per event name.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]entry
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{hooks: make(map[string][]entry)}
}

// Register adds fn for event. Lower priorities run first; equal priorities
// keep registration order.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.hooks[event] = entries
}

// Unregister removes the handlers called name from event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = without(c.hooks[event], name)
}

// UnregisterAll removes the handlers called name from every event.
func (c *Center) UnregisterAll(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for event, entries := range c.hooks {
		c.hooks[event] = without(entries, name)
	}
}

func without(entries []entry, name string) []entry {
	out := entries[:0]
	for _, e := range entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of handlers registered for event.
func (c *Center) Len(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[event])
}

// Trigger runs the handlers of event in priority order, threading data
// through them. A handler returning ErrInterrupt stops the chain. Other
// errors and panics are collected and returned once every handler ran.
func (c *Center) Trigger(ctx context.Context, event string, data any) (any, error) {
	c.mu.RLock()
	entries := append([]entry(nil), c.hooks[event]...)
	c.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		out, err := call(ctx, e, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", e.name, err))
			continue
		}
		data = out
	}
	return data, errors.Join(errs...)
}

func call(ctx context.Context, e entry, event string, data any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = data, fmt.Errorf("panic: %v", r)
		}
	}()
	return e.fn(ctx, event, data)
}

// Session lifecycle hooks. Individual session events are triggered under
// their own event type name as well as under OnSessionEvent.
const (
	OnSessionCreated  = "session_created"
	OnSessionEvent    = "session_event"
	OnSessionFinished = "session_finished"
	OnSessionRemoved  = "session_removed"
)
