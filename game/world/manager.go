package world

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("world: session not found")

// Manager owns every running Room.
type Manager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	hooks    *hook.Center
	routes   path.Provider
	dispatch path.DispatcherConfig
	logger   *zap.Logger
}

// NewManager creates a Manager. routes may be nil, in which case agents
// pursue the player in a straight line.
func NewManager(hooks *hook.Center, routes path.Provider, dispatch path.DispatcherConfig, logger *zap.Logger) *Manager {
	return &Manager{
		rooms:    make(map[string]*Room),
		hooks:    hooks,
		routes:   routes,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Create spawns a session around center and starts its room.
func (m *Manager) Create(cfg session.Config, center geo.Coordinate, playerName string) (*Room, error) {
	id := uuid.NewString()
	sess, err := session.New(cfg, center, session.Deps{
		Logger:   m.logger.With(zap.String("session_id", id)),
		Paths:    m.routes,
		Dispatch: m.dispatch,
		Epoch:    time.Now(),
	})
	if err != nil {
		return nil, err
	}
	room := newRoom(id, playerName, sess, m.hooks, m.logger)

	m.mu.Lock()
	m.rooms[id] = room
	m.mu.Unlock()

	go room.Run()
	room.trigger(context.Background(), hook.OnSessionCreated, room.Snapshot())
	m.logger.Info("session room created",
		zap.String("session_id", id),
		zap.String("difficulty", string(cfg.Difficulty)),
		zap.Int("agents", cfg.AgentCount),
		zap.Int("objectives", cfg.ObjectiveCount))
	return room, nil
}

// Get returns the room for id.
func (m *Manager) Get(id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return room, nil
}

// List returns the rooms ordered by creation time.
func (m *Manager) List() []*Room {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms
}

// ActiveRoomCount returns the number of rooms, finished or not.
func (m *Manager) ActiveRoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Destroy stops and removes the room for id.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	room, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	room.Stop()
	room.trigger(context.Background(), hook.OnSessionRemoved, id)
	m.logger.Info("session room destroyed", zap.String("session_id", id))
	return nil
}

// ReapFinished removes rooms that finished at least retain ago, and
// unfinished rooms created at least maxAge ago. A zero maxAge keeps
// unfinished rooms forever. It returns the number removed.
func (m *Manager) ReapFinished(now time.Time, retain, maxAge time.Duration) int {
	var ids []string
	m.mu.RLock()
	for id, r := range m.rooms {
		fin := r.FinishedAt()
		switch {
		case !fin.IsZero() && now.Sub(fin) >= retain:
			ids = append(ids, id)
		case fin.IsZero() && maxAge > 0 && now.Sub(r.CreatedAt) >= maxAge:
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	n := 0
	for _, id := range ids {
		if m.Destroy(id) == nil {
			n++
		}
	}
	return n
}

// StopAll stops every room (used at server shutdown).
func (m *Manager) StopAll() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
	}
}
