package tiles

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/camdash/camdash/internal/eventbus"
)

// Manager owns every live tile session. Invariants: at most one session per
// tile slot, at most one expanded session system-wide, and no two
// generations of sessions coexist across a view change.
type Manager struct {
	factory TransportFactory
	bus     *eventbus.Bus

	mu         sync.Mutex
	sessions   map[string]*Session
	expanded   *Session
	generation uint64
}

// NewManager builds an empty manager using the given transport factory.
func NewManager(factory TransportFactory) *Manager {
	return &Manager{
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// UseEventBus attaches the bus health transitions are published to.
func (m *Manager) UseEventBus(bus *eventbus.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
}

// SlotID names the session slot for a tile position.
func SlotID(index int) string {
	return fmt.Sprintf("slot-%d", index)
}

// OpenTile starts a session for a tile slot, replacing any session already
// occupying it. inline selects continuous playback over periodic stills.
func (m *Manager) OpenTile(ctx context.Context, tileID, source string, inline bool) (*Session, error) {
	if source == "" {
		return nil, fmt.Errorf("tiles: open %s: empty source", tileID)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[tileID]; ok {
		existing.Close()
	}
	session := newSession(tileID, source, inline, m.factory(source, inline), m.bus, m.generation)
	m.sessions[tileID] = session
	m.mu.Unlock()

	session.start(ctx)
	return session, nil
}

// CloseTile tears down the session in a slot, if any.
func (m *Manager) CloseTile(tileID string) {
	m.mu.Lock()
	session, ok := m.sessions[tileID]
	if ok {
		delete(m.sessions, tileID)
	}
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}

// Expand opens the single system-wide expanded session for a source,
// collapsing any previous one first.
func (m *Manager) Expand(ctx context.Context, source string) (*Session, error) {
	if source == "" {
		return nil, fmt.Errorf("tiles: expand: empty source")
	}

	m.mu.Lock()
	if m.expanded != nil {
		m.expanded.Close()
		m.expanded = nil
	}
	session := newSession("expanded", source, true, m.factory(source, true), m.bus, m.generation)
	m.expanded = session
	m.mu.Unlock()

	session.start(ctx)
	return session, nil
}

// CollapseExpanded tears down the expanded session, if any.
func (m *Manager) CollapseExpanded() {
	m.mu.Lock()
	session := m.expanded
	m.expanded = nil
	m.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

// Expanded returns the current expanded session, or nil.
func (m *Manager) Expanded() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expanded
}

// CloseAll tears down every session, expanded included, and bumps the
// generation so stragglers from the old view are identifiable.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	closing := make([]*Session, 0, len(m.sessions)+1)
	for id, session := range m.sessions {
		closing = append(closing, session)
		delete(m.sessions, id)
	}
	if m.expanded != nil {
		closing = append(closing, m.expanded)
		m.expanded = nil
	}
	m.generation++
	m.mu.Unlock()

	for _, session := range closing {
		session.Close()
	}
	if len(closing) > 0 {
		log.Printf("[Tiles] closed %d session(s)", len(closing))
	}
}

// Generation returns the current session generation.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Session returns the session in a slot, or nil.
func (m *Manager) Session(tileID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[tileID]
}

// Statuses snapshots the health of every slot session.
func (m *Manager) Statuses() map[string]eventbus.TileStatus {
	m.mu.Lock()
	sessions := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		sessions[id] = s
	}
	m.mu.Unlock()

	statuses := make(map[string]eventbus.TileStatus, len(sessions))
	for id, s := range sessions {
		status, _ := s.Status()
		statuses[id] = status
	}
	return statuses
}
