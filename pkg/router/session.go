package router

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moonstream-to/moonlive/pkg/core"
	"github.com/moonstream-to/moonlive/pkg/transport"
)

// LiveSession binds one WebSocket connection to its component instance.
// Everything but the slot state is only touched by the connection's
// message loop.
type LiveSession struct {
	ID        string
	SocketID  string
	Topic     string
	Component core.Component
	Socket    *core.Socket
	Transport transport.Transport
	Params    core.Params
	Session   core.Session
	CreatedAt time.Time

	joinRef string
	mounted bool
	version uint64
	events  map[string]bool

	slotHashes map[string]uint64
	slotMu     sync.Mutex
}

func newLiveSession(socket *core.Socket, comp core.Component, tr transport.Transport, params core.Params, session core.Session) *LiveSession {
	return &LiveSession{
		ID:        uuid.NewString(),
		SocketID:  socket.ID(),
		Topic:     socket.Topic(),
		Component: comp,
		Socket:    socket,
		Transport: tr,
		Params:    params,
		Session:   session,
		CreatedAt: time.Now(),
		events:    declaredEvents(comp),
	}
}

func declaredEvents(comp core.Component) map[string]bool {
	lister, ok := comp.(EventLister)
	if !ok {
		return nil
	}
	events := make(map[string]bool)
	for _, e := range lister.Events() {
		events[e] = true
	}
	return events
}

// eventLabel is event if the component declares it, UnknownEvent otherwise.
// Client-chosen names never reach metric labels.
func (s *LiveSession) eventLabel(event string) string {
	if s.events[event] {
		return event
	}
	return UnknownEvent
}

// Mounted reports whether the component was mounted on this connection.
func (s *LiveSession) Mounted() bool {
	return s.mounted
}

// nextVersion numbers diffs so the client can drop stale ones.
func (s *LiveSession) nextVersion() uint64 {
	s.version++
	return s.version
}

// swapSlotHashes stores hashes and returns the previous set.
func (s *LiveSession) swapSlotHashes(hashes map[string]uint64) map[string]uint64 {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	prev := s.slotHashes
	s.slotHashes = hashes
	return prev
}

// SessionManager indexes live sessions by socket ID.
type SessionManager struct {
	sessions map[string]*LiveSession
	mu       sync.RWMutex
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*LiveSession)}
}

func (m *SessionManager) add(s *LiveSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SocketID] = s
}

func (m *SessionManager) remove(socketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, socketID)
}

// Get returns the session for a socket.
func (m *SessionManager) Get(socketID string) (*LiveSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[socketID]
	return s, ok
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IdleSince returns sessions whose socket saw no activity after t.
func (m *SessionManager) IdleSince(t time.Time) []*LiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var idle []*LiveSession
	for _, s := range m.sessions {
		if s.Socket.LastActivity().Before(t) {
			idle = append(idle, s)
		}
	}
	return idle
}
