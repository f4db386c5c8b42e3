package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Socket errors.
var (
	ErrSocketClosed   = errors.New("socket is closed")
	ErrSendFailed     = errors.New("failed to send message")
	ErrInfoQueueFull  = errors.New("info queue is full")
	ErrInvalidMessage = errors.New("invalid message format")
)

// DefaultInfoQueueSize bounds pending info messages per socket.
const DefaultInfoQueueSize = 32

// Transport is what a socket writes to. The router adapts the WebSocket
// transport to it; tests use a mock.
type Transport interface {
	Send(msg Message) error
	Close() error
	IsConnected() bool
}

// Message is a server-to-client message.
type Message struct {
	Ref     string         `json:"ref,omitempty"`
	Topic   string         `json:"topic"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Socket is the server side of one client connection.
type Socket struct {
	id        string
	connected bool

	// unix nanos, read without the lock
	lastActivity atomic.Int64

	assigns   *Assigns
	transport Transport

	info      chan any
	closeOnce sync.Once
	done      chan struct{}

	mu sync.RWMutex
}

// NewSocket creates a connected socket over transport.
func NewSocket(id string, transport Transport) *Socket {
	now := time.Now()
	s := &Socket{
		id:        id,
		connected: true,
		assigns:   NewAssigns(),
		transport: transport,
		info:      make(chan any, DefaultInfoQueueSize),
		done:      make(chan struct{}),
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// ID returns the socket identifier.
func (s *Socket) ID() string {
	return s.id
}

// Topic is the channel topic used for pushes to this socket.
func (s *Socket) Topic() string {
	return "lv:" + s.id
}

// IsConnected reports whether the socket and its transport are open.
func (s *Socket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.transport != nil && s.transport.IsConnected()
}

// LastActivity returns the time of the last send or client message.
func (s *Socket) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// UpdateActivity bumps the activity timestamp.
func (s *Socket) UpdateActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Assigns returns the socket's assigns store.
func (s *Socket) Assigns() *Assigns {
	return s.assigns
}

// Send writes a message through the transport.
func (s *Socket) Send(msg Message) error {
	s.mu.RLock()
	connected := s.connected
	transport := s.transport
	s.mu.RUnlock()

	if !connected || transport == nil || !transport.IsConnected() {
		return ErrSocketClosed
	}

	s.UpdateActivity()

	if err := transport.Send(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Push sends an event on the socket topic.
func (s *Socket) Push(event string, payload map[string]any) error {
	return s.Send(Message{
		Topic:   s.Topic(),
		Event:   event,
		Payload: payload,
	})
}

// DiffPayload is the update format sent to clients after a render.
// Text slots replace textContent, HTML slots replace innerHTML, and Full
// replaces the whole live container when the view has no slots.
type DiffPayload struct {
	Version   uint64            `json:"v"`
	Slots     map[string]string `json:"s,omitempty"`
	HTMLSlots map[string]string `json:"h,omitempty"`
	Full      string            `json:"f,omitempty"`
}

// IsEmpty reports whether the diff carries no change.
func (d *DiffPayload) IsEmpty() bool {
	return len(d.Slots) == 0 && len(d.HTMLSlots) == 0 && d.Full == ""
}

// Size returns the content size in bytes.
func (d *DiffPayload) Size() int {
	n := len(d.Full)
	for _, c := range d.Slots {
		n += len(c)
	}
	for _, c := range d.HTMLSlots {
		n += len(c)
	}
	return n
}

// SendDiff pushes a non-empty diff as a "diff" event.
func (s *Socket) SendDiff(d *DiffPayload) error {
	if d == nil || d.IsEmpty() {
		return nil
	}
	return s.Push("diff", map[string]any{
		"v": d.Version,
		"s": d.Slots,
		"h": d.HTMLSlots,
		"f": d.Full,
	})
}

// SendInfo queues msg for the component's HandleInfo. It never blocks;
// background work calls it from its own goroutine.
func (s *Socket) SendInfo(msg any) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}

	select {
	case s.info <- msg:
		return nil
	case <-s.done:
		return ErrSocketClosed
	default:
		return ErrInfoQueueFull
	}
}

// Info returns the queue of pending info messages.
func (s *Socket) Info() <-chan any {
	return s.info
}

// Done is closed when the socket closes.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Close marks the socket closed and closes the transport.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		transport := s.transport
		s.mu.Unlock()

		close(s.done)
		if transport != nil {
			err = transport.Close()
		}
	})
	return err
}

// SocketManager tracks live sockets.
type SocketManager struct {
	sockets map[string]*Socket
	mu      sync.RWMutex
}

// NewSocketManager creates an empty manager.
func NewSocketManager() *SocketManager {
	return &SocketManager{sockets: make(map[string]*Socket)}
}

// Add registers a socket.
func (sm *SocketManager) Add(s *Socket) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sockets[s.ID()] = s
}

// Remove unregisters a socket.
func (sm *SocketManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sockets, id)
}

// Get looks up a socket by ID.
func (sm *SocketManager) Get(id string) (*Socket, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sockets[id]
	return s, ok
}

// Count returns the number of live sockets.
func (sm *SocketManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sockets)
}

// CloseAll closes and forgets every socket.
func (sm *SocketManager) CloseAll() {
	sm.mu.Lock()
	sockets := sm.sockets
	sm.sockets = make(map[string]*Socket)
	sm.mu.Unlock()

	for _, s := range sockets {
		s.Close()
	}
}
