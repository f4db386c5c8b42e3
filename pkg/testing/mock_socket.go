package testing

import (
	"sync"

	"github.com/moonstream-to/moonlive/pkg/core"
)

// MockTransport implements core.Transport and records what a socket sends.
type MockTransport struct {
	sent      []core.Message
	closed    bool
	sendError error

	mu sync.Mutex
}

// NewMockTransport creates an open transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Send records msg, or fails with the error set by SetError.
func (mt *MockTransport) Send(msg core.Message) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.sendError != nil {
		return mt.sendError
	}
	if mt.closed {
		return core.ErrSocketClosed
	}
	mt.sent = append(mt.sent, msg)
	return nil
}

// Close marks the transport closed.
func (mt *MockTransport) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.closed = true
	return nil
}

// IsConnected reports whether Close has not been called.
func (mt *MockTransport) IsConnected() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return !mt.closed
}

// SetError makes every following Send fail with err. Nil clears it.
func (mt *MockTransport) SetError(err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.sendError = err
}

// Sent returns a copy of every recorded message.
func (mt *MockTransport) Sent() []core.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make([]core.Message, len(mt.sent))
	copy(out, mt.sent)
	return out
}

// Pushed returns the recorded messages with the given event.
func (mt *MockTransport) Pushed(event string) []core.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	var out []core.Message
	for _, msg := range mt.sent {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

// LastPushed returns the most recent message with the given event.
func (mt *MockTransport) LastPushed(event string) (core.Message, bool) {
	pushed := mt.Pushed(event)
	if len(pushed) == 0 {
		return core.Message{}, false
	}
	return pushed[len(pushed)-1], true
}

// Reset forgets recorded messages and reopens the transport.
func (mt *MockTransport) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.sent = nil
	mt.closed = false
	mt.sendError = nil
}
