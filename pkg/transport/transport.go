// Package transport moves protocol messages between a live socket and the
// browser. WebSocket is the only transport; the framing is picked per
// connection from the protocol codec registry.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/moonstream-to/moonlive/pkg/logging"
	"github.com/moonstream-to/moonlive/pkg/protocol"
)

// Transport errors.
var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timeout")
)

// Transport is a bidirectional message pipe to one client.
type Transport interface {
	// Send queues a message for the client.
	Send(msg *protocol.Message) error

	// Receive yields decoded client messages until the transport closes.
	Receive() <-chan *protocol.Message

	// Done is closed once the transport has shut down.
	Done() <-chan struct{}

	Close() error
	IsConnected() bool
}

// Config holds timeouts and buffer sizes shared by transports.
type Config struct {
	// ReadTimeout bounds the wait for the next client frame. Clients send
	// a heartbeat well inside it.
	ReadTimeout time.Duration

	WriteTimeout time.Duration

	// PingInterval is how often a WebSocket ping is sent.
	PingInterval time.Duration

	// MaxMessageSize caps an incoming frame in bytes.
	MaxMessageSize int64

	SendBufferSize    int
	ReceiveBufferSize int

	Logger logging.Logger
}

// DefaultConfig returns the settings used by the server.
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      25 * time.Second,
		MaxMessageSize:    64 * 1024,
		SendBufferSize:    64,
		ReceiveBufferSize: 64,
		Logger:            logging.NopLogger{},
	}
}

// base holds the channels and connection flag shared by transports.
type base struct {
	config    *Config
	connected bool
	sendCh    chan *protocol.Message
	recvCh    chan *protocol.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

func newBase(config *Config) *base {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.NopLogger{}
	}
	return &base{
		config:  config,
		sendCh:  make(chan *protocol.Message, config.SendBufferSize),
		recvCh:  make(chan *protocol.Message, config.ReceiveBufferSize),
		closeCh: make(chan struct{}),
	}
}

func (b *base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *base) setConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
}

func (b *base) Receive() <-chan *protocol.Message {
	return b.recvCh
}

func (b *base) Done() <-chan struct{} {
	return b.closeCh
}

// shutdown marks the transport closed. It reports whether this call did it.
func (b *base) shutdown() bool {
	first := false
	b.closeOnce.Do(func() {
		first = true
		b.setConnected(false)
		close(b.closeCh)
	})
	return first
}

// deliver hands a decoded client message to the reader, waiting while the
// receive buffer is full.
func (b *base) deliver(msg *protocol.Message) error {
	select {
	case b.recvCh <- msg:
		return nil
	case <-b.closeCh:
		return ErrConnectionClosed
	}
}

// enqueue queues an outgoing message, giving up after the write timeout.
func (b *base) enqueue(msg *protocol.Message) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}

	timer := time.NewTimer(b.config.WriteTimeout)
	defer timer.Stop()

	select {
	case b.sendCh <- msg:
		return nil
	case <-b.closeCh:
		return ErrConnectionClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}
