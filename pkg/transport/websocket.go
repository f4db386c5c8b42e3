package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/moonstream-to/moonlive/pkg/logging"
	"github.com/moonstream-to/moonlive/pkg/protocol"
)

// WebSocket upgrade errors.
var (
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// CodecParam is the query parameter a client uses to pick a codec.
const CodecParam = "codec"

// WebSocketConfig holds the upgrade policy.
type WebSocketConfig struct {
	// AllowedOrigins lists origins besides the page's own that may open a
	// socket. "*" allows any origin.
	AllowedOrigins []string

	// InsecureDevMode skips origin checks entirely. Local development only.
	InsecureDevMode bool

	// Codecs resolves the codec named by the client. Nil means JSON only.
	Codecs *protocol.Registry
}

// DefaultWebSocketConfig allows same-origin sockets with the standard codecs.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{Codecs: protocol.NewRegistry()}
}

// WebSocketTransport is the server side of a WebSocket connection.
type WebSocketTransport struct {
	*base
	conn     *websocket.Conn
	codec    protocol.Codec
	wsConfig *WebSocketConfig
	log      logging.Logger
	mu       sync.Mutex
}

// NewWebSocketTransport creates an unconnected transport. Call Upgrade to
// accept a client.
func NewWebSocketTransport(config *Config, wsConfig *WebSocketConfig) *WebSocketTransport {
	if wsConfig == nil {
		wsConfig = DefaultWebSocketConfig()
	}
	b := newBase(config)
	return &WebSocketTransport{
		base:     b,
		codec:    protocol.NewJSONCodec(),
		wsConfig: wsConfig,
		log:      b.config.Logger.With(logging.Component("transport")),
	}
}

// Codec returns the codec negotiated on Upgrade.
func (t *WebSocketTransport) Codec() protocol.Codec {
	return t.codec
}

func (t *WebSocketTransport) isOriginAllowed(origin, requestHost string) bool {
	if t.wsConfig.InsecureDevMode {
		return true
	}

	// browsers omit Origin only on same-origin requests
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	if originURL.Host == requestHost {
		return true
	}

	for _, allowed := range t.wsConfig.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if u, err := url.Parse(allowed); err == nil && u.Host != "" && u.Host == originURL.Host {
			return true
		}
	}
	return false
}

func (t *WebSocketTransport) resolveCodec(r *http.Request) (protocol.Codec, error) {
	name := r.URL.Query().Get(CodecParam)
	if t.wsConfig.Codecs == nil {
		if name == "" || name == "json" {
			return protocol.NewJSONCodec(), nil
		}
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownCodec, name)
	}
	return t.wsConfig.Codecs.Lookup(name)
}

// Upgrade validates the origin and codec, accepts the WebSocket and starts
// the read, write and ping loops. On failure it has already written the
// HTTP error response.
func (t *WebSocketTransport) Upgrade(w http.ResponseWriter, r *http.Request) error {
	if !t.isOriginAllowed(r.Header.Get("Origin"), r.Host) {
		http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
		return ErrOriginNotAllowed
	}

	codec, err := t.resolveCodec(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// the origin was checked above against our own allow-list
		InsecureSkipVerify: true,
	})
	if err != nil {
		return fmt.Errorf("accept websocket: %w", err)
	}
	conn.SetReadLimit(t.config.MaxMessageSize)

	t.mu.Lock()
	t.conn = conn
	t.codec = codec
	t.mu.Unlock()
	t.setConnected(true)

	t.log.Debug("websocket accepted", logging.String("codec", codec.Name()))

	go t.readLoop()
	go t.writeLoop()
	go t.pingLoop()

	return nil
}

// Send queues msg for the write loop.
func (t *WebSocketTransport) Send(msg *protocol.Message) error {
	return t.enqueue(msg)
}

// Close shuts the loops down and closes the connection.
func (t *WebSocketTransport) Close() error {
	if !t.shutdown() {
		return nil
	}

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "closing")
}

func (t *WebSocketTransport) currentConn() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *WebSocketTransport) readLoop() {
	defer t.Close()

	for {
		conn := t.currentConn()
		if conn == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.config.ReadTimeout)
		_, data, err := conn.Read(ctx)
		cancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				t.log.Debug("websocket read ended", logging.Err(err))
			}
			return
		}

		msg, err := t.codec.Decode(data)
		if err != nil {
			t.log.Debug("dropping undecodable frame", logging.Err(err), logging.Int("bytes", len(data)))
			continue
		}

		if err := t.deliver(msg); err != nil {
			return
		}
	}
}

func (t *WebSocketTransport) writeLoop() {
	frame := websocket.MessageText
	if t.codec.Binary() {
		frame = websocket.MessageBinary
	}

	for {
		select {
		case msg := <-t.sendCh:
			conn := t.currentConn()
			if conn == nil {
				return
			}

			data, err := t.codec.Encode(msg)
			if err != nil {
				t.log.Warn("encode failed", logging.String("event", msg.Event), logging.Err(err))
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err = conn.Write(ctx, frame, data)
			cancel()

			if err != nil {
				t.log.Debug("websocket write failed", logging.Err(err))
				t.Close()
				return
			}

		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocketTransport) pingLoop() {
	if t.config.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn := t.currentConn()
			if conn == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				t.log.Debug("ping failed", logging.Err(err))
			}
		case <-t.closeCh:
			return
		}
	}
}
