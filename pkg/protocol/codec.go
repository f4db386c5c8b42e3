package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec errors.
var (
	ErrInvalidMessage = errors.New("invalid message format")
	ErrUnknownCodec   = errors.New("unknown codec")
)

// Codec turns messages into frames and back.
type Codec interface {
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
	Name() string
	// Binary reports whether frames must be sent as binary WebSocket messages.
	Binary() bool
}

// JSONCodec encodes messages as JSON objects. The browser client uses it.
type JSONCodec struct{}

func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

func (c *JSONCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *JSONCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Event == "" {
		return nil, ErrInvalidMessage
	}
	msg.Type = TypeOf(msg.Event)
	return &msg, nil
}

func (c *JSONCodec) Name() string { return "json" }
func (c *JSONCodec) Binary() bool { return false }

// MsgPackCodec encodes messages with MessagePack.
type MsgPackCodec struct{}

func NewMsgPackCodec() *MsgPackCodec { return &MsgPackCodec{} }

func (c *MsgPackCodec) Encode(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (c *MsgPackCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Event == "" {
		return nil, ErrInvalidMessage
	}
	msg.Type = TypeOf(msg.Event)
	return &msg, nil
}

func (c *MsgPackCodec) Name() string { return "msgpack" }
func (c *MsgPackCodec) Binary() bool { return true }

// PhoenixCodec speaks the Phoenix tuple format:
// [join_ref, ref, topic, event, payload].
type PhoenixCodec struct{}

func NewPhoenixCodec() *PhoenixCodec { return &PhoenixCodec{} }

func (c *PhoenixCodec) Encode(msg *Message) ([]byte, error) {
	var joinRef, ref any
	if msg.JoinRef != "" {
		joinRef = msg.JoinRef
	}
	if msg.Ref != "" {
		ref = msg.Ref
	}
	return json.Marshal([]any{joinRef, ref, msg.Topic, msg.Event, msg.Payload})
}

func (c *PhoenixCodec) Decode(data []byte) (*Message, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(tuple) != 5 {
		return nil, ErrInvalidMessage
	}

	msg := &Message{}
	var joinRef, ref *string
	if err := json.Unmarshal(tuple[0], &joinRef); err == nil && joinRef != nil {
		msg.JoinRef = *joinRef
	}
	if err := json.Unmarshal(tuple[1], &ref); err == nil && ref != nil {
		msg.Ref = *ref
	}
	if err := json.Unmarshal(tuple[2], &msg.Topic); err != nil {
		return nil, fmt.Errorf("%w: topic: %v", ErrInvalidMessage, err)
	}
	if err := json.Unmarshal(tuple[3], &msg.Event); err != nil || msg.Event == "" {
		return nil, ErrInvalidMessage
	}
	if err := json.Unmarshal(tuple[4], &msg.Payload); err != nil {
		msg.Payload = nil
	}
	msg.Type = TypeOf(msg.Event)
	return msg, nil
}

func (c *PhoenixCodec) Name() string { return "phoenix" }
func (c *PhoenixCodec) Binary() bool { return false }

// Registry looks codecs up by name.
type Registry struct {
	codecs map[string]Codec
	def    Codec
	mu     sync.RWMutex
}

// NewRegistry returns a registry with the JSON, MsgPack and Phoenix codecs,
// defaulting to JSON.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.Register(NewJSONCodec())
	r.Register(NewMsgPackCodec())
	r.Register(NewPhoenixCodec())
	r.def = r.codecs["json"]
	return r
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.Name()] = c
}

// Get returns the codec called name.
func (r *Registry) Get(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Lookup returns the codec called name, or the default when name is empty.
func (r *Registry) Lookup(name string) (Codec, error) {
	if name == "" {
		return r.Default(), nil
	}
	return r.Get(name)
}

// Default returns the default codec.
func (r *Registry) Default() Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}
