// Package protocol defines the messages exchanged between the browser
// client and the live router, and the codecs that put them on the wire.
package protocol

import "time"

// MessageType classifies a message by its event.
type MessageType uint8

const (
	MsgEvent MessageType = iota
	MsgJoin
	MsgLeave
	MsgReply
	MsgDiff
	MsgHeartbeat
	MsgPush
)

// Event names with fixed meaning on the wire.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventHeartbeat = "heartbeat"
	EventDiff      = "diff"
)

func (mt MessageType) String() string {
	switch mt {
	case MsgEvent:
		return "event"
	case MsgJoin:
		return "join"
	case MsgLeave:
		return "leave"
	case MsgReply:
		return "reply"
	case MsgDiff:
		return "diff"
	case MsgHeartbeat:
		return "heartbeat"
	case MsgPush:
		return "push"
	default:
		return "unknown"
	}
}

// TypeOf maps an event name to its message type. Anything that is not a
// control event is a user event.
func TypeOf(event string) MessageType {
	switch event {
	case EventJoin:
		return MsgJoin
	case EventLeave:
		return MsgLeave
	case EventReply:
		return MsgReply
	case EventDiff:
		return MsgDiff
	case EventHeartbeat, "phx_heartbeat":
		return MsgHeartbeat
	default:
		return MsgEvent
	}
}

// Message is the unit of the live protocol.
type Message struct {
	Type      MessageType    `json:"t" msgpack:"t"`
	Ref       string         `json:"ref,omitempty" msgpack:"ref,omitempty"`
	Topic     string         `json:"topic" msgpack:"topic"`
	Event     string         `json:"event,omitempty" msgpack:"event,omitempty"`
	Payload   map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Timestamp int64          `json:"ts,omitempty" msgpack:"ts,omitempty"`
	JoinRef   string         `json:"join_ref,omitempty" msgpack:"join_ref,omitempty"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(topic, event string, payload map[string]any) *Message {
	return &Message{
		Type:      TypeOf(event),
		Topic:     topic,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithRef sets the correlation reference.
func (m *Message) WithRef(ref string) *Message {
	m.Ref = ref
	return m
}

// PayloadString returns payload[key] as a string.
func (m *Message) PayloadString(key string) string {
	v, _ := m.Payload[key].(string)
	return v
}

// PayloadMap returns payload[key] as a nested map.
func (m *Message) PayloadMap(key string) map[string]any {
	v, _ := m.Payload[key].(map[string]any)
	return v
}

// Reply builds a phx_reply for ref with the given status.
func Reply(ref, topic, status string, response map[string]any) *Message {
	return NewMessage(topic, EventReply, map[string]any{
		"status":   status,
		"response": response,
	}).WithRef(ref)
}

// OkReply builds a successful reply.
func OkReply(ref, topic string, response map[string]any) *Message {
	return Reply(ref, topic, "ok", response)
}

// ErrorReply builds an error reply carrying reason.
func ErrorReply(ref, topic, reason string) *Message {
	return Reply(ref, topic, "error", map[string]any{"reason": reason})
}
