// Package core provides the live component contract used by moonlive views.
package core

import (
	"context"
	"io"
)

// Component is a stateful server-side view bound to one client connection.
// The router mounts it, renders it, and feeds it client events and
// server-side info messages until the connection ends.
type Component interface {
	// Name identifies the component type in logs and metrics.
	Name() string

	// Mount initialises state from URL params and session data.
	// It runs once for the dead HTTP render and once more on socket join.
	Mount(ctx context.Context, params Params, session Session) error

	// Render returns the current HTML for the component.
	Render(ctx context.Context) Renderer

	// HandleEvent applies a client event such as a click.
	HandleEvent(ctx context.Context, event string, payload map[string]any) error

	// HandleInfo applies a server-side message, usually the result of
	// background work started by the component.
	HandleInfo(ctx context.Context, msg any) error

	// Terminate releases resources when the connection goes away.
	Terminate(ctx context.Context, reason TerminateReason) error
}

// Renderer writes HTML. gomponents nodes satisfy it through RenderNode.
type Renderer interface {
	Render(ctx context.Context, w io.Writer) error
}

// RendererFunc adapts a plain function to Renderer.
type RendererFunc func(ctx context.Context, w io.Writer) error

func (f RendererFunc) Render(ctx context.Context, w io.Writer) error {
	return f(ctx, w)
}

// Node is the subset of gomponents.Node the router needs.
type Node interface {
	Render(w io.Writer) error
}

// RenderNode wraps a node so it can be returned from Component.Render.
func RenderNode(n Node) Renderer {
	return RendererFunc(func(_ context.Context, w io.Writer) error {
		return n.Render(w)
	})
}

// Params holds URL query values and values merged from the join payload.
type Params map[string]string

// Get returns a parameter value or empty string.
func (p Params) Get(key string) string {
	return p[key]
}

// Session carries request-scoped data extracted by the router.
type Session map[string]any

// Get returns a session value.
func (s Session) Get(key string) any {
	return s[key]
}

// GetString returns a session value as string.
func (s Session) GetString(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// CookiePrefix marks session keys copied from request cookies.
const CookiePrefix = "cookie:"

// Cookie returns the value of a request cookie captured in the session.
func (s Session) Cookie(name string) string {
	return s.GetString(CookiePrefix + name)
}

// TerminateReason indicates why a component is being terminated.
type TerminateReason int

const (
	// TerminateNormal is a client-initiated leave.
	TerminateNormal TerminateReason = iota
	// TerminateShutdown is a server shutdown or dropped connection.
	TerminateShutdown
	// TerminateError follows an unrecoverable handler error.
	TerminateError
)

func (r TerminateReason) String() string {
	switch r {
	case TerminateNormal:
		return "normal"
	case TerminateShutdown:
		return "shutdown"
	case TerminateError:
		return "error"
	default:
		return "unknown"
	}
}

// BaseComponent provides no-op lifecycle methods plus socket and assigns
// plumbing. Embed it and override what the component needs.
type BaseComponent struct {
	socket  *Socket
	assigns *Assigns
}

// SetSocket is called by the router before Mount on a live connection.
func (bc *BaseComponent) SetSocket(s *Socket) {
	bc.socket = s
}

// Socket returns the live socket, or nil during a dead render.
func (bc *BaseComponent) Socket() *Socket {
	return bc.socket
}

// Assigns returns the component's assigns. On a live connection the store
// is shared with the socket.
func (bc *BaseComponent) Assigns() *Assigns {
	if bc.assigns == nil {
		if bc.socket != nil {
			bc.assigns = bc.socket.Assigns()
		} else {
			bc.assigns = NewAssigns()
		}
	}
	return bc.assigns
}

func (bc *BaseComponent) Name() string { return "" }

func (bc *BaseComponent) Mount(ctx context.Context, params Params, session Session) error {
	return nil
}

func (bc *BaseComponent) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	return nil
}

func (bc *BaseComponent) HandleInfo(ctx context.Context, msg any) error {
	return nil
}

func (bc *BaseComponent) Terminate(ctx context.Context, reason TerminateReason) error {
	return nil
}
