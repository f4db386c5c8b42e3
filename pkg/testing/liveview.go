// Package testing drives live components without a browser or a WebSocket.
// It mounts a component over a mock transport, feeds it events and info
// messages, and renders it the way the router would.
package testing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonstream-to/moonlive/pkg/core"
)

// LiveViewTest is a mounted component under test.
type LiveViewTest struct {
	t         testing.TB
	component core.Component
	transport *MockTransport
	socket    *core.Socket
	params    core.Params
	session   core.Session
	ctx       context.Context
	dead      bool
}

// MountOption configures Mount.
type MountOption func(*LiveViewTest)

// WithParams sets the mount params.
func WithParams(params core.Params) MountOption {
	return func(lvt *LiveViewTest) {
		lvt.params = params
	}
}

// WithSession sets the session, usually cookies under core.CookiePrefix.
func WithSession(session core.Session) MountOption {
	return func(lvt *LiveViewTest) {
		lvt.session = session
	}
}

// Dead mounts without a socket, as for the first HTTP render.
func Dead() MountOption {
	return func(lvt *LiveViewTest) {
		lvt.dead = true
	}
}

// Mount mounts comp and fails the test if Mount returns an error.
func Mount(t testing.TB, comp core.Component, opts ...MountOption) *LiveViewTest {
	t.Helper()

	lvt := &LiveViewTest{
		t:         t,
		component: comp,
		transport: NewMockTransport(),
		params:    core.Params{},
		session:   core.Session{},
	}
	for _, opt := range opts {
		opt(lvt)
	}

	if !lvt.dead {
		lvt.socket = core.NewSocket("test-"+uuid.NewString()[:8], lvt.transport)
		if sc, ok := comp.(interface{ SetSocket(*core.Socket) }); ok {
			sc.SetSocket(lvt.socket)
		}
	}

	lvt.ctx = context.Background()
	require.NoError(t, comp.Mount(lvt.ctx, lvt.params, lvt.session), "mount %s", comp.Name())

	t.Cleanup(func() {
		if lvt.socket != nil {
			lvt.socket.Close()
		}
	})
	return lvt
}

// Context returns the context handed to the component.
func (lvt *LiveViewTest) Context() context.Context {
	return lvt.ctx
}

// Socket returns the live socket, or nil for a dead mount.
func (lvt *LiveViewTest) Socket() *core.Socket {
	return lvt.socket
}

// Transport returns the mock the socket writes to.
func (lvt *LiveViewTest) Transport() *MockTransport {
	return lvt.transport
}

// Event sends a client event and returns the component's error.
func (lvt *LiveViewTest) Event(event string, payload map[string]any) error {
	lvt.t.Helper()
	if payload == nil {
		payload = map[string]any{}
	}
	return lvt.component.HandleEvent(lvt.ctx, event, payload)
}

// MustEvent sends a client event and fails the test on error.
func (lvt *LiveViewTest) MustEvent(event string, payload map[string]any) {
	lvt.t.Helper()
	require.NoError(lvt.t, lvt.Event(event, payload), "event %q", event)
}

// Info delivers msg straight to HandleInfo.
func (lvt *LiveViewTest) Info(msg any) error {
	return lvt.component.HandleInfo(lvt.ctx, msg)
}

// AwaitInfo waits for the next queued info message, delivers it, and
// returns it. It fails the test if nothing arrives within timeout.
func (lvt *LiveViewTest) AwaitInfo(timeout time.Duration) any {
	lvt.t.Helper()
	require.NotNil(lvt.t, lvt.socket, "dead mounts have no info queue")

	select {
	case msg := <-lvt.socket.Info():
		require.NoError(lvt.t, lvt.Info(msg))
		return msg
	case <-time.After(timeout):
		lvt.t.Fatalf("no info message within %s", timeout)
		return nil
	}
}

// DrainInfo delivers every info message already queued and returns how
// many there were.
func (lvt *LiveViewTest) DrainInfo() int {
	lvt.t.Helper()
	if lvt.socket == nil {
		return 0
	}
	n := 0
	for {
		select {
		case msg := <-lvt.socket.Info():
			require.NoError(lvt.t, lvt.Info(msg))
			n++
		default:
			return n
		}
	}
}

// Render renders the component and returns the HTML.
func (lvt *LiveViewTest) Render() string {
	lvt.t.Helper()
	var buf bytes.Buffer
	require.NoError(lvt.t, lvt.component.Render(lvt.ctx).Render(lvt.ctx, &buf))
	return buf.String()
}

// AssertContains fails unless the rendered HTML contains every fragment.
func (lvt *LiveViewTest) AssertContains(fragments ...string) {
	lvt.t.Helper()
	html := lvt.Render()
	for _, f := range fragments {
		assert.Contains(lvt.t, html, f)
	}
}

// AssertNotContains fails if the rendered HTML contains any fragment.
func (lvt *LiveViewTest) AssertNotContains(fragments ...string) {
	lvt.t.Helper()
	html := lvt.Render()
	for _, f := range fragments {
		assert.NotContains(lvt.t, html, f)
	}
}

// Count returns how often fragment appears in the rendered HTML.
func (lvt *LiveViewTest) Count(fragment string) int {
	lvt.t.Helper()
	return strings.Count(lvt.Render(), fragment)
}

// Terminate ends the component the way a closed connection would.
func (lvt *LiveViewTest) Terminate(reason core.TerminateReason) error {
	err := lvt.component.Terminate(lvt.ctx, reason)
	if lvt.socket != nil {
		lvt.socket.Close()
	}
	return err
}
