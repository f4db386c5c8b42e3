// Package router serves live components over HTTP. A GET renders the
// component inside its page layout; a WebSocket upgrade on the same path
// joins a live session that handles events and pushes slot diffs.
package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moonstream-to/moonlive/pkg/core"
	"github.com/moonstream-to/moonlive/pkg/logging"
	"github.com/moonstream-to/moonlive/pkg/pool"
	"github.com/moonstream-to/moonlive/pkg/protocol"
	"github.com/moonstream-to/moonlive/pkg/transport"
)

// Router errors.
var (
	ErrNilRenderer  = errors.New("component returned a nil renderer")
	ErrNotJoined    = errors.New("event received before join")
	ErrHandlerPanic = errors.New("component handler panicked")
)

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// ErrorHandler writes the response for a failed dead render.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Observer receives live-session events, typically to record metrics.
type Observer interface {
	SocketOpened(component string)
	SocketClosed(component string, lifetime time.Duration)
	EventHandled(component, event string, d time.Duration, err error)
	PanicRecovered(component string)
	DiffSent(component string, bytes int)
}

type nopObserver struct{}

func (nopObserver) SocketOpened(string)                               {}
func (nopObserver) SocketClosed(string, time.Duration)                {}
func (nopObserver) EventHandled(string, string, time.Duration, error) {}
func (nopObserver) PanicRecovered(string)                             {}
func (nopObserver) DiffSent(string, int)                              {}

// UnknownEvent is the name reported to the Observer for client events the
// component does not declare.
const UnknownEvent = "unknown"

// EventLister is implemented by components that declare the client events
// they handle. Observers only ever see declared names; without it every
// event is reported as UnknownEvent.
type EventLister interface {
	Events() []string
}

// Page is what a layout receives for the dead render.
type Page struct {
	Title   string
	Path    string
	Content core.Renderer
}

// Layout wraps the live container in a full HTML document.
type Layout func(ctx context.Context, page Page) core.Renderer

// LiveRoute is a path served by a live component.
type LiveRoute struct {
	Path       string
	Title      string
	Component  func() core.Component
	Layout     Layout
	Middleware []Middleware
}

// RouteOption configures a LiveRoute.
type RouteOption func(*LiveRoute)

// WithTitle sets the document title passed to the layout.
func WithTitle(title string) RouteOption {
	return func(r *LiveRoute) { r.Title = title }
}

// WithLayout overrides the router's default layout for one route.
func WithLayout(layout Layout) RouteOption {
	return func(r *LiveRoute) { r.Layout = layout }
}

// WithRouteMiddleware adds middleware that only wraps this route.
func WithRouteMiddleware(mw ...Middleware) RouteOption {
	return func(r *LiveRoute) { r.Middleware = append(r.Middleware, mw...) }
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Router) { r.log = logger }
}

// WithObserver sets the session observer.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithTransportConfig sets timeouts and buffers for live sockets.
func WithTransportConfig(c *transport.Config) Option {
	return func(r *Router) { r.transportConfig = c }
}

// WithWebSocketConfig sets the upgrade policy.
func WithWebSocketConfig(c *transport.WebSocketConfig) Option {
	return func(r *Router) { r.wsConfig = c }
}

// WithDefaultLayout sets the layout for routes that do not set one.
func WithDefaultLayout(layout Layout) Option {
	return func(r *Router) { r.layout = layout }
}

// WithErrorHandler replaces the dead-render error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(r *Router) { r.errorHandler = h }
}

// Router dispatches HTTP and live traffic.
type Router struct {
	mux             *http.ServeMux
	middleware      []Middleware
	layout          Layout
	errorHandler    ErrorHandler
	transportConfig *transport.Config
	wsConfig        *transport.WebSocketConfig
	observer        Observer
	log             logging.Logger

	sessions *SessionManager
	sockets  *core.SocketManager
	loops    sync.WaitGroup

	mu sync.RWMutex
}

// New creates a router.
func New(opts ...Option) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		sessions: NewSessionManager(),
		sockets:  core.NewSocketManager(),
		observer: nopObserver{},
		log:      logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.log = r.log.With(logging.Component("router"))
	if r.transportConfig == nil {
		r.transportConfig = transport.DefaultConfig()
	}
	if r.transportConfig.Logger == nil {
		r.transportConfig.Logger = r.log
	}
	if r.wsConfig == nil {
		r.wsConfig = transport.DefaultWebSocketConfig()
	}
	if r.errorHandler == nil {
		r.errorHandler = r.defaultErrorHandler
	}
	return r
}

func (r *Router) defaultErrorHandler(w http.ResponseWriter, req *http.Request, err error) {
	logging.L(req.Context()).Error("render failed", logging.Err(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// Use adds global middleware. It applies to routes registered after it.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

func (r *Router) wrap(h http.Handler, extra []Middleware) http.Handler {
	r.mu.RLock()
	global := make([]Middleware, len(r.middleware))
	copy(global, r.middleware)
	r.mu.RUnlock()

	for i := len(extra) - 1; i >= 0; i-- {
		h = extra[i](h)
	}
	for i := len(global) - 1; i >= 0; i-- {
		h = global[i](h)
	}
	return h
}

// Live registers a live component at an http.ServeMux pattern.
func (r *Router) Live(path string, component func() core.Component, opts ...RouteOption) {
	route := &LiveRoute{Path: path, Component: component}
	for _, opt := range opts {
		opt(route)
	}

	r.mux.Handle(path, r.wrap(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.serveLive(w, req, route)
	}), route.Middleware))
}

// Handle registers a plain HTTP handler behind the global middleware.
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, r.wrap(handler, nil))
}

// HandleFunc registers a plain HTTP handler function.
func (r *Router) HandleFunc(pattern string, handler http.HandlerFunc) {
	r.Handle(pattern, handler)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Sessions returns the live session index.
func (r *Router) Sessions() *SessionManager {
	return r.sessions
}

// Sockets returns the live socket index.
func (r *Router) Sockets() *core.SocketManager {
	return r.sockets
}

// Shutdown closes every live socket and waits for their loops to finish
// terminating components, or for ctx to expire.
func (r *Router) Shutdown(ctx context.Context) error {
	r.sockets.CloseAll()

	done := make(chan struct{})
	go func() {
		r.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) serveLive(w http.ResponseWriter, req *http.Request, route *LiveRoute) {
	if isWebSocketRequest(req) {
		r.serveSocket(w, req, route)
		return
	}
	r.renderDead(w, req, route)
}

// renderDead mounts a fresh component without a socket and writes the
// whole page.
func (r *Router) renderDead(w http.ResponseWriter, req *http.Request, route *LiveRoute) {
	ctx := req.Context()
	comp := route.Component()
	params := extractParams(req, route.Path)
	session := extractSession(req)

	if err := comp.Mount(ctx, params, session); err != nil {
		r.errorHandler(w, req, fmt.Errorf("mount %s: %w", componentName(comp, route), err))
		return
	}

	inner := comp.Render(ctx)
	if inner == nil {
		r.errorHandler(w, req, ErrNilRenderer)
		return
	}
	container := liveContainer(componentName(comp, route), inner)

	page := container
	layout := route.Layout
	if layout == nil {
		layout = r.layout
	}
	if layout != nil {
		page = layout(ctx, Page{Title: route.Title, Path: req.URL.Path, Content: container})
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := page.Render(ctx, buf); err != nil {
		r.errorHandler(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if req.Method != http.MethodHead {
		w.Write(buf.Bytes())
	}

	comp.Terminate(ctx, core.TerminateNormal)
}

// liveContainer is the element the client script looks for; its children
// are replaced by the join render.
func liveContainer(name string, inner core.Renderer) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div data-live-view="`+html.EscapeString(name)+`">`); err != nil {
			return err
		}
		if err := inner.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

func componentName(comp core.Component, route *LiveRoute) string {
	if name := comp.Name(); name != "" {
		return name
	}
	return route.Path
}

func (r *Router) serveSocket(w http.ResponseWriter, req *http.Request, route *LiveRoute) {
	tr := transport.NewWebSocketTransport(r.transportConfig, r.wsConfig)
	if err := tr.Upgrade(w, req); err != nil {
		logging.L(req.Context()).Warn("websocket upgrade rejected", logging.Err(err))
		return
	}

	socket := core.NewSocket(uuid.NewString(), newTransportAdapter(tr))
	comp := route.Component()
	if sc, ok := comp.(interface{ SetSocket(*core.Socket) }); ok {
		sc.SetSocket(socket)
	}

	params := extractParams(req, route.Path)
	session := extractSession(req)
	ls := newLiveSession(socket, comp, tr, params, session)
	name := componentName(comp, route)

	r.sessions.add(ls)
	r.sockets.Add(socket)
	r.observer.SocketOpened(name)

	log := r.log.With(logging.SocketID(socket.ID()), logging.String("view", name))
	log.Debug("socket connected", logging.String("codec", tr.Codec().Name()))

	// the socket outlives the upgrade request, so its context does too
	ctx := logging.ContextWithLogger(context.Background(), log)

	r.loops.Add(1)
	go func() {
		defer r.loops.Done()
		reason := r.runLoop(ctx, ls, name)
		r.closeSession(ctx, ls, name, reason)
	}()
}

// runLoop is messageLoop with a last-resort recover: a panic outside the
// component callbacks ends this session, not the process.
func (r *Router) runLoop(ctx context.Context, ls *LiveSession, name string) (reason core.TerminateReason) {
	defer func() {
		if rec := recover(); rec != nil {
			r.observer.PanicRecovered(name)
			logging.L(ctx).Error("message loop panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
			reason = core.TerminateError
		}
	}()
	return r.messageLoop(ctx, ls, name)
}

// messageLoop serialises client messages and info messages for one
// session. It returns why the session ended.
func (r *Router) messageLoop(ctx context.Context, ls *LiveSession, name string) core.TerminateReason {
	for {
		select {
		case msg := <-ls.Transport.Receive():
			ls.Socket.UpdateActivity()

			switch protocol.TypeOf(msg.Event) {
			case protocol.MsgHeartbeat:
				r.reply(ls, protocol.OkReply(msg.Ref, msg.Topic, nil))
			case protocol.MsgJoin:
				r.handleJoin(ctx, ls, name, msg)
			case protocol.MsgLeave:
				r.reply(ls, protocol.OkReply(msg.Ref, msg.Topic, nil))
				return core.TerminateNormal
			default:
				r.handleEvent(ctx, ls, name, msg)
			}

		case info := <-ls.Socket.Info():
			r.handleInfo(ctx, ls, name, info)

		case <-ls.Transport.Done():
			return core.TerminateShutdown
		case <-ls.Socket.Done():
			return core.TerminateShutdown
		}
	}
}

func (r *Router) handleJoin(ctx context.Context, ls *LiveSession, name string, msg *protocol.Message) {
	ls.joinRef = msg.JoinRef
	if ls.joinRef == "" {
		ls.joinRef = msg.Ref
	}

	if !ls.mounted {
		for k, v := range msg.PayloadMap("params") {
			ls.Params[k] = fmt.Sprint(v)
		}
		err := r.safely(ctx, name, func() error {
			return ls.Component.Mount(ctx, ls.Params, ls.Session)
		})
		if err != nil {
			r.reply(ls, protocol.ErrorReply(msg.Ref, msg.Topic, err.Error()))
			return
		}
		ls.mounted = true
	}

	out, err := r.render(ctx, ls, name)
	if err != nil {
		r.reply(ls, protocol.ErrorReply(msg.Ref, msg.Topic, err.Error()))
		return
	}
	seedSlots(ls, out)
	r.resetTracker(ls)

	r.reply(ls, protocol.OkReply(msg.Ref, msg.Topic, map[string]any{
		"rendered":  map[string]any{"s": []string{out}},
		"socket_id": ls.SocketID,
	}))
}

func (r *Router) handleEvent(ctx context.Context, ls *LiveSession, name string, msg *protocol.Message) {
	start := time.Now()
	label := ls.eventLabel(msg.Event)

	if !ls.mounted {
		r.reply(ls, protocol.ErrorReply(msg.Ref, msg.Topic, ErrNotJoined.Error()))
		r.observer.EventHandled(name, label, time.Since(start), ErrNotJoined)
		return
	}

	payload := msg.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	err := r.safely(ctx, name, func() error {
		return ls.Component.HandleEvent(ctx, msg.Event, payload)
	})
	if err != nil {
		logging.L(ctx).Debug("event rejected", logging.String("event", label), logging.Err(err))
		r.reply(ls, protocol.ErrorReply(msg.Ref, msg.Topic, err.Error()))
		r.observer.EventHandled(name, label, time.Since(start), err)
		return
	}

	r.reply(ls, protocol.OkReply(msg.Ref, msg.Topic, nil))
	r.pushDiff(ctx, ls, name)
	r.observer.EventHandled(name, label, time.Since(start), nil)
}

func (r *Router) handleInfo(ctx context.Context, ls *LiveSession, name string, info any) {
	err := r.safely(ctx, name, func() error {
		return ls.Component.HandleInfo(ctx, info)
	})
	if err != nil {
		logging.L(ctx).Warn("info handler failed", logging.String("info", fmt.Sprintf("%T", info)), logging.Err(err))
		return
	}
	if ls.mounted {
		r.pushDiff(ctx, ls, name)
	}
}

func (r *Router) render(ctx context.Context, ls *LiveSession, name string) (string, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	err := r.safely(ctx, name, func() error {
		renderer := ls.Component.Render(ctx)
		if renderer == nil {
			return ErrNilRenderer
		}
		return renderer.Render(ctx, buf)
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// pushDiff re-renders and sends whatever slots changed. Components that
// keep their state in assigns are not rendered when no assign moved.
func (r *Router) pushDiff(ctx context.Context, ls *LiveSession, name string) {
	if tracker := trackerOf(ls); tracker != nil {
		changed := tracker.GetChanged()
		if len(changed) == 0 {
			return
		}
		logging.L(ctx).Debug("assigns changed", logging.Any("fields", changed))
	}

	out, err := r.render(ctx, ls, name)
	if err != nil {
		logging.L(ctx).Error("render failed", logging.Err(err))
		return
	}

	d := buildDiff(ls, out)
	if d.IsEmpty() {
		return
	}
	if err := ls.Socket.SendDiff(d); err != nil {
		logging.L(ctx).Debug("diff not sent", logging.Err(err))
		return
	}
	r.observer.DiffSent(name, d.Size())
}

func trackerOf(ls *LiveSession) *core.ChangeTracker {
	if a, ok := ls.Component.(interface{ Assigns() *core.Assigns }); ok {
		return a.Assigns().Tracker()
	}
	return nil
}

func (r *Router) resetTracker(ls *LiveSession) {
	if tracker := trackerOf(ls); tracker != nil {
		tracker.Reset()
	}
}

func (r *Router) reply(ls *LiveSession, msg *protocol.Message) {
	msg.JoinRef = ls.joinRef
	if err := ls.Transport.Send(msg); err != nil {
		r.log.Debug("reply not sent", logging.SocketID(ls.SocketID), logging.Err(err))
	}
}

// safely runs a component callback, converting a panic into an error.
func (r *Router) safely(ctx context.Context, name string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.observer.PanicRecovered(name)
			logging.L(ctx).Error("component panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return fn()
}

func (r *Router) closeSession(ctx context.Context, ls *LiveSession, name string, reason core.TerminateReason) {
	if err := r.safely(ctx, name, func() error {
		return ls.Component.Terminate(ctx, reason)
	}); err != nil {
		logging.L(ctx).Warn("terminate failed", logging.Err(err))
	}

	r.sessions.remove(ls.SocketID)
	r.sockets.Remove(ls.SocketID)
	ls.Socket.Close()

	lifetime := time.Since(ls.CreatedAt)
	r.observer.SocketClosed(name, lifetime)
	logging.L(ctx).Debug("socket closed",
		logging.String("reason", reason.String()),
		logging.Duration("lifetime", lifetime),
	)
}

// extractSession copies request cookies into the session.
func extractSession(req *http.Request) core.Session {
	session := make(core.Session)
	for _, c := range req.Cookies() {
		session[core.CookiePrefix+c.Name] = c.Value
	}
	return session
}

// extractParams merges query values and path wildcards; wildcards win.
func extractParams(req *http.Request, pattern string) core.Params {
	params := make(core.Params)
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	for _, name := range wildcardNames(pattern) {
		if v := req.PathValue(name); v != "" {
			params[name] = v
		}
	}
	return params
}

// wildcardNames lists the {name} segments of a ServeMux pattern.
func wildcardNames(pattern string) []string {
	var names []string
	for {
		open := strings.IndexByte(pattern, '{')
		if open == -1 {
			return names
		}
		end := strings.IndexByte(pattern[open:], '}')
		if end == -1 {
			return names
		}
		name := strings.TrimSuffix(pattern[open+1:open+end], "...")
		if name != "" && name != "$" {
			names = append(names, name)
		}
		pattern = pattern[open+end+1:]
	}
}

func isWebSocketRequest(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}
