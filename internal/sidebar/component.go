package sidebar

import (
	"context"
	"errors"
	"strconv"
	"time"

	g "maragu.dev/gomponents"
	"maragu.dev/gomponents/html"

	"github.com/moonstream-to/moonlive/internal/dashboards"
	"github.com/moonstream-to/moonlive/internal/overlay"
	"github.com/moonstream-to/moonlive/internal/sitemap"
	"github.com/moonstream-to/moonlive/internal/ui"
	"github.com/moonstream-to/moonlive/pkg/core"
	"github.com/moonstream-to/moonlive/pkg/logging"
	"github.com/moonstream-to/moonlive/pkg/retry"
)

// Name identifies the component in logs and metrics.
const Name = "sidebar"

// Slot is the data-slot the whole sidebar renders into.
const Slot = "sidebar"

// Params read on mount.
const (
	ParamViewportWidth = "viewport_width"
	ParamSidebar       = "sidebar"
)

// assignDashboards holds the dashboard state so list changes reach the
// router's change tracker.
const assignDashboards = "dashboards"

// resultDelivery retries handing a fetch result to an info queue that is
// momentarily full.
var resultDelivery = retry.Config{
	Attempts:     8,
	InitialDelay: 10 * time.Millisecond,
	MaxDelay:     250 * time.Millisecond,
	Multiplier:   2,
	RetryIf:      func(err error) bool { return errors.Is(err, core.ErrInfoQueueFull) },
}

// DashboardSource is the dashboard cache as the component uses it.
// *dashboards.Cache satisfies it.
type DashboardSource interface {
	Peek(ctx context.Context, token string) ([]dashboards.Dashboard, bool)
	Load(ctx context.Context, token string, seq uint64) dashboards.Result
	Invalidate(ctx context.Context, token string) error
}

// Deps are shared by every sidebar instance.
type Deps struct {
	Dashboards DashboardSource
	SiteMap    sitemap.SiteMap
	Modals     overlay.Recorder

	AuthCookie   string
	Breakpoint   int
	LogoURL      string
	FetchTimeout time.Duration

	// Now is used for the copyright year.
	Now func() time.Time
}

// Component is the live sidebar. One instance serves one connection.
type Component struct {
	core.BaseComponent

	deps       Deps
	dispatcher Dispatcher
	store      *ui.Store
	modals     *overlay.Controller

	token  string
	dash   dashboards.State
	seq    uint64
	cancel context.CancelFunc
}

// New returns a factory for router.Live.
func New(deps Deps) func() core.Component {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SiteMap == nil {
		deps.SiteMap = sitemap.Default()
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = 15 * time.Second
	}
	return func() core.Component {
		return &Component{
			deps:       deps,
			dispatcher: NewDispatcher(deps.Breakpoint),
		}
	}
}

func (c *Component) Name() string { return Name }

// Events lets the router label metrics with known event names only.
func (c *Component) Events() []string { return c.dispatcher.Events() }

// Mount reads the login from the auth cookie and the layout flags from the
// params. A logged-in user gets the cached dashboards, or a fetch when a
// socket is there to deliver the result.
func (c *Component) Mount(ctx context.Context, params core.Params, session core.Session) error {
	c.store = ui.NewStore(c.Assigns())

	var pusher overlay.Pusher
	if s := c.Socket(); s != nil {
		pusher = s
	}
	c.modals = overlay.NewController(pusher, c.deps.Modals)

	if w, ok := viewportWidth(params); ok {
		c.store.SetMobileView(c.dispatcher.IsMobile(w))
	}
	if params.Get(ParamSidebar) == "hidden" {
		c.store.SetSidebarVisible(false)
	}

	c.token = session.Cookie(c.deps.AuthCookie)
	c.store.SetLoggedIn(c.token != "")
	if c.token == "" || c.deps.Dashboards == nil {
		c.setDashboards(dashboards.State{})
		return nil
	}

	if list, ok := c.deps.Dashboards.Peek(ctx, c.token); ok {
		c.setDashboards(dashboards.LoadedState(list))
		return nil
	}
	c.loadDashboards(ctx)
	return nil
}

func viewportWidth(params core.Params) (int, bool) {
	raw := params.Get(ParamViewportWidth)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return roundWidth(f)
}

func (c *Component) setDashboards(state dashboards.State) {
	c.dash = state
	c.Assigns().Set(assignDashboards, state)
}

// loadDashboards starts a background fetch whose Result comes back through
// the socket's info queue. Without a socket it only marks the list as
// loading; the client's join will mount again and fetch.
func (c *Component) loadDashboards(ctx context.Context) {
	c.setDashboards(dashboards.LoadingState())

	socket := c.Socket()
	if socket == nil {
		return
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq, token, source := c.seq, c.token, c.deps.Dashboards

	fetchCtx, cancel := context.WithTimeout(ctx, c.deps.FetchTimeout)
	c.cancel = cancel
	log := logging.L(ctx)

	go func() {
		defer cancel()
		res := source.Load(fetchCtx, token, seq)
		err := retry.Do(ctx, &resultDelivery, func(context.Context) error {
			return socket.SendInfo(res)
		})
		switch {
		case err == nil:
		case errors.Is(err, core.ErrSocketClosed):
			log.Debug("dashboards result dropped", logging.Err(err))
		default:
			log.Warn("dashboards result dropped", logging.Err(err))
		}
	}()
}

// HandleEvent applies a click.
func (c *Component) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	return c.dispatcher.Dispatch(ctx, event, payload, c.store.Snapshot(), handles{c})
}

// HandleInfo takes the outcome of a dashboards fetch. Results of a fetch
// that was superseded are dropped.
func (c *Component) HandleInfo(ctx context.Context, msg any) error {
	res, ok := msg.(dashboards.Result)
	if !ok || res.Seq != c.seq {
		return nil
	}
	c.cancel = nil
	c.setDashboards(res.State())
	if res.Err != nil {
		logging.L(ctx).Warn("dashboards fetch failed", logging.Err(res.Err))
	}
	return nil
}

// Render wraps the view in the slot the router diffs.
func (c *Component) Render(ctx context.Context) core.Renderer {
	return core.RenderNode(html.Div(
		g.Attr("data-slot", Slot),
		View(c.props()),
	))
}

func (c *Component) props() Props {
	var state ui.State
	if c.store != nil {
		state = c.store.Snapshot()
	}
	return Props{
		UI:         state,
		Dashboards: c.dash,
		SiteMap:    c.deps.SiteMap,
		Year:       c.deps.Now().Year(),
		LogoURL:    c.deps.LogoURL,
	}
}

// Terminate cancels an in-flight fetch.
func (c *Component) Terminate(ctx context.Context, reason core.TerminateReason) error {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

// Modals exposes the overlay controller, mainly for tests.
func (c *Component) Modals() *overlay.Controller {
	return c.modals
}

// Dashboards returns the current dashboard state.
func (c *Component) Dashboards() dashboards.State {
	return c.dash
}

// handles binds Dispatch to one component.
type handles struct {
	c *Component
}

func (h handles) SetSidebarToggled(v bool)   { h.c.store.SetSidebarToggled(v) }
func (h handles) SetSidebarCollapsed(v bool) { h.c.store.SetSidebarCollapsed(v) }
func (h handles) SetMobileView(v bool)       { h.c.store.SetMobileView(v) }

func (h handles) ToggleModal(ctx context.Context, req overlay.Request) error {
	return h.c.modals.ToggleModal(ctx, req)
}

// RefreshDashboards drops the cached list and fetches again. Signed-out
// users have nothing to refresh.
func (h handles) RefreshDashboards(ctx context.Context) error {
	c := h.c
	if c.token == "" || c.deps.Dashboards == nil {
		return nil
	}
	if err := c.deps.Dashboards.Invalidate(ctx, c.token); err != nil {
		logging.L(ctx).Warn("dashboard cache invalidate failed", logging.Err(err))
	}
	c.loadDashboards(ctx)
	return nil
}
