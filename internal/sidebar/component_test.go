package sidebar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonstream-to/moonlive/internal/dashboards"
	"github.com/moonstream-to/moonlive/internal/overlay"
	"github.com/moonstream-to/moonlive/pkg/core"
	livetest "github.com/moonstream-to/moonlive/pkg/testing"
)

const authCookie = "moonstream_access_token"

type fakeSource struct {
	mu          sync.Mutex
	cached      map[string][]dashboards.Dashboard
	list        []dashboards.Dashboard
	err         error
	block       chan struct{}
	canceled    chan struct{}
	loads       atomic.Int32
	invalidated []string
}

func (f *fakeSource) Peek(_ context.Context, token string) ([]dashboards.Dashboard, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, ok := f.cached[token]
	return list, ok
}

func (f *fakeSource) Load(ctx context.Context, token string, seq uint64) dashboards.Result {
	f.loads.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			close(f.canceled)
			return dashboards.Result{Seq: seq, Err: ctx.Err()}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return dashboards.Result{Seq: seq, Dashboards: f.list, Err: f.err}
}

func (f *fakeSource) Invalidate(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, token)
	delete(f.cached, token)
	return nil
}

type modalCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *modalCounter) ModalRequested(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[t]++
}

var whales = []dashboards.Dashboard{
	{ID: "w1", ResourceData: dashboards.ResourceData{Name: "Whales"}},
	{ID: "m2", ResourceData: dashboards.ResourceData{Name: "Mints"}},
}

func newSidebar(src DashboardSource, rec overlay.Recorder) core.Component {
	return New(Deps{
		Dashboards: src,
		Modals:     rec,
		SiteMap:    testSiteMap,
		AuthCookie: authCookie,
		LogoURL:    "/logo.png",
		Now:        func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) },
	})()
}

func loggedIn(token string) livetest.MountOption {
	return livetest.WithSession(core.Session{core.CookiePrefix + authCookie: token})
}

func TestComponent_LoggedOut(t *testing.T) {
	lvt := livetest.Mount(t, newSidebar(&fakeSource{}, nil))

	lvt.AssertContains(`data-slot="sidebar"`, "Sign up", "Login", "icon-arrow-left")
	lvt.AssertNotContains("Dashboards", "/subscriptions", "Moonstream.to")
}

func TestComponent_MobileFromViewportParam(t *testing.T) {
	lvt := livetest.Mount(t, newSidebar(&fakeSource{}, nil),
		livetest.WithParams(core.Params{ParamViewportWidth: "375"}))

	lvt.AssertContains("sidebar mobile", "icon-menu", `href="/features"`)

	lvt.MustEvent(EventToggleSidebar, nil)
	lvt.AssertContains("sidebar toggled mobile")

	lvt.MustEvent(EventCloseSidebar, nil)
	lvt.AssertNotContains("toggled")
}

func TestComponent_HugeViewportParamIsDesktop(t *testing.T) {
	lvt := livetest.Mount(t, newSidebar(&fakeSource{}, nil),
		livetest.WithParams(core.Params{ParamViewportWidth: "1e300"}))
	lvt.AssertNotContains("sidebar mobile")
	lvt.AssertContains("icon-arrow-left")
}

func TestComponent_HiddenParam(t *testing.T) {
	lvt := livetest.Mount(t, newSidebar(&fakeSource{}, nil),
		livetest.WithParams(core.Params{ParamSidebar: "hidden"}))
	lvt.AssertContains(`aria-label="Sidebar" hidden`)
}

func TestComponent_DesktopCollapse(t *testing.T) {
	lvt := livetest.Mount(t, newSidebar(&fakeSource{}, nil),
		livetest.WithParams(core.Params{ParamViewportWidth: "1440"}))

	lvt.MustEvent(EventToggleSidebar, nil)
	lvt.AssertContains("sidebar collapsed", "width: 80px", "icon-arrow-right")

	lvt.MustEvent(EventViewport, map[string]any{"width": float64(600)})
	lvt.AssertContains("sidebar mobile", "width: 240px")
	lvt.AssertNotContains("collapsed")
}

func TestComponent_CachedDashboards(t *testing.T) {
	src := &fakeSource{cached: map[string][]dashboards.Dashboard{"tok": whales}}
	lvt := livetest.Mount(t, newSidebar(src, nil), loggedIn("tok"))

	assert.Equal(t, 2, lvt.Count("data-dashboard-id="))
	lvt.AssertContains(`href="/dashboard/w1"`, "<span>Mints</span>", "New dashboard", "© 2026 Moonstream.to")
	assert.EqualValues(t, 0, src.loads.Load())
}

func TestComponent_AsyncFetchOnLiveMount(t *testing.T) {
	src := &fakeSource{list: whales}
	c := newSidebar(src, nil).(*Component)
	lvt := livetest.Mount(t, c, loggedIn("tok"))

	assert.Equal(t, dashboards.Loading, c.Dashboards().Status)
	lvt.AssertContains(`aria-busy="true"`)

	res := lvt.AwaitInfo(time.Second)
	assert.IsType(t, dashboards.Result{}, res)
	assert.Equal(t, dashboards.Loaded, c.Dashboards().Status)
	assert.Equal(t, 2, lvt.Count("data-dashboard-id="))
	lvt.AssertNotContains("aria-busy")
}

func TestComponent_DeadRenderShowsLoading(t *testing.T) {
	src := &fakeSource{list: whales}
	lvt := livetest.Mount(t, newSidebar(src, nil), livetest.Dead(), loggedIn("tok"))

	lvt.AssertContains(`aria-busy="true"`, "/account/tokens")
	assert.EqualValues(t, 0, src.loads.Load())
}

func TestComponent_FailedFetchAndRefresh(t *testing.T) {
	src := &fakeSource{err: errors.New("api down")}
	c := newSidebar(src, nil).(*Component)
	lvt := livetest.Mount(t, c, loggedIn("tok"))

	lvt.AwaitInfo(time.Second)
	assert.Equal(t, dashboards.Failed, c.Dashboards().Status)
	lvt.AssertContains(`lv-click="refresh-dashboards"`)

	src.mu.Lock()
	src.err = nil
	src.list = whales[:1]
	src.mu.Unlock()

	lvt.MustEvent(EventRefreshDashboards, nil)
	assert.Equal(t, []string{"tok"}, src.invalidated)
	lvt.AssertContains(`aria-busy="true"`)

	lvt.AwaitInfo(time.Second)
	assert.Equal(t, 1, lvt.Count("data-dashboard-id="))
}

func TestComponent_StaleResultIgnored(t *testing.T) {
	c := newSidebar(&fakeSource{list: whales}, nil).(*Component)
	lvt := livetest.Mount(t, c, loggedIn("tok"))
	lvt.AwaitInfo(time.Second)

	require.NoError(t, lvt.Info(dashboards.Result{Seq: 0, Err: errors.New("old")}))
	assert.Equal(t, dashboards.Loaded, c.Dashboards().Status)

	require.NoError(t, lvt.Info("unrelated"))
}

func TestComponent_OpenModalPushesAndClosesDrawer(t *testing.T) {
	rec := &modalCounter{}
	c := newSidebar(&fakeSource{}, rec).(*Component)
	lvt := livetest.Mount(t, c, livetest.WithParams(core.Params{ParamViewportWidth: "400"}))

	lvt.MustEvent(EventToggleSidebar, nil)
	lvt.AssertContains("toggled")

	lvt.MustEvent(EventOpenModal, map[string]any{"type": "login"})
	lvt.AssertNotContains("toggled")
	assert.Equal(t, overlay.Login, c.Modals().Active())
	assert.Equal(t, map[string]int{"login": 1}, rec.counts)

	msg, ok := lvt.Transport().LastPushed(overlay.ModalEvent)
	require.True(t, ok)
	assert.Equal(t, "login", msg.Payload["type"])
	assert.Equal(t, true, msg.Payload["open"])

	err := lvt.Event(EventOpenModal, map[string]any{"type": "nope"})
	assert.ErrorIs(t, err, overlay.ErrUnknownModal)
	assert.Error(t, lvt.Event("bogus", nil))
}

func TestComponent_TerminateCancelsFetch(t *testing.T) {
	src := &fakeSource{list: whales, block: make(chan struct{}), canceled: make(chan struct{})}
	lvt := livetest.Mount(t, newSidebar(src, nil), loggedIn("tok"))

	require.Eventually(t, func() bool { return src.loads.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, lvt.Terminate(core.TerminateShutdown))

	select {
	case <-src.canceled:
	case <-time.After(time.Second):
		t.Fatal("fetch was not canceled")
	}
}

func TestComponent_RefreshLoggedOutIsNoop(t *testing.T) {
	src := &fakeSource{}
	lvt := livetest.Mount(t, newSidebar(src, nil))

	lvt.MustEvent(EventRefreshDashboards, nil)
	assert.Empty(t, src.invalidated)
	assert.EqualValues(t, 0, src.loads.Load())
}

func TestComponent_ResultWaitsForFullInfoQueue(t *testing.T) {
	src := &fakeSource{list: whales, block: make(chan struct{})}
	c := newSidebar(src, nil).(*Component)
	lvt := livetest.Mount(t, c, loggedIn("tok"))

	require.Eventually(t, func() bool { return src.loads.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < core.DefaultInfoQueueSize; i++ {
		require.NoError(t, c.Socket().SendInfo("noise"))
	}
	require.ErrorIs(t, c.Socket().SendInfo("noise"), core.ErrInfoQueueFull)

	close(src.block)
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < core.DefaultInfoQueueSize; i++ {
		assert.Equal(t, "noise", lvt.AwaitInfo(time.Second))
	}

	assert.IsType(t, dashboards.Result{}, lvt.AwaitInfo(time.Second))
	assert.Equal(t, dashboards.Loaded, c.Dashboards().Status)
}

func TestComponent_DashboardStateIsTracked(t *testing.T) {
	c := newSidebar(&fakeSource{list: whales}, nil).(*Component)
	lvt := livetest.Mount(t, c, loggedIn("tok"))
	c.Assigns().Tracker().Reset()

	lvt.AwaitInfo(time.Second)
	assert.Equal(t, []string{assignDashboards}, c.Assigns().Tracker().GetChanged())

	require.NoError(t, lvt.Info(dashboards.Result{Seq: 0}))
	assert.Empty(t, c.Assigns().Tracker().GetChanged())

	lvt.MustEvent(EventCloseSidebar, nil)
	assert.Empty(t, c.Assigns().Tracker().GetChanged())
}
