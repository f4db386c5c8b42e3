package sidebar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonstream-to/moonlive/internal/dashboards"
	"github.com/moonstream-to/moonlive/internal/sitemap"
	"github.com/moonstream-to/moonlive/internal/ui"
)

var testSiteMap = sitemap.SiteMap{
	{Title: "Product", Path: "/product", Type: sitemap.Content, Children: []sitemap.Link{
		{Title: "Features", Path: "/features", Type: sitemap.Content},
		{Title: "Docs", Path: "https://docs.moonstream.to/", Type: sitemap.External},
	}},
	{Title: "Team", Path: "/team", Type: sitemap.View},
	{Title: "Legal", Path: "/legal", Type: sitemap.FooterCategory, Children: []sitemap.Link{
		{Title: "Privacy Policy", Path: "/privacy-policy", Type: sitemap.Content},
	}},
}

func render(t *testing.T, p Props) string {
	t.Helper()
	if p.SiteMap == nil {
		p.SiteMap = testSiteMap
	}
	if p.Year == 0 {
		p.Year = 2026
	}
	var b strings.Builder
	require.NoError(t, View(p).Render(&b))
	return b.String()
}

func TestView_LoggedOutDesktop(t *testing.T) {
	out := render(t, Props{UI: ui.State{SidebarVisible: true}})

	assert.Contains(t, out, ">Sign up</button>")
	assert.Contains(t, out, ">Login</button>")
	assert.Contains(t, out, `lv-value-type="signup"`)
	assert.Contains(t, out, `lv-value-type="login"`)

	assert.NotContains(t, out, "sitemap-item")
	assert.NotContains(t, out, "/features")
	assert.NotContains(t, out, "Dashboards")
	assert.NotContains(t, out, "dashboard-item")
	assert.NotContains(t, out, "New dashboard")
}

func TestView_LoggedOutMobile(t *testing.T) {
	out := render(t, Props{UI: ui.State{SidebarVisible: true, IsMobileView: true}})

	assert.Contains(t, out, ">Sign up</button>")
	assert.Equal(t, 2, strings.Count(out, "sitemap-item"))
	assert.Contains(t, out, `<a href="/features" lv-click="close-sidebar">Features</a>`)
	assert.Contains(t, out, `href="https://docs.moonstream.to/"`)
	assert.Contains(t, out, `target="_blank"`)
	assert.NotContains(t, out, "Privacy Policy")
	assert.NotContains(t, out, `href="/team"`)
}

func TestView_LoggedInDashboards(t *testing.T) {
	list := []dashboards.Dashboard{
		{ID: "d-1", ResourceData: dashboards.ResourceData{Name: "Whales"}},
		{ID: "d-2", ResourceData: dashboards.ResourceData{Name: "Mints & Burns"}},
		{ID: "d-3", ResourceData: dashboards.ResourceData{Name: "Bridges"}},
	}
	out := render(t, Props{
		UI:         ui.State{SidebarVisible: true, IsLoggedIn: true, IsMobileView: true},
		Dashboards: dashboards.LoadedState(list),
	})

	assert.Contains(t, out, ">Dashboards</li>")
	assert.Equal(t, len(list), strings.Count(out, "data-dashboard-id="))
	for _, d := range list {
		assert.Contains(t, out, `href="/dashboard/`+d.ID+`"`)
	}
	assert.Contains(t, out, "<span>Whales</span>")
	assert.Contains(t, out, "<span>Mints &amp; Burns</span>")
	assert.Contains(t, out, `lv-value-type="new_dashboard_flow"`)
	assert.Contains(t, out, ">New dashboard</button>")

	assert.NotContains(t, out, "Sign up")
	assert.NotContains(t, out, "sitemap-item")

	// order follows the cache
	assert.Less(t, strings.Index(out, "Whales"), strings.Index(out, "Bridges"))
}

func TestView_DashboardStates(t *testing.T) {
	tests := []struct {
		name     string
		state    dashboards.State
		contains string
		items    int
	}{
		{"not loaded", dashboards.State{}, "", 0},
		{"loading", dashboards.LoadingState(), `aria-busy="true"`, 0},
		{"loaded empty", dashboards.LoadedState(nil), "", 0},
		{"failed", dashboards.FailedState(dashboards.ErrNoToken), `lv-click="refresh-dashboards"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, Props{
				UI:         ui.State{SidebarVisible: true, IsLoggedIn: true},
				Dashboards: tt.state,
			})
			assert.Equal(t, tt.items, strings.Count(out, "data-dashboard-id="))
			assert.Contains(t, out, "New dashboard")
			if tt.contains != "" {
				assert.Contains(t, out, tt.contains)
			}
			if tt.state.Status != dashboards.Loading {
				assert.NotContains(t, out, "aria-busy")
			}
		})
	}
}

func TestView_DashboardIDIsEscaped(t *testing.T) {
	out := render(t, Props{
		UI: ui.State{IsLoggedIn: true},
		Dashboards: dashboards.LoadedState([]dashboards.Dashboard{
			{ID: "a/b", ResourceData: dashboards.ResourceData{Name: "<script>"}},
		}),
	})
	assert.Contains(t, out, `href="/dashboard/a%2Fb"`)
	assert.NotContains(t, out, "<script>")
}

func TestView_Footer(t *testing.T) {
	paths := []string{"/subscriptions", "/stream", "/account/tokens"}

	out := render(t, Props{UI: ui.State{IsLoggedIn: false}})
	for _, p := range paths {
		assert.NotContains(t, out, `href="`+p+`"`)
	}
	assert.NotContains(t, out, "Moonstream.to")

	out = render(t, Props{UI: ui.State{IsLoggedIn: true}, Year: 2031})
	for _, p := range paths {
		assert.Contains(t, out, `<a href="`+p+`" lv-click="close-sidebar">`)
	}
	assert.Contains(t, out, "<span>API Tokens</span>")
	assert.Contains(t, out, "© 2031 Moonstream.to")
}

func TestView_Header(t *testing.T) {
	tests := []struct {
		name string
		ui   ui.State
		icon string
	}{
		{"mobile", ui.State{IsMobileView: true, SidebarCollapsed: true}, "icon-menu"},
		{"desktop collapsed", ui.State{SidebarCollapsed: true}, "icon-arrow-right"},
		{"desktop expanded", ui.State{}, "icon-arrow-left"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, Props{UI: tt.ui, LogoURL: "https://cdn.example/logo.png"})
			assert.Contains(t, out, tt.icon)
			assert.Contains(t, out, `aria-label="App navigation"`)
			assert.Contains(t, out, `lv-click="toggle-sidebar"`)
			assert.Contains(t, out, `<a href="/" class="sidebar-logo"><img src="https://cdn.example/logo.png" alt="Moonstream To">`)
		})
	}
}

func TestView_RootFlags(t *testing.T) {
	out := render(t, Props{UI: ui.State{SidebarVisible: true}})
	assert.Contains(t, out, `<nav class="sidebar" style="width: 240px" aria-label="Sidebar">`)

	out = render(t, Props{UI: ui.State{SidebarCollapsed: true}})
	assert.Contains(t, out, `class="sidebar collapsed"`)
	assert.Contains(t, out, "width: 80px")
	assert.Contains(t, out, " hidden")

	out = render(t, Props{UI: ui.State{SidebarVisible: true, IsMobileView: true, SidebarToggled: true}})
	assert.Contains(t, out, `class="sidebar toggled mobile"`)
	assert.Contains(t, out, "width: 240px")
}
