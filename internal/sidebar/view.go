// Package sidebar renders the app's collapsible navigation and applies the
// clicks made on it.
package sidebar

import (
	"net/url"
	"strconv"
	"strings"

	g "maragu.dev/gomponents"
	"maragu.dev/gomponents/html"

	"github.com/moonstream-to/moonlive/internal/dashboards"
	"github.com/moonstream-to/moonlive/internal/overlay"
	"github.com/moonstream-to/moonlive/internal/sitemap"
	"github.com/moonstream-to/moonlive/internal/ui"
)

// Widths in pixels.
const (
	Width          = 240
	CollapsedWidth = 80
)

// Props is everything the view reads.
type Props struct {
	UI         ui.State
	Dashboards dashboards.State
	SiteMap    sitemap.SiteMap
	Year       int
	LogoURL    string
}

// View renders the sidebar. It is a pure function of props.
func View(p Props) g.Node {
	return html.Nav(
		html.Class(rootClass(p.UI)),
		html.Style("width: "+strconv.Itoa(width(p.UI))+"px"),
		g.Attr("aria-label", "Sidebar"),
		g.If(!p.UI.SidebarVisible, g.Attr("hidden")),
		header(p),
		content(p),
		footer(p),
	)
}

func rootClass(s ui.State) string {
	classes := []string{"sidebar"}
	if s.SidebarCollapsed {
		classes = append(classes, "collapsed")
	}
	if s.SidebarToggled {
		classes = append(classes, "toggled")
	}
	if s.IsMobileView {
		classes = append(classes, "mobile")
	}
	return strings.Join(classes, " ")
}

func width(s ui.State) int {
	if s.SidebarCollapsed && !s.IsMobileView {
		return CollapsedWidth
	}
	return Width
}

func header(p Props) g.Node {
	return html.Div(html.Class("sidebar-header"),
		html.Button(
			html.Type("button"),
			html.Class("sidebar-toggle"),
			g.Attr("aria-label", "App navigation"),
			g.Attr("lv-click", EventToggleSidebar),
			toggleIcon(p.UI),
		),
		html.A(html.Href("/"), html.Class("sidebar-logo"),
			html.Img(html.Src(p.LogoURL), html.Alt("Moonstream To")),
		),
	)
}

func toggleIcon(s ui.State) g.Node {
	switch {
	case s.IsMobileView:
		return icon("menu", pathMenu)
	case s.SidebarCollapsed:
		return icon("arrow-right", pathArrowRight)
	default:
		return icon("arrow-left", pathArrowLeft)
	}
}

func content(p Props) g.Node {
	var items g.Group
	if p.UI.IsLoggedIn {
		items = loggedInItems(p.Dashboards)
	} else {
		items = loggedOutItems(p)
	}
	return html.Div(html.Class("sidebar-content"),
		html.Hr(html.Class("divider")),
		html.Ul(html.Class("menu"), items),
		html.Hr(html.Class("divider")),
	)
}

func modalItem(label string, t overlay.ModalType) g.Node {
	return html.Li(html.Class("menu-item"),
		html.Button(
			html.Type("button"),
			g.Attr("lv-click", EventOpenModal),
			g.Attr("lv-value-type", string(t)),
			g.Text(label),
		),
	)
}

func loggedOutItems(p Props) g.Group {
	items := g.Group{
		modalItem("Sign up", overlay.Signup),
		modalItem("Login", overlay.Login),
	}
	if p.UI.IsMobileView {
		for _, link := range p.SiteMap.MobileLinks() {
			items = append(items, siteLink(link))
		}
	}
	return items
}

func siteLink(l sitemap.Link) g.Node {
	return html.Li(html.Class("menu-item sitemap-item"),
		html.A(
			html.Href(l.Path),
			g.Attr("lv-click", EventCloseSidebar),
			g.If(l.IsExternal(), g.Group{html.Target("_blank"), html.Rel("noopener noreferrer")}),
			g.Text(l.Title),
		),
	)
}

func loggedInItems(state dashboards.State) g.Group {
	items := g.Group{
		html.Li(html.Class("menu-label"), g.Text("Dashboards")),
	}

	switch state.Status {
	case dashboards.Loaded:
		for _, d := range state.Dashboards {
			items = append(items, dashboardItem(d))
		}
	case dashboards.Loading:
		items = append(items, html.Li(
			html.Class("menu-item menu-placeholder"),
			g.Attr("aria-busy", "true"),
			g.Text("Loading dashboards"),
		))
	case dashboards.Failed:
		items = append(items, html.Li(html.Class("menu-item menu-error"),
			html.Button(
				html.Type("button"),
				g.Attr("lv-click", EventRefreshDashboards),
				g.Text("Could not load dashboards. Retry"),
			),
		))
	case dashboards.NotLoaded:
	}

	return append(items, html.Li(html.Class("menu-item"),
		html.Button(
			html.Type("button"),
			html.Class("btn-new-dashboard"),
			g.Attr("lv-click", EventOpenModal),
			g.Attr("lv-value-type", string(overlay.NewDashboardFlow)),
			g.Text("New dashboard"),
		),
	))
}

// DashboardPath is the page of one dashboard.
func DashboardPath(id string) string {
	return "/dashboard/" + url.PathEscape(id)
}

func dashboardItem(d dashboards.Dashboard) g.Node {
	return html.Li(
		html.Class("menu-item dashboard-item"),
		g.Attr("data-dashboard-id", d.ID),
		html.A(
			html.Href(DashboardPath(d.ID)),
			g.Attr("lv-click", EventCloseSidebar),
			icon("dashboard", pathDashboard),
			html.Span(g.Text(d.Name())),
		),
	)
}

type footerLink struct {
	path, title, icon, iconPath string
}

var footerLinks = []footerLink{
	{"/subscriptions", "Subscriptions", "settings", pathSettings},
	{"/stream", "Stream", "timeline", pathTimeline},
	{"/account/tokens", "API Tokens", "lock", pathLock},
}

func footer(p Props) g.Node {
	if !p.UI.IsLoggedIn {
		return html.Div(html.Class("sidebar-footer"))
	}

	items := make(g.Group, 0, len(footerLinks))
	for _, l := range footerLinks {
		items = append(items, html.Li(html.Class("menu-item footer-item"),
			html.A(
				html.Href(l.path),
				g.Attr("lv-click", EventCloseSidebar),
				icon(l.icon, l.iconPath),
				html.Span(g.Text(l.title)),
			),
		))
	}

	return html.Div(html.Class("sidebar-footer"),
		html.Ul(html.Class("menu"), items),
		html.Hr(html.Class("divider")),
		html.P(html.Class("copyright"), g.Textf("© %d Moonstream.to", p.Year)),
	)
}
