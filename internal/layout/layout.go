// Package layout renders the HTML document around a live view.
package layout

import (
	"context"
	"io"

	g "maragu.dev/gomponents"
	"maragu.dev/gomponents/html"

	"github.com/moonstream-to/moonlive/client"
	"github.com/moonstream-to/moonlive/pkg/core"
	"github.com/moonstream-to/moonlive/pkg/router"
)

// ScriptPrefix is where the client scripts are mounted.
const ScriptPrefix = "/_live/"

// DefaultTitle is used when a route sets none.
const DefaultTitle = "Moonstream"

// Options tune the document.
type Options struct {
	Description string
	ThemeColor  string
}

// New returns a router.Layout. The page content is the live container;
// main stays empty for the pages the sidebar links to.
func New(opts Options) router.Layout {
	if opts.ThemeColor == "" {
		opts.ThemeColor = Colors["bg"]
	}
	css := Styles()

	return func(ctx context.Context, page router.Page) core.Renderer {
		title := page.Title
		if title == "" {
			title = DefaultTitle
		} else {
			title += " | " + DefaultTitle
		}
		nonce := router.CSPNonce(ctx)

		doc := html.Doctype(html.HTML(html.Lang("en"),
			html.Head(
				html.Meta(html.Charset("utf-8")),
				html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
				html.Meta(html.Name("theme-color"), html.Content(opts.ThemeColor)),
				g.If(opts.Description != "", html.Meta(html.Name("description"), html.Content(opts.Description))),
				html.TitleEl(g.Text(title)),
				html.StyleEl(nonceAttr(nonce), g.Raw(css)),
			),
			html.Body(
				content(ctx, page.Content),
				html.Main(g.Attr("data-path", page.Path)),
				html.Script(nonceAttr(nonce), html.Src(ScriptPrefix+client.Script), g.Attr("defer")),
			),
		))
		return core.RenderNode(doc)
	}
}

func nonceAttr(nonce string) g.Node {
	return g.If(nonce != "", g.Attr("nonce", nonce))
}

// content adapts the router's renderer to a gomponents node.
func content(ctx context.Context, r core.Renderer) g.Node {
	if r == nil {
		return nil
	}
	return g.NodeFunc(func(w io.Writer) error {
		return r.Render(ctx, w)
	})
}
