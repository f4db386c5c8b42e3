package layout

import (
	"slices"
	"strings"
)

// Colors is the sidebar palette, exposed to the stylesheet as
// --color-<name> custom properties.
var Colors = map[string]string{
	"bg":        "#1A1D22",
	"bgAlt":     "#23272E",
	"bgHover":   "#2F343C",
	"text":      "#FFFFFF",
	"textMuted": "#C2C2C2",
	"accent":    "#F56646",
	"border":    "#3A3F47",
}

// FontFamily uses the system stack so nothing is fetched before first paint.
const FontFamily = `system-ui, -apple-system, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif`

// Styles returns the page stylesheet.
func Styles() string {
	var sb strings.Builder
	sb.WriteString(cssVariables())
	sb.WriteString(cssBase)
	sb.WriteString(cssSidebar)
	return sb.String()
}

func cssVariables() string {
	names := make([]string, 0, len(Colors))
	for name := range Colors {
		names = append(names, name)
	}
	slices.Sort(names)

	var sb strings.Builder
	sb.WriteString(":root{")
	for _, name := range names {
		sb.WriteString("--color-" + name + ":" + Colors[name] + ";")
	}
	sb.WriteString("--font:" + FontFamily + "}\n")
	return sb.String()
}

const cssBase = `
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
body{font-family:var(--font);background:var(--color-bg);color:var(--color-text);min-height:100vh;display:flex}
a{color:inherit;text-decoration:none}
button{font:inherit;color:inherit;background:none;border:none;cursor:pointer}
main{flex:1;padding:1.5rem}
`

// Mobile drawer below the breakpoint, fixed column above it.
const cssSidebar = `
.sidebar{display:flex;flex-direction:column;height:100vh;position:sticky;top:0;background:var(--color-bgAlt);border-right:1px solid var(--color-border);transition:width .2s ease;overflow:hidden}
.sidebar[hidden]{display:none}
.sidebar-header{display:flex;align-items:center;gap:.75rem;padding:1rem}
.sidebar-logo img{height:2rem}
.sidebar.collapsed .sidebar-logo,.sidebar.collapsed span,.sidebar.collapsed .menu-label{display:none}
.sidebar-content{flex:1;overflow-y:auto}
.sidebar ul{list-style:none}
.divider{border:0;border-top:1px solid var(--color-border)}
.sidebar li>a,.sidebar li>button{display:flex;align-items:center;gap:.75rem;width:100%;padding:.6rem 1rem;min-height:2.75rem;text-align:left}
.sidebar li>a:hover,.sidebar li>button:hover{background:var(--color-bgHover)}
.menu-label{padding:.75rem 1rem .25rem;font-size:.75rem;text-transform:uppercase;color:var(--color-textMuted)}
.icon{width:1.5rem;height:1.5rem;fill:currentColor;flex-shrink:0}
.sidebar-footer{border-top:1px solid var(--color-border);padding:.5rem 0;font-size:.875rem}
.sidebar-footer .copyright{padding:.5rem 1rem;color:var(--color-textMuted)}
.sidebar.mobile{position:fixed;left:0;z-index:100;transform:translateX(-100%);transition:transform .2s ease}
.sidebar.mobile.toggled{transform:none}
.sidebar.mobile .sidebar-header{transform:translateX(100%)}
.sidebar.mobile.toggled .sidebar-header{transform:none}
`
