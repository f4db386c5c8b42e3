// Package sitemap holds the static navigation map of the site.
package sitemap

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every parse failure.
var ErrInvalid = errors.New("invalid site map")

// PageType tags an entry or link.
type PageType string

const (
	View           PageType = "view"
	External       PageType = "external"
	Content        PageType = "content"
	Category       PageType = "category"
	FooterCategory PageType = "footer_category"
)

func (t PageType) valid() bool {
	switch t {
	case View, External, Content, Category, FooterCategory:
		return true
	}
	return false
}

// Link is a navigable page.
type Link struct {
	Title string   `yaml:"title" json:"title"`
	Path  string   `yaml:"path" json:"path"`
	Type  PageType `yaml:"type" json:"type"`
}

// IsExternal reports whether the link leaves the app.
func (l Link) IsExternal() bool {
	return l.Type == External
}

// Entry is a top-level item of the map with optional child links.
type Entry struct {
	Title    string   `yaml:"title" json:"title"`
	Path     string   `yaml:"path" json:"path"`
	Type     PageType `yaml:"type" json:"type"`
	Children []Link   `yaml:"children,omitempty" json:"children,omitempty"`
}

// SiteMap is the ordered list of entries.
type SiteMap []Entry

//go:embed sitemap.yaml
var embedded []byte

// Parse reads a site map from YAML.
func Parse(data []byte) (SiteMap, error) {
	var m SiteMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i, e := range m {
		if err := check(e.Title, e.Path, e.Type); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalid, i, err)
		}
		for j, c := range e.Children {
			if err := check(c.Title, c.Path, c.Type); err != nil {
				return nil, fmt.Errorf("%w: entry %d child %d: %v", ErrInvalid, i, j, err)
			}
		}
	}
	return m, nil
}

func check(title, path string, t PageType) error {
	switch {
	case title == "":
		return errors.New("empty title")
	case path == "":
		return fmt.Errorf("%q has no path", title)
	case !t.valid():
		return fmt.Errorf("%q has unknown type %q", title, t)
	}
	return nil
}

var loadDefault = sync.OnceValues(func() (SiteMap, error) {
	return Parse(embedded)
})

// Default returns the built-in site map. It panics if the embedded data is
// broken, which tests catch.
func Default() SiteMap {
	m, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return m
}

// Links flattens the children of every entry keep accepts, in order.
func (m SiteMap) Links(keep func(Entry) bool) []Link {
	var out []Link
	for _, e := range m {
		if !keep(e) {
			continue
		}
		out = append(out, e.Children...)
	}
	return out
}

// MobileLinks returns the child links of every entry that is not a footer
// category. The mobile sidebar lists them for signed-out users.
func (m SiteMap) MobileLinks() []Link {
	return m.Links(func(e Entry) bool {
		return e.Type != FooterCategory
	})
}

// FooterLinks returns the children of footer categories.
func (m SiteMap) FooterLinks() []Link {
	return m.Links(func(e Entry) bool {
		return e.Type == FooterCategory
	})
}
