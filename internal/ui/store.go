// Package ui holds the layout flags the sidebar reads and mutates.
package ui

import (
	"github.com/moonstream-to/moonlive/pkg/core"
)

// Assign keys used by Store.
const (
	KeySidebarToggled   = "ui.sidebar_toggled"
	KeySidebarCollapsed = "ui.sidebar_collapsed"
	KeySidebarVisible   = "ui.sidebar_visible"
	KeyMobileView       = "ui.mobile_view"
	KeyLoggedIn         = "ui.logged_in"
)

// State is a read-only snapshot of the flags.
type State struct {
	// SidebarToggled opens the drawer on mobile.
	SidebarToggled bool
	// SidebarCollapsed narrows the sidebar on desktop.
	SidebarCollapsed bool
	SidebarVisible   bool
	IsMobileView     bool
	IsLoggedIn       bool
}

// Store keeps the flags in a component's assigns so every setter is
// visible to the change tracker.
type Store struct {
	assigns *core.Assigns
}

// NewStore wraps assigns. A fresh store has a visible, expanded, closed
// desktop sidebar and a logged-out user.
func NewStore(assigns *core.Assigns) *Store {
	s := &Store{assigns: assigns}
	if assigns.Get(KeySidebarVisible) == nil {
		assigns.SetAll(map[string]any{
			KeySidebarToggled:   false,
			KeySidebarCollapsed: false,
			KeySidebarVisible:   true,
			KeyMobileView:       false,
			KeyLoggedIn:         false,
		})
	}
	return s
}

// Snapshot returns the current flags.
func (s *Store) Snapshot() State {
	return State{
		SidebarToggled:   s.assigns.GetBool(KeySidebarToggled),
		SidebarCollapsed: s.assigns.GetBool(KeySidebarCollapsed),
		SidebarVisible:   s.assigns.GetBool(KeySidebarVisible),
		IsMobileView:     s.assigns.GetBool(KeyMobileView),
		IsLoggedIn:       s.assigns.GetBool(KeyLoggedIn),
	}
}

func (s *Store) SetSidebarToggled(v bool) {
	s.assigns.Set(KeySidebarToggled, v)
}

func (s *Store) SetSidebarCollapsed(v bool) {
	s.assigns.Set(KeySidebarCollapsed, v)
}

func (s *Store) SetSidebarVisible(v bool) {
	s.assigns.Set(KeySidebarVisible, v)
}

func (s *Store) SetLoggedIn(v bool) {
	s.assigns.Set(KeyLoggedIn, v)
}

// SetMobileView switches between the mobile drawer and the desktop rail.
// Entering mobile view drops the desktop collapse, leaving it closes the
// drawer.
func (s *Store) SetMobileView(mobile bool) {
	if mobile == s.assigns.GetBool(KeyMobileView) {
		return
	}
	if mobile {
		s.assigns.SetAll(map[string]any{KeyMobileView: true, KeySidebarCollapsed: false})
	} else {
		s.assigns.SetAll(map[string]any{KeyMobileView: false, KeySidebarToggled: false})
	}
}
