package sidebar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/moonstream-to/moonlive/internal/overlay"
	"github.com/moonstream-to/moonlive/internal/ui"
)

// Client events raised by the view.
const (
	EventToggleSidebar     = "toggle-sidebar"
	EventCloseSidebar      = "close-sidebar"
	EventOpenModal         = "open-modal"
	EventViewport          = "viewport"
	EventRefreshDashboards = "refresh-dashboards"
)

// DefaultBreakpoint is the viewport width, in CSS pixels, below which the
// sidebar is a mobile drawer.
const DefaultBreakpoint = 992

// MaxViewportWidth caps reported widths before they are converted to int.
const MaxViewportWidth = 1 << 20

// Dispatch errors.
var (
	ErrUnknownEvent = errors.New("unknown sidebar event")
	ErrBadPayload   = errors.New("bad event payload")
)

// Handles are the mutations an event may trigger.
type Handles interface {
	SetSidebarToggled(bool)
	SetSidebarCollapsed(bool)
	SetMobileView(bool)
	ToggleModal(ctx context.Context, req overlay.Request) error
	RefreshDashboards(ctx context.Context) error
}

// Dispatcher maps client events to Handles calls.
type Dispatcher struct {
	Breakpoint int
}

// NewDispatcher uses DefaultBreakpoint when breakpoint is not positive.
func NewDispatcher(breakpoint int) Dispatcher {
	if breakpoint <= 0 {
		breakpoint = DefaultBreakpoint
	}
	return Dispatcher{Breakpoint: breakpoint}
}

// Dispatch applies event given the flags at the time of the click.
func (d Dispatcher) Dispatch(ctx context.Context, event string, payload map[string]any, state ui.State, h Handles) error {
	switch event {
	case EventToggleSidebar:
		if state.IsMobileView {
			h.SetSidebarToggled(!state.SidebarToggled)
		} else {
			h.SetSidebarCollapsed(!state.SidebarCollapsed)
		}
		return nil

	case EventCloseSidebar:
		h.SetSidebarToggled(false)
		return nil

	case EventOpenModal:
		raw, _ := payload["type"].(string)
		t, err := overlay.ParseModalType(raw)
		if err != nil {
			return err
		}
		if err := h.ToggleModal(ctx, overlay.Request{Type: t}); err != nil {
			return err
		}
		h.SetSidebarToggled(false)
		return nil

	case EventViewport:
		w, ok := intValue(payload["width"])
		if !ok || w <= 0 {
			return fmt.Errorf("%w: width %v", ErrBadPayload, payload["width"])
		}
		h.SetMobileView(d.IsMobile(w))
		return nil

	case EventRefreshDashboards:
		return h.RefreshDashboards(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}

// Events lists the client events Dispatch accepts.
func (d Dispatcher) Events() []string {
	return []string{
		EventToggleSidebar,
		EventCloseSidebar,
		EventOpenModal,
		EventViewport,
		EventRefreshDashboards,
	}
}

// IsMobile reports whether a viewport of width is below the breakpoint.
func (d Dispatcher) IsMobile(width int) bool {
	return width < d.Breakpoint
}

// intValue reads a number that may arrive as a JSON float, a MessagePack
// integer of any width, or an lv-value string.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(min(n, MaxViewportWidth)), true
	case float32:
		return roundWidth(float64(n))
	case float64:
		return roundWidth(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return roundWidth(f)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return roundWidth(f)
	default:
		return 0, false
	}
}

// roundWidth rounds a positive width, capped at MaxViewportWidth. NaN and
// non-positive values are rejected.
func roundWidth(f float64) (int, bool) {
	if math.IsNaN(f) || f <= 0 {
		return 0, false
	}
	return int(math.Round(math.Min(f, MaxViewportWidth))), true
}
