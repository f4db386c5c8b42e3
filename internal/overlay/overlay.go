// Package overlay asks the browser to open or close one of the app's modal
// dialogs. The dialogs themselves live on the client; the server only
// sends the request and remembers which one it last opened.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moonstream-to/moonlive/pkg/logging"
)

// ErrUnknownModal is returned for a modal type outside the fixed set.
var ErrUnknownModal = errors.New("unknown modal type")

// ModalEvent is the client event pushed for every request.
const ModalEvent = "modal"

// ModalType names a dialog.
type ModalType string

const (
	Signup           ModalType = "signup"
	Login            ModalType = "login"
	NewDashboardFlow ModalType = "new_dashboard_flow"
	// Off closes whatever modal is open.
	Off ModalType = "off"
)

// ParseModalType validates a type received from the client.
func ParseModalType(s string) (ModalType, error) {
	switch t := ModalType(s); t {
	case Signup, Login, NewDashboardFlow, Off:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownModal, s)
	}
}

// Request is a fire-and-forget modal request.
type Request struct {
	Type ModalType
}

// Pusher delivers a named event to the connected client. *core.Socket
// satisfies it.
type Pusher interface {
	Push(event string, payload map[string]any) error
}

// Recorder counts modal requests.
type Recorder interface {
	ModalRequested(modalType string)
}

// Controller turns modal requests into client pushes. A nil pusher records
// requests without sending them, as during a dead render.
type Controller struct {
	pusher   Pusher
	recorder Recorder

	mu     sync.Mutex
	active ModalType
}

// NewController creates a controller. Either argument may be nil.
func NewController(pusher Pusher, recorder Recorder) *Controller {
	return &Controller{pusher: pusher, recorder: recorder, active: Off}
}

// ToggleModal opens req.Type, or closes the open modal for Off.
func (c *Controller) ToggleModal(ctx context.Context, req Request) error {
	if _, err := ParseModalType(string(req.Type)); err != nil {
		return err
	}

	c.mu.Lock()
	c.active = req.Type
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.ModalRequested(string(req.Type))
	}
	logging.L(ctx).Debug("modal requested", logging.String("modal", string(req.Type)))

	if c.pusher == nil {
		return nil
	}
	if err := c.pusher.Push(ModalEvent, map[string]any{
		"type": string(req.Type),
		"open": req.Type != Off,
	}); err != nil {
		return fmt.Errorf("push %s modal: %w", req.Type, err)
	}
	return nil
}

// Active returns the last requested modal, Off when none is open.
func (c *Controller) Active() ModalType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
