package router

import (
	"github.com/moonstream-to/moonlive/pkg/core"
	"github.com/moonstream-to/moonlive/pkg/protocol"
	"github.com/moonstream-to/moonlive/pkg/transport"
)

// transportAdapter lets a core.Socket write through a transport.Transport.
type transportAdapter struct {
	tr transport.Transport
}

func newTransportAdapter(tr transport.Transport) *transportAdapter {
	return &transportAdapter{tr: tr}
}

func (a *transportAdapter) Send(msg core.Message) error {
	out := protocol.NewMessage(msg.Topic, msg.Event, msg.Payload)
	out.Ref = msg.Ref
	return a.tr.Send(out)
}

func (a *transportAdapter) Close() error {
	return a.tr.Close()
}

func (a *transportAdapter) IsConnected() bool {
	return a.tr.IsConnected()
}
