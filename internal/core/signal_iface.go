package core

import (
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/peerdial/peerdial/internal/proto"
)

// Frame is a raw wire payload.
type Frame []byte

// TransportState tracks the relay connection as the session layer sees it.
type TransportState int

const (
	TransportConnecting TransportState = iota
	// TransportRegistered: connected and the relay confirmed our identity.
	TransportRegistered
	// TransportDown: connection lost; outstanding sessions must be failed.
	// The transport keeps reconnecting on its own.
	TransportDown
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportRegistered:
		return "registered"
	case TransportDown:
		return "down"
	}
	return "unknown"
}

// TransportEvent is one delivery from the transport: either a decoded
// signaling message or a connection state change, never both.
type TransportEvent struct {
	Msg   proto.Inbound
	State TransportState
}

// SignalTransport abstracts the persistent relay connection.
// Owned by whoever dialed it; the owner must Close() it.
type SignalTransport interface {
	// Send marshals and enqueues one signaling message. Returns
	// ErrSignalingDown when the relay is unreachable; delivery is
	// fire-and-forget beyond that.
	Send(msg any) error
	// ConnID is the transport id the relay assigned on the current
	// connection, empty until registered.
	ConnID() domain.ConnID
	// Events returns the stream the session layer consumes. The channel is
	// closed when the transport shuts down for good.
	Events() <-chan TransportEvent
	Close()
}
