// Package transport defines the external capability surface the core
// engines run against, and provides a concrete implementation over
// SOCK_SEQPACKET unix-domain sockets with out-of-band SCM_RIGHTS
// file-descriptor passing.
package transport

import (
	"context"

	"github.com/trustedipc/xpc/trust"
	"github.com/trustedipc/xpc/wire"
)

// EventKind tags the variant held by an Event.
type EventKind int

const (
	// EventUnknown is the zero value; it should never be observed.
	EventUnknown EventKind = iota
	// EventMessage carries a decoded wire.Value sent by the peer.
	EventMessage
	// EventPeerInvalid reports that the peer's connection has become
	// permanently unusable (closed, or an unrecoverable protocol error).
	EventPeerInvalid
	// EventPeerInterrupted reports that the peer's process has gone away,
	// but the connection's resources have not yet been fully reclaimed.
	EventPeerInterrupted
	// EventImminentTermination reports that the local process is about to
	// be terminated by the host (no unix-socket equivalent exists; this
	// repository's transport never emits it, but the shape is preserved so
	// other Transport implementations can surface it).
	EventImminentTermination
)

// String renders the kind name for diagnostics.
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventPeerInvalid:
		return "peer-invalid"
	case EventPeerInterrupted:
		return "peer-interrupted"
	case EventImminentTermination:
		return "imminent-termination"
	default:
		return "unknown"
	}
}

// Event is one item read off a Conn's event stream.
type Event struct {
	Kind  EventKind
	Value wire.Value
}

// Conn is one peer-to-peer connection. All methods are safe for
// concurrent use; in particular SendReceive/SendSubscribe may be called
// concurrently by multiple in-flight requests sharing one Conn, each
// supplying a matcher that only recognizes its own reply.
type Conn interface {
	// Send transmits v without waiting for any reply.
	Send(ctx context.Context, v wire.Value) error

	// SendReceive transmits v and blocks for the first subsequent message
	// for which isReply returns true, or until ctx is done or the
	// connection becomes invalid.
	SendReceive(ctx context.Context, v wire.Value, isReply func(wire.Value) bool) (wire.Value, error)

	// SendSubscribe transmits v and returns a channel that receives every
	// subsequent message for which isReply returns true, until cancel is
	// called or the connection becomes invalid (in which case the channel
	// is closed).
	SendSubscribe(ctx context.Context, v wire.Value, isReply func(wire.Value) bool) (ch <-chan wire.Value, cancel func(), err error)

	// Events returns the connection's raw event stream: every inbound
	// message not claimed by an outstanding SendReceive/SendSubscribe
	// waiter, plus lifecycle events. Server-side per-connection dispatch
	// reads this directly.
	Events() <-chan Event

	// PeerIdentity returns the connected peer's credentials.
	PeerIdentity(ctx context.Context) (trust.PeerIdentity, error)

	// Close tears down the connection.
	Close() error
}

// Listener accepts incoming connections for one named or anonymous
// service.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Endpoint() wire.Endpoint
}

// Transport is the external capability surface the server and client
// engines are built against.
type Transport interface {
	ListenNamed(name string) (Listener, error)
	ListenAnonymous() (Listener, error)
	Dial(name string) (Conn, error)
	DialEndpoint(ep wire.Endpoint) (Conn, error)
}
