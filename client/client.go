// Package client implements the three client construction flavors sharing
// one dispatch core: named (redials per call), service (connection cached,
// invalidated on peer loss), and endpoint-wrapping (one connection, never
// redialed).
package client

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/route"
	"github.com/trustedipc/xpc/transport"
	"github.com/trustedipc/xpc/wire"
)

type dialFunc func() (transport.Conn, error)

// Client is a bound peer, ready to issue calls against any route
// registered on the far side. A zero Client is not usable; construct one
// with NewNamedClient, NewServiceClient, or NewEndpointClient.
type Client struct {
	mu         sync.Mutex
	conn       transport.Conn
	dial       dialFunc // nil for an endpoint client, which cannot redial
	persistent bool     // false: redial every call (named); true: cache
	bookmark   []byte
	log        *logrus.Logger
}

func newClient(dial dialFunc, persistent bool, bookmark []byte, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{dial: dial, persistent: persistent, bookmark: bookmark, log: log}
}

// NewNamedClient constructs a client against a well-known listener name.
// Its connection may be re-created on demand for each call; nothing is
// cached between calls.
func NewNamedClient(t transport.Transport, name string, bookmark []byte, log *logrus.Logger) *Client {
	return newClient(func() (transport.Conn, error) { return t.Dial(name) }, false, bookmark, log)
}

// NewServiceClient constructs a client against a well-known listener name
// whose connection is cached across calls and only re-dialed after the
// transport reports the peer invalid or interrupted.
func NewServiceClient(t transport.Transport, name string, bookmark []byte, log *logrus.Logger) *Client {
	return newClient(func() (transport.Conn, error) { return t.Dial(name) }, true, bookmark, log)
}

// NewEndpointClient materializes a connection from a previously minted
// portable endpoint. The connection is established once; if it is later
// invalidated, every subsequent call fails with
// ConnectionCannotBeReestablishedError.
func NewEndpointClient(t transport.Transport, ep wire.Endpoint, bookmark []byte, log *logrus.Logger) (*Client, error) {
	conn, err := t.DialEndpoint(ep)
	if err != nil {
		return nil, fmt.Errorf("client: dial endpoint: %w", err)
	}
	c := newClient(nil, true, bookmark, log)
	c.cacheConnLocked(conn)
	return c, nil
}

func (c *Client) getConn() (transport.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.persistent && c.conn != nil {
		return c.conn, nil
	}
	if c.dial == nil {
		return nil, ConnectionCannotBeReestablishedError{}
	}
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	if c.persistent {
		c.cacheConnLocked(conn)
	}
	return conn, nil
}

// cacheConnLocked stores conn as the client's active connection and starts
// a watcher that clears it on peer loss. Callers must hold c.mu, except at
// construction time before the Client is shared.
func (c *Client) cacheConnLocked(conn transport.Conn) {
	c.conn = conn
	go c.watch(conn)
}

func (c *Client) watch(conn transport.Conn) {
	for ev := range conn.Events() {
		if ev.Kind == transport.EventPeerInvalid || ev.Kind == transport.EventPeerInterrupted {
			c.invalidate(conn)
			return
		}
	}
	c.invalidate(conn)
}

func (c *Client) invalidate(conn transport.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func isReplyTo(requestID uuid.UUID) func(wire.Value) bool {
	return func(v wire.Value) bool {
		d, err := v.AsDict()
		if err != nil {
			return false
		}
		idVal, ok := d.Get(envelope.KeyRequestID)
		if !ok {
			return false
		}
		id, err := idVal.AsUUID()
		if err != nil {
			return false
		}
		return id == requestID
	}
}

func encodePayload(ctx context.Context, tx route.Transmitted, msg any) (*wire.Value, error) {
	if tx.MessageType == nil {
		return nil, nil
	}
	v, err := codec.EncodeFramework(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// errorFromPayload reconstructs the error delivered in an error response.
// When the server included structured underlying data and its type name
// matches one of declaredTypes, the concrete error value is decoded and
// returned as RemoteError.Underlying; otherwise Underlying is nil and only
// the localized description survives.
func errorFromPayload(ctx context.Context, payload *envelope.ErrorPayload, declaredTypes []reflect.Type) error {
	re := &RemoteError{LocalizedDescription: payload.LocalizedDescription, TypeName: payload.TypeName}
	if payload.UnderlyingError == nil {
		return re
	}
	for _, declared := range declaredTypes {
		if declared.String() != payload.TypeName {
			continue
		}
		structType := declared
		isPtr := declared.Kind() == reflect.Ptr
		if isPtr {
			structType = declared.Elem()
		}
		ptr := reflect.New(structType)
		if err := codec.DecodeFramework(ctx, wire.DictValue(payload.UnderlyingError), ptr.Interface()); err != nil {
			break
		}
		candidate := ptr.Elem().Interface()
		if isPtr {
			candidate = ptr.Interface()
		}
		if concrete, ok := candidate.(error); ok {
			re.Underlying = concrete
		}
		break
	}
	return re
}
