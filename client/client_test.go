package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/route"
	"github.com/trustedipc/xpc/transport"
	"github.com/trustedipc/xpc/trust"
	"github.com/trustedipc/xpc/wire"
)

type echoRequest struct{ Text string }
type echoReply struct{ Text string }

type configError struct{ Code string }

func (e *configError) Error() string { return "config error: " + e.Code }

// fakeConn simulates a peer that answers every request synchronously
// through replyFor, without any real transport underneath.
type fakeConn struct {
	mu       sync.Mutex
	sent     []wire.Value
	replyFor func(req wire.Value) []wire.Value
	events   chan transport.Event
	closed   bool
}

func newFakeConn(replyFor func(wire.Value) []wire.Value) *fakeConn {
	return &fakeConn{replyFor: replyFor, events: make(chan transport.Event)}
}

func (c *fakeConn) Send(ctx context.Context, v wire.Value) error {
	c.mu.Lock()
	c.sent = append(c.sent, v)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SendReceive(ctx context.Context, v wire.Value, isReply func(wire.Value) bool) (wire.Value, error) {
	_ = c.Send(ctx, v)
	for _, r := range c.replyFor(v) {
		if isReply(r) {
			return r, nil
		}
	}
	return wire.Value{}, fmt.Errorf("fakeConn: no reply matched")
}

func (c *fakeConn) SendSubscribe(ctx context.Context, v wire.Value, isReply func(wire.Value) bool) (<-chan wire.Value, func(), error) {
	_ = c.Send(ctx, v)
	ch := make(chan wire.Value, 16)
	for _, r := range c.replyFor(v) {
		if isReply(r) {
			ch <- r
		}
	}
	close(ch)
	return ch, func() {}, nil
}

func (c *fakeConn) Events() <-chan transport.Event { return c.events }

func (c *fakeConn) PeerIdentity(ctx context.Context) (trust.PeerIdentity, error) {
	return trust.PeerIdentity{}, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func requestID(t *testing.T, req wire.Value) uuid.UUID {
	t.Helper()
	r, err := envelope.DecodeRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	return r.RequestID
}

type fakeTransport struct {
	mu       sync.Mutex
	dials    int
	dialFunc func() transport.Conn
}

func (t *fakeTransport) Dial(name string) (transport.Conn, error) {
	t.mu.Lock()
	t.dials++
	t.mu.Unlock()
	return t.dialFunc(), nil
}
func (t *fakeTransport) ListenNamed(string) (transport.Listener, error)    { return nil, nil }
func (t *fakeTransport) ListenAnonymous() (transport.Listener, error)      { return nil, nil }
func (t *fakeTransport) DialEndpoint(wire.Endpoint) (transport.Conn, error) { return t.dialFunc(), nil }

func echoRoute() route.Descriptor[echoRequest, echoReply, route.NoType] {
	return route.WithReply[echoReply](route.WithMessage[echoRequest](route.NamedRoute("echo")))
}

func TestSendRoundTrip(t *testing.T) {
	t.Parallel()

	d := echoRoute()
	conn := newFakeConn(func(req wire.Value) []wire.Value {
		id := requestID(t, req)
		payload, err := envelope.EncodeResponse(id, mustEncode(t, echoReply{Text: "echoed"}))
		if err != nil {
			t.Fatalf("EncodeResponse: %v", err)
		}
		return []wire.Value{payload}
	})
	c := newClient(func() (transport.Conn, error) { return conn, nil }, false, nil, nil)

	reply, err := Send(context.Background(), c, d, echoRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != "echoed" {
		t.Fatalf("reply.Text = %q, want %q", reply.Text, "echoed")
	}
}

func TestSendNoReplyDoesNotWaitForAReply(t *testing.T) {
	t.Parallel()

	d := route.WithMessage[echoRequest](route.NamedRoute("fire"))
	conn := newFakeConn(func(wire.Value) []wire.Value { return nil })
	c := newClient(func() (transport.Conn, error) { return conn, nil }, false, nil, nil)

	if err := SendNoReply(context.Background(), c, d, echoRequest{Text: "go"}); err != nil {
		t.Fatalf("SendNoReply: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1", len(conn.sent))
	}
}

func TestSendReconstructsDeclaredError(t *testing.T) {
	t.Parallel()

	d := route.Throws[*configError](echoRoute())
	conn := newFakeConn(func(req wire.Value) []wire.Value {
		id := requestID(t, req)
		underlying, err := mustEncode(t, &configError{Code: "E42"}).AsDict()
		if err != nil {
			t.Fatalf("AsDict: %v", err)
		}
		payload, err := envelope.EncodeErrorResponse(id, envelope.ErrorPayload{
			LocalizedDescription: "config error: E42",
			TypeName:              "*client.configError",
			UnderlyingError:       underlying,
		})
		if err != nil {
			t.Fatalf("EncodeErrorResponse: %v", err)
		}
		return []wire.Value{payload}
	})
	c := newClient(func() (transport.Conn, error) { return conn, nil }, false, nil, nil)

	_, err := Send(context.Background(), c, d, echoRequest{Text: "hi"})
	if err == nil {
		t.Fatal("expected an error")
	}
	re, ok := err.(*RemoteError)
	if !ok {
		t.Fatalf("err = %T, want *RemoteError", err)
	}
	cfgErr, ok := re.Underlying.(*configError)
	if !ok {
		t.Fatalf("Underlying = %T, want *configError", re.Underlying)
	}
	if cfgErr.Code != "E42" {
		t.Fatalf("Code = %q, want %q", cfgErr.Code, "E42")
	}
}

func TestSendStreamDeliversChunksThenFinishes(t *testing.T) {
	t.Parallel()

	d := route.WithSequentialReply[int64](route.WithMessage[echoRequest](route.NamedRoute("count")))
	conn := newFakeConn(func(req wire.Value) []wire.Value {
		id := requestID(t, req)
		var replies []wire.Value
		for i := int64(1); i <= 3; i++ {
			v, err := envelope.EncodeResponse(id, mustEncode(t, i))
			if err != nil {
				t.Fatalf("EncodeResponse: %v", err)
			}
			replies = append(replies, v)
		}
		finished, err := envelope.EncodeResponse(id, nil)
		if err != nil {
			t.Fatalf("EncodeResponse: %v", err)
		}
		return append(replies, finished)
	})
	c := newClient(func() (transport.Conn, error) { return conn, nil }, false, nil, nil)

	ch, cancel, err := SendStream(context.Background(), c, d, echoRequest{Text: "go"})
	if err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	defer cancel()

	var got []int64
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		got = append(got, chunk.Value)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("got = %v, want [1 2 3]", got)
	}
}

func TestServiceClientCachesConnectionUntilInvalidated(t *testing.T) {
	t.Parallel()

	d := route.WithReply[echoReply](route.NamedRoute("ping"))
	tr := &fakeTransport{dialFunc: func() transport.Conn {
		return newFakeConn(func(req wire.Value) []wire.Value {
			id := requestID(t, req)
			v, _ := envelope.EncodeResponse(id, mustEncode(t, echoReply{Text: "pong"}))
			return []wire.Value{v}
		})
	}}
	c := NewServiceClient(tr, "svc", nil, nil)

	if _, err := Send(context.Background(), c, d, route.NoType{}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if _, err := Send(context.Background(), c, d, route.NoType{}); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	tr.mu.Lock()
	dials := tr.dials
	tr.mu.Unlock()
	if dials != 1 {
		t.Fatalf("dials = %d, want 1 (connection should be cached)", dials)
	}

	c.mu.Lock()
	conn := c.conn.(*fakeConn)
	c.mu.Unlock()
	conn.events <- transport.Event{Kind: transport.EventPeerInvalid}
	close(conn.events)

	waitForInvalidation(t, c)

	if _, err := Send(context.Background(), c, d, route.NoType{}); err != nil {
		t.Fatalf("third Send after invalidation: %v", err)
	}
	tr.mu.Lock()
	dials = tr.dials
	tr.mu.Unlock()
	if dials != 2 {
		t.Fatalf("dials = %d, want 2 (peer-invalid should force a redial)", dials)
	}
}

func waitForInvalidation(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("connection was never invalidated")
}

func TestEndpointClientCannotReconnect(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(func(wire.Value) []wire.Value { return nil })
	tr := &fakeTransport{dialFunc: func() transport.Conn { return conn }}
	c, err := NewEndpointClient(tr, wire.Endpoint{Address: "anon"}, nil, nil)
	if err != nil {
		t.Fatalf("NewEndpointClient: %v", err)
	}

	close(conn.events)
	waitForInvalidation(t, c)

	d := route.WithMessage[echoRequest](route.NamedRoute("fire"))
	err = SendNoReply(context.Background(), c, d, echoRequest{Text: "go"})
	if _, ok := err.(ConnectionCannotBeReestablishedError); !ok {
		t.Fatalf("err = %v, want ConnectionCannotBeReestablishedError", err)
	}
}

func mustEncode(t *testing.T, v any) *wire.Value {
	t.Helper()
	enc, err := codec.EncodeFramework(context.Background(), v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &enc
}
