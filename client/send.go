package client

import (
	"context"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/internal/reqid"
	"github.com/trustedipc/xpc/route"
)

// Result is the outcome of an asynchronous Send or SendNoReply call.
type Result[R any] struct {
	Value R
	Err   error
}

// SendNoReply posts msg as a one-way message; no reply is awaited. A nil
// error means encoding and transmission both succeeded, not that the peer
// received or processed it.
func SendNoReply[M any](ctx context.Context, c *Client, d route.Descriptor[M, route.NoType, route.NoType], msg M) error {
	conn, err := c.getConn()
	if err != nil {
		return err
	}
	tx := route.Transmit(d)
	payload, err := encodePayload(ctx, tx, msg)
	if err != nil {
		return err
	}
	requestID := reqid.New()
	reqEnv, err := envelope.EncodeRequest(ctx, tx, requestID, payload, c.bookmark)
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, reqEnv); err != nil {
		c.invalidate(conn)
		return err
	}
	return nil
}

// SendNoReplyAsync is SendNoReply run on its own goroutine, delivering the
// outcome on the returned channel.
func SendNoReplyAsync[M any](ctx context.Context, c *Client, d route.Descriptor[M, route.NoType, route.NoType], msg M) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- SendNoReply(ctx, c, d, msg)
		close(ch)
	}()
	return ch
}

// SendNoReplyHandler is SendNoReply run on its own goroutine, delivering
// the outcome to onComplete instead of blocking the caller.
func SendNoReplyHandler[M any](ctx context.Context, c *Client, d route.Descriptor[M, route.NoType, route.NoType], msg M, onComplete func(error)) {
	go onComplete(SendNoReply(ctx, c, d, msg))
}

// Send posts msg and blocks for the single correlated reply, decoding it
// as R on success or reconstructing the server's error on failure.
func Send[M, R any](ctx context.Context, c *Client, d route.Descriptor[M, R, route.NoType], msg M) (R, error) {
	var zero R
	conn, err := c.getConn()
	if err != nil {
		return zero, err
	}
	tx := route.Transmit(d)
	payload, err := encodePayload(ctx, tx, msg)
	if err != nil {
		return zero, err
	}
	requestID := reqid.New()
	reqEnv, err := envelope.EncodeRequest(ctx, tx, requestID, payload, c.bookmark)
	if err != nil {
		return zero, err
	}

	replyVal, err := conn.SendReceive(ctx, reqEnv, isReplyTo(requestID))
	if err != nil {
		c.invalidate(conn)
		return zero, err
	}
	resp, err := envelope.DecodeResponse(replyVal)
	if err != nil {
		return zero, &MalformedReplyError{Description: err.Error()}
	}
	if resp.Error != nil {
		return zero, errorFromPayload(ctx, resp.Error, d.ErrorTypes())
	}
	if resp.Payload == nil {
		return zero, nil
	}
	return codec.DecodeAsFramework[R](ctx, *resp.Payload)
}

// SendAsync is Send run on its own goroutine, delivering the outcome on
// the returned channel — the cooperative-async adapter.
func SendAsync[M, R any](ctx context.Context, c *Client, d route.Descriptor[M, R, route.NoType], msg M) <-chan Result[R] {
	ch := make(chan Result[R], 1)
	go func() {
		v, err := Send(ctx, c, d, msg)
		ch <- Result[R]{Value: v, Err: err}
		close(ch)
	}()
	return ch
}

// SendHandler is Send run on its own goroutine, delivering the outcome to
// onComplete instead of blocking the caller.
func SendHandler[M, R any](ctx context.Context, c *Client, d route.Descriptor[M, R, route.NoType], msg M, onComplete func(R, error)) {
	go func() {
		v, err := Send(ctx, c, d, msg)
		onComplete(v, err)
	}()
}
