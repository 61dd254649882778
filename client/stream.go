package client

import (
	"context"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/internal/reqid"
	"github.com/trustedipc/xpc/route"
)

// StreamChunk is one element of a sequential reply: either a decoded
// value or a terminal error. A chunk carrying Err is always the last one
// delivered.
type StreamChunk[S any] struct {
	Value S
	Err   error
}

// SendStream posts msg and subscribes to every correlated reply, decoding
// each as S. The returned channel is closed when the server sends the
// finished sentinel, when it sends an error (delivered as the final
// chunk), or when the connection becomes invalid. cancel unsubscribes
// early without waiting for either.
func SendStream[M, S any](ctx context.Context, c *Client, d route.Descriptor[M, route.NoType, S], msg M) (<-chan StreamChunk[S], func(), error) {
	conn, err := c.getConn()
	if err != nil {
		return nil, nil, err
	}
	tx := route.Transmit(d)
	payload, err := encodePayload(ctx, tx, msg)
	if err != nil {
		return nil, nil, err
	}
	requestID := reqid.New()
	reqEnv, err := envelope.EncodeRequest(ctx, tx, requestID, payload, c.bookmark)
	if err != nil {
		return nil, nil, err
	}

	replies, cancelSub, err := conn.SendSubscribe(ctx, reqEnv, isReplyTo(requestID))
	if err != nil {
		c.invalidate(conn)
		return nil, nil, err
	}

	out := make(chan StreamChunk[S], 8)
	go func() {
		defer close(out)
		for v := range replies {
			resp, err := envelope.DecodeResponse(v)
			if err != nil {
				out <- StreamChunk[S]{Err: &MalformedReplyError{Description: err.Error()}}
				return
			}
			if resp.IsFinished() {
				return
			}
			if resp.Error != nil {
				out <- StreamChunk[S]{Err: errorFromPayload(ctx, resp.Error, d.ErrorTypes())}
				return
			}
			if resp.Payload == nil {
				continue
			}
			value, err := codec.DecodeAsFramework[S](ctx, *resp.Payload)
			if err != nil {
				out <- StreamChunk[S]{Err: err}
				return
			}
			out <- StreamChunk[S]{Value: value}
		}
		// The subscription channel closed without a finished sentinel: the
		// connection became invalid mid-stream.
		c.invalidate(conn)
	}()

	return out, cancelSub, nil
}

// SendStreamHandler is SendStream with a per-chunk callback instead of a
// channel. onChunk returning false, or delivering a chunk with a non-nil
// Err, ends consumption and unsubscribes.
func SendStreamHandler[M, S any](ctx context.Context, c *Client, d route.Descriptor[M, route.NoType, S], msg M, onChunk func(S, error) bool) {
	ch, cancel, err := SendStream(ctx, c, d, msg)
	if err != nil {
		onChunk(*new(S), err)
		return
	}
	go func() {
		defer cancel()
		for chunk := range ch {
			cont := onChunk(chunk.Value, chunk.Err)
			if chunk.Err != nil || !cont {
				return
			}
		}
	}()
}
