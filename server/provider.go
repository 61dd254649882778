package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/route"
	"github.com/trustedipc/xpc/transport"
)

// StreamProvider is handed to a streaming handler so it can emit
// correlated partial responses for the lifetime of one request. All
// operations are serialized by an internal lock, matching spec's "posted
// to the provider's serial dispatcher". Once finished — by Finished, by
// Failure, by an encoding failure, or because the handler returned
// without calling any of these (provider drop) — every later operation is
// a no-op that reports through the server's error handler instead of the
// reply channel.
type StreamProvider[S any] struct {
	mu        sync.Mutex
	done      bool
	route     route.Route
	requestID uuid.UUID
	conn      transport.Conn
	onError   func(ctx context.Context, err error, requestID uuid.UUID, kind string)
	log       *logrus.Logger
}

func newStreamProvider[S any](r route.Route, requestID uuid.UUID, conn transport.Conn, onError func(context.Context, error, uuid.UUID, string), log *logrus.Logger) *StreamProvider[S] {
	return &StreamProvider[S]{route: r, requestID: requestID, conn: conn, onError: onError, log: log}
}

// Success emits one successful element.
func (p *StreamProvider[S]) Success(ctx context.Context, value S) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		p.reportFinishedLocked(ctx)
		return nil
	}
	payload, err := codec.EncodeFramework(ctx, value)
	if err != nil {
		p.done = true
		p.onError(ctx, err, p.requestID, "encoding-error")
		return err
	}
	v, err := envelope.EncodeResponse(p.requestID, &payload)
	if err != nil {
		p.done = true
		p.onError(ctx, err, p.requestID, "encoding-error")
		return err
	}
	if err := p.conn.Send(ctx, v); err != nil {
		p.done = true
		p.onError(ctx, err, p.requestID, "transport-error")
		return err
	}
	return nil
}

// Failure emits one error element and finishes the sequence.
func (p *StreamProvider[S]) Failure(ctx context.Context, handlerErr error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		p.reportFinishedLocked(ctx)
		return nil
	}
	p.done = true
	v, err := envelope.EncodeErrorResponse(p.requestID, errorPayloadFor(ctx, handlerErr, nil))
	if err != nil {
		p.onError(ctx, err, p.requestID, "encoding-error")
		return err
	}
	if err := p.conn.Send(ctx, v); err != nil {
		p.onError(ctx, err, p.requestID, "transport-error")
		return err
	}
	return nil
}

// Finished sends the terminal sentinel (neither payload nor error). It is
// idempotent: a second call reports sequence-finished through the error
// handler and is otherwise a no-op.
func (p *StreamProvider[S]) Finished(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		p.reportFinishedLocked(ctx)
		return nil
	}
	p.done = true
	v, err := envelope.EncodeResponse(p.requestID, nil)
	if err != nil {
		p.onError(ctx, err, p.requestID, "encoding-error")
		return err
	}
	if err := p.conn.Send(ctx, v); err != nil {
		p.onError(ctx, err, p.requestID, "transport-error")
		return err
	}
	return nil
}

// Respond is a compound helper: a nil err calls Success, a non-nil err
// calls Failure.
func (p *StreamProvider[S]) Respond(ctx context.Context, value S, err error) error {
	if err != nil {
		return p.Failure(ctx, err)
	}
	return p.Success(ctx, value)
}

// finishOnDrop is called by the server after a streaming handler returns,
// standing in for "provider drop" in a language without deterministic
// destructors: if the handler never finished the sequence itself, the
// server finishes it on the handler's behalf.
func (p *StreamProvider[S]) finishOnDrop(ctx context.Context) {
	p.mu.Lock()
	alreadyDone := p.done
	p.mu.Unlock()
	if !alreadyDone {
		_ = p.Finished(ctx)
	}
}

func (p *StreamProvider[S]) reportFinishedLocked(ctx context.Context) {
	if p.onError != nil {
		p.onError(ctx, &SequenceFinishedError{Route: p.route.String()}, p.requestID, "sequence-finished")
	}
}
