package server

import (
	"context"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/route"
	"github.com/trustedipc/xpc/transport"
)

// handlerEntry is the type-erased registry entry for one route. Each
// concrete arity below owns decoding the payload, invoking the user
// function, and encoding the reply or error.
type handlerEntry interface {
	handle(ctx context.Context, s *Server, conn transport.Conn, req *envelope.Request)
}

func registerEntry(s *Server, r route.Route, entry handlerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registry[r.Key()]; exists {
		return &AlreadyRegisteredError{Route: r.String()}
	}
	s.registry[r.Key()] = entry
	return nil
}

// RegisterNoMessageNoReply registers a handler for a {no-message,
// no-reply} route.
func RegisterNoMessageNoReply(s *Server, d route.Descriptor[route.NoType, route.NoType, route.NoType], fn func(ctx context.Context) error) error {
	return registerEntry(s, d.Route(), &noMessageNoReplyEntry{d: d, fn: fn})
}

// RegisterNoMessageReply registers a handler for a {no-message,
// one-reply} route.
func RegisterNoMessageReply[R any](s *Server, d route.Descriptor[route.NoType, R, route.NoType], fn func(ctx context.Context) (R, error)) error {
	return registerEntry(s, d.Route(), &noMessageReplyEntry[R]{d: d, fn: fn})
}

// RegisterNoMessageStream registers a handler for a {no-message,
// sequential-reply} route.
func RegisterNoMessageStream[S any](s *Server, d route.Descriptor[route.NoType, route.NoType, S], fn func(ctx context.Context, p *StreamProvider[S])) error {
	return registerEntry(s, d.Route(), &noMessageStreamEntry[S]{d: d, fn: fn})
}

// RegisterMessageNoReply registers a handler for a {message, no-reply}
// route.
func RegisterMessageNoReply[M any](s *Server, d route.Descriptor[M, route.NoType, route.NoType], fn func(ctx context.Context, m M) error) error {
	return registerEntry(s, d.Route(), &messageNoReplyEntry[M]{d: d, fn: fn})
}

// RegisterMessageReply registers a handler for a {message, one-reply}
// route.
func RegisterMessageReply[M, R any](s *Server, d route.Descriptor[M, R, route.NoType], fn func(ctx context.Context, m M) (R, error)) error {
	return registerEntry(s, d.Route(), &messageReplyEntry[M, R]{d: d, fn: fn})
}

// RegisterMessageStream registers a handler for a {message,
// sequential-reply} route.
func RegisterMessageStream[M, S any](s *Server, d route.Descriptor[M, route.NoType, S], fn func(ctx context.Context, m M, p *StreamProvider[S])) error {
	return registerEntry(s, d.Route(), &messageStreamEntry[M, S]{d: d, fn: fn})
}

type noMessageNoReplyEntry struct {
	d  route.Descriptor[route.NoType, route.NoType, route.NoType]
	fn func(ctx context.Context) error
}

func (e *noMessageNoReplyEntry) handle(ctx context.Context, s *Server, conn transport.Conn, req *envelope.Request) {
	if req.Payload != nil {
		s.reportRouteMismatch(ctx, conn, req, "handler expects no message but request carries a payload")
		return
	}
	if err := e.fn(ctx); err != nil {
		s.reportHandlerError(ctx, conn, req, err, nil)
	}
}

type noMessageReplyEntry[R any] struct {
	d  route.Descriptor[route.NoType, R, route.NoType]
	fn func(ctx context.Context) (R, error)
}

func (e *noMessageReplyEntry[R]) handle(ctx context.Context, s *Server, conn transport.Conn, req *envelope.Request) {
	if req.Payload != nil {
		s.reportRouteMismatch(ctx, conn, req, "handler expects no message but request carries a payload")
		return
	}
	result, err := e.fn(ctx)
	if err != nil {
		s.reportHandlerError(ctx, conn, req, err, e.d.ErrorTypes())
		return
	}
	s.sendReply(ctx, conn, req, result)
}

type noMessageStreamEntry[S any] struct {
	d  route.Descriptor[route.NoType, route.NoType, S]
	fn func(ctx context.Context, p *StreamProvider[S])
}

func (e *noMessageStreamEntry[S]) handle(ctx context.Context, s *Server, conn transport.Conn, req *envelope.Request) {
	if req.Payload != nil {
		s.reportRouteMismatch(ctx, conn, req, "handler expects no message but request carries a payload")
		return
	}
	p := newStreamProvider[S](e.d.Route(), req.RequestID, conn, s.reportProviderError, s.log)
	e.fn(ctx, p)
	p.finishOnDrop(ctx)
}

type messageNoReplyEntry[M any] struct {
	d  route.Descriptor[M, route.NoType, route.NoType]
	fn func(ctx context.Context, m M) error
}

func (e *messageNoReplyEntry[M]) handle(ctx context.Context, s *Server, conn transport.Conn, req *envelope.Request) {
	if req.Payload == nil {
		s.reportRouteMismatch(ctx, conn, req, "handler expects a message but request carries none")
		return
	}
	m, err := codec.DecodeAsFramework[M](ctx, *req.Payload)
	if err != nil {
		s.reportHandlerError(ctx, conn, req, err, nil)
		return
	}
	if err := e.fn(ctx, m); err != nil {
		s.reportHandlerError(ctx, conn, req, err, nil)
	}
}

type messageReplyEntry[M, R any] struct {
	d  route.Descriptor[M, R, route.NoType]
	fn func(ctx context.Context, m M) (R, error)
}

func (e *messageReplyEntry[M, R]) handle(ctx context.Context, s *Server, conn transport.Conn, req *envelope.Request) {
	if req.Payload == nil {
		s.reportRouteMismatch(ctx, conn, req, "handler expects a message but request carries none")
		return
	}
	m, err := codec.DecodeAsFramework[M](ctx, *req.Payload)
	if err != nil {
		s.reportHandlerError(ctx, conn, req, err, nil)
		return
	}
	result, err := e.fn(ctx, m)
	if err != nil {
		s.reportHandlerError(ctx, conn, req, err, e.d.ErrorTypes())
		return
	}
	s.sendReply(ctx, conn, req, result)
}

type messageStreamEntry[M, S any] struct {
	d  route.Descriptor[M, route.NoType, S]
	fn func(ctx context.Context, m M, p *StreamProvider[S])
}

func (e *messageStreamEntry[M, S]) handle(ctx context.Context, s *Server, conn transport.Conn, req *envelope.Request) {
	if req.Payload == nil {
		s.reportRouteMismatch(ctx, conn, req, "handler expects a message but request carries none")
		return
	}
	m, err := codec.DecodeAsFramework[M](ctx, *req.Payload)
	if err != nil {
		s.reportHandlerError(ctx, conn, req, err, nil)
		return
	}
	p := newStreamProvider[S](e.d.Route(), req.RequestID, conn, s.reportProviderError, s.log)
	e.fn(ctx, m, p)
	p.finishOnDrop(ctx)
}
