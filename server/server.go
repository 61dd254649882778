package server

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/internal/reqid"
	"github.com/trustedipc/xpc/transport"
	"github.com/trustedipc/xpc/trust"
	"github.com/trustedipc/xpc/wire"
)

// Executor runs fn, typically by posting it to some serial queue. The
// default executor used by a freshly constructed Server runs fn inline on
// the goroutine reading the connection's event stream, giving each
// connection a serial dispatch guarantee without imposing one on the
// whole server.
type Executor func(fn func())

func inlineExecutor(fn func()) { fn() }

// Server owns one listener (or, for a container server, one pre-existing
// connection), a route registry, and the peer-trust predicate every
// inbound message must satisfy before dispatch.
type Server struct {
	mu       sync.Mutex
	registry map[string]handlerEntry

	listener  transport.Listener
	container transport.Conn

	predicate trust.Predicate
	gate      *trust.Gate
	selfPID   int32

	executor     Executor
	errorHandler func(error)
	log          *logrus.Logger

	started bool
	conns   map[transport.Conn]struct{}
	release func()

	// group fans in every goroutine this server owns (the accept loop and
	// one per accepted connection) so Close can wait for all of them to
	// unwind before returning.
	group errgroup.Group
}

func newServer(predicate trust.Predicate, gate *trust.Gate, selfPID int32, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if gate == nil {
		gate = trust.NewGate(nil, nil, trust.CodeIdentity{})
	}
	return &Server{
		registry:  make(map[string]handlerEntry),
		predicate: predicate,
		gate:      gate,
		selfPID:   selfPID,
		executor:  inlineExecutor,
		log:       log,
		conns:     make(map[transport.Conn]struct{}),
	}
}

// NewNamedServer binds a listener at a well-known name. Two servers
// registered for the same name with structurally unequal trust
// predicates return ErrConflictingClientRequirements; the first server
// registered for the name keeps running.
func NewNamedServer(t transport.Transport, name string, predicate trust.Predicate, gate *trust.Gate, selfPID int32, log *logrus.Logger) (*Server, error) {
	return namedServers.acquire(name, predicate, func() (*Server, error) {
		ln, err := t.ListenNamed(name)
		if err != nil {
			return nil, fmt.Errorf("server: listen %s: %w", name, err)
		}
		s := newServer(predicate, gate, selfPID, log)
		s.listener = ln
		s.release = func() { namedServers.release(name) }
		return s, nil
	})
}

// NewAnonymousServer binds a listener at an unpredictable path, suitable
// for minting endpoints handed out to a single accepted client.
func NewAnonymousServer(t transport.Transport, predicate trust.Predicate, gate *trust.Gate, selfPID int32, log *logrus.Logger) (*Server, error) {
	ln, err := t.ListenAnonymous()
	if err != nil {
		return nil, fmt.Errorf("server: listen anonymous: %w", err)
	}
	s := newServer(predicate, gate, selfPID, log)
	s.listener = ln
	return s, nil
}

// NewContainerServer wraps a connection the process did not establish
// itself (for example, one inherited from a launching parent), dispatching
// directly on it rather than accepting new connections.
func NewContainerServer(conn transport.Conn, predicate trust.Predicate, gate *trust.Gate, selfPID int32, log *logrus.Logger) (*Server, error) {
	s := newServer(predicate, gate, selfPID, log)
	s.container = conn
	return s, nil
}

// ErrorHandler installs the single hook invoked for every dispatch error:
// route mismatches, insecure peers, handler errors, encoding failures, and
// transport errors. The hook always fires; sending an error-envelope reply
// is attempted independently and does not depend on it.
func (s *Server) ErrorHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = fn
}

// SetTargetQueue swaps the executor connections' dispatch loops hand each
// incoming message to. The swap applies to present and future connections
// alike, from the next message each one reads; a handler already running
// is not interrupted.
func (s *Server) SetTargetQueue(executor Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if executor != nil {
		s.executor = executor
	}
}

// SetPredicate swaps the peer-trust predicate dispatch checks incoming
// peers against, for instance in response to a reloaded trust policy. A
// request already past the gate check when this is called keeps running
// under the predicate that was current when it arrived.
func (s *Server) SetPredicate(predicate trust.Predicate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predicate = predicate
}

// Endpoint mints a portable handle to this server's listener. It returns
// an error for a container server, which has no listener of its own.
func (s *Server) Endpoint() (wire.Endpoint, error) {
	if s.listener == nil {
		return wire.Endpoint{}, fmt.Errorf("server: a container server has no endpoint")
	}
	return s.listener.Endpoint(), nil
}

// Close stops accepting new connections, closes already-accepted
// connections (for a container server, the wrapped connection), and — for
// a named server — frees its slot in the
// uniqueness cache so a future NewNamedServer call for the same name can
// succeed.
func (s *Server) Close() error {
	s.mu.Lock()
	conns := make([]transport.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[transport.Conn]struct{})
	release := s.release
	listener := s.listener
	container := s.container
	s.mu.Unlock()

	var firstErr error
	if listener != nil {
		if err := listener.Close(); err != nil {
			firstErr = err
		}
	}
	for _, c := range conns {
		_ = c.Close()
	}
	if container != nil {
		_ = container.Close()
	}
	if release != nil {
		release()
	}
	// Wait for the accept loop and every per-connection dispatch loop to
	// unwind: closing the listener and the connections above causes each
	// to return on its own, so this fan-in only blocks for as long as an
	// in-flight handler invocation takes to finish.
	_ = s.group.Wait()
	return firstErr
}

// Start begins accepting connections (or, for a container server, begins
// dispatching the wrapped connection) without blocking the caller.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.container != nil {
		s.group.Go(func() error { s.serve(s.container); return nil })
		return nil
	}
	s.group.Go(func() error { s.acceptLoop(); return nil })
	return nil
}

// StartAndBlock is Start, but blocks the calling goroutine for the
// lifetime of the server. It is one of the two named blocking points in
// the concurrency model (the other being the client's synchronous send).
func (s *Server) StartAndBlock() error {
	if s.container != nil {
		s.serve(s.container)
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()
	s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.reportError(context.Background(), nil, err, kindTransportError)
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.group.Go(func() error { s.serve(conn); return nil })
	}
}

func (s *Server) serve(conn transport.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()
	for event := range conn.Events() {
		switch event.Kind {
		case transport.EventMessage:
			ev := event
			s.mu.Lock()
			run := s.executor
			s.mu.Unlock()
			run(func() { s.dispatch(conn, ev.Value) })
		case transport.EventPeerInvalid, transport.EventPeerInterrupted:
			return
		}
	}
}

func (s *Server) dispatch(conn transport.Conn, v wire.Value) {
	ctx := context.Background()

	req, err := envelope.DecodeRequest(ctx, v)
	if err != nil {
		s.reportError(ctx, nil, err, kindRouteMismatch)
		return
	}
	ctx = reqid.WithID(ctx, req.RequestID)
	routeName := joinPath(req.Route.PathComponents)

	peer, err := conn.PeerIdentity(ctx)
	if err != nil {
		s.reportError(ctx, req, fmt.Errorf("server: peer identity: %w", err), kindTransportError)
		return
	}
	s.mu.Lock()
	predicate := s.predicate
	s.mu.Unlock()
	if !s.gate.Accept(ctx, predicate, peer, s.selfPID, req.ClientBookmark) {
		s.refuse(ctx, conn, req, &InsecureError{Description: "peer-trust predicate refused route " + routeName})
		return
	}

	s.mu.Lock()
	entry, ok := s.registry[routeKey(req.Route.PathComponents)]
	s.mu.Unlock()
	if !ok {
		s.refuse(ctx, conn, req, &RouteMismatchError{Description: "no handler registered for route " + routeName})
		return
	}
	entry.handle(ctx, s, conn, req)
}

func (s *Server) refuse(ctx context.Context, conn transport.Conn, req *envelope.Request, err error) {
	kind := kindRouteMismatch
	if _, ok := err.(*InsecureError); ok {
		kind = kindInsecure
	}
	s.reportError(ctx, req, err, kind)
	if req.Route.ExpectsReply {
		ev, encErr := envelope.EncodeErrorResponse(req.RequestID, errorPayloadFor(ctx, err, nil))
		if encErr == nil {
			_ = conn.Send(ctx, ev)
		}
	}
}

func (s *Server) reportRouteMismatch(ctx context.Context, conn transport.Conn, req *envelope.Request, description string) {
	s.refuse(ctx, conn, req, &RouteMismatchError{Description: description})
}

func (s *Server) reportHandlerError(ctx context.Context, conn transport.Conn, req *envelope.Request, handlerErr error, declaredTypes []reflect.Type) {
	s.reportError(ctx, req, handlerErr, kindHandlerError)
	if req.Route.ExpectsReply {
		payload := errorPayloadFor(ctx, handlerErr, declaredTypes)
		ev, encErr := envelope.EncodeErrorResponse(req.RequestID, payload)
		if encErr != nil {
			s.reportError(ctx, req, encErr, kindEncodingError)
			return
		}
		if err := conn.Send(ctx, ev); err != nil {
			s.reportError(ctx, req, err, kindTransportError)
		}
	}
}

func (s *Server) sendReply(ctx context.Context, conn transport.Conn, req *envelope.Request, result any) {
	value, err := codec.EncodeFramework(ctx, result)
	if err != nil {
		s.reportError(ctx, req, err, kindEncodingError)
		return
	}
	ev, err := envelope.EncodeResponse(req.RequestID, &value)
	if err != nil {
		s.reportError(ctx, req, err, kindEncodingError)
		return
	}
	if err := conn.Send(ctx, ev); err != nil {
		s.reportError(ctx, req, err, kindTransportError)
	}
}

func (s *Server) reportProviderError(ctx context.Context, err error, requestID uuid.UUID, kind string) {
	s.reportError(reqid.WithID(ctx, requestID), nil, err, errorKind(kind))
}

func (s *Server) reportError(ctx context.Context, req *envelope.Request, err error, kind errorKind) {
	routeName := ""
	if req != nil {
		routeName = joinPath(req.Route.PathComponents)
	}
	s.mu.Lock()
	handler := s.errorHandler
	log := s.log
	s.mu.Unlock()
	if handler != nil {
		handler(err)
	}
	requestID := reqid.FromContext(ctx)
	logDispatchError(log, routeName, requestID.String(), err, kind)
}

func routeKey(path []string) string { return strings.Join(path, "\x00") }

func joinPath(path []string) string { return strings.Join(path, "/") }
