package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/trustedipc/xpc/trust"
	"github.com/trustedipc/xpc/wire"
)

// maxFrameSize bounds a single message; SOCK_SEQPACKET preserves message
// boundaries so one read is enough as long as the buffer is large enough
// to avoid MSG_TRUNC.
const maxFrameSize = 4 << 20

// UnixTransport realizes Transport over SOCK_SEQPACKET unix-domain
// sockets rooted at BaseDir.
type UnixTransport struct {
	// BaseDir is the directory socket files are created under. Empty
	// means os.TempDir().
	BaseDir string
	// Logger receives structured diagnostics. Nil disables logging.
	Logger *logrus.Logger
}

// NewUnixTransport constructs a UnixTransport rooted at baseDir (empty
// for os.TempDir()).
func NewUnixTransport(baseDir string) *UnixTransport {
	return &UnixTransport{BaseDir: baseDir}
}

func (t *UnixTransport) dir() string {
	if t.BaseDir != "" {
		return t.BaseDir
	}
	return os.TempDir()
}

func (t *UnixTransport) socketPath(name string) string {
	return filepath.Join(t.dir(), name+".sock")
}

func (t *UnixTransport) log() *logrus.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return logrus.StandardLogger()
}

// ListenNamed binds a listener at a deterministic path derived from name.
// Any existing socket file at that path is removed before binding, whether
// or not a process is still listening on it; callers that need "only one live listener per
// name, ever" should pair this with server's uniqueness cache.
func (t *UnixTransport) ListenNamed(name string) (Listener, error) {
	addr := t.socketPath(name)
	_ = os.Remove(addr)
	return t.listen(addr, false)
}

// ListenAnonymous binds a listener at a freshly generated, unpredictable
// path.
func (t *UnixTransport) ListenAnonymous() (Listener, error) {
	addr := filepath.Join(t.dir(), "anon-"+uuid.New().String()+".sock")
	return t.listen(addr, true)
}

func (t *UnixTransport) listen(addr string, anonymous bool) (Listener, error) {
	ln, err := net.ListenUnix("unixpacket", &net.UnixAddr{Name: addr, Net: "unixpacket"})
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &unixListener{ln: ln, addr: addr, anonymous: anonymous, log: t.log()}, nil
}

// Dial connects to a named listener.
func (t *UnixTransport) Dial(name string) (Conn, error) {
	return t.dial(t.socketPath(name))
}

// DialEndpoint connects to a listener identified by a previously minted
// endpoint handle.
func (t *UnixTransport) DialEndpoint(ep wire.Endpoint) (Conn, error) {
	return t.dial(ep.Address)
}

func (t *UnixTransport) dial(addr string) (Conn, error) {
	uc, err := net.DialUnix("unixpacket", nil, &net.UnixAddr{Name: addr, Net: "unixpacket"})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return newConn(uc, t.log()), nil
}

type unixListener struct {
	ln        *net.UnixListener
	addr      string
	anonymous bool
	log       *logrus.Logger
}

func (l *unixListener) Accept() (Conn, error) {
	uc, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return newConn(uc, l.log), nil
}

func (l *unixListener) Close() error {
	err := l.ln.Close()
	_ = os.Remove(l.addr)
	return err
}

func (l *unixListener) Endpoint() wire.Endpoint {
	return wire.Endpoint{Address: l.addr, Anonymous: l.anonymous}
}

type waiter struct {
	match func(wire.Value) bool
	ch    chan wire.Value
	once  bool
}

type unixConn struct {
	uc  *net.UnixConn
	log *logrus.Logger

	mu      sync.Mutex
	waiters []*waiter
	closed  bool

	events chan Event
	done   chan struct{}
}

func newConn(uc *net.UnixConn, log *logrus.Logger) *unixConn {
	c := &unixConn{
		uc:     uc,
		log:    log,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *unixConn) readLoop() {
	defer close(c.events)
	buf := make([]byte, maxFrameSize)
	oob := make([]byte, unix.CmsgSpace(64*4))
	for {
		n, oobn, flags, _, err := c.uc.ReadMsgUnix(buf, oob)
		if err != nil {
			kind := EventPeerInvalid
			if errors.Is(err, io.EOF) {
				kind = EventPeerInterrupted
			}
			c.emit(Event{Kind: kind})
			c.finish()
			return
		}
		if flags&unix.MSG_TRUNC != 0 {
			c.log.WithField("component", "transport").Warn("dropped oversized message (truncated)")
			continue
		}

		fds, err := parseRights(oob[:oobn])
		if err != nil {
			c.log.WithField("component", "transport").WithError(err).Warn("failed to parse ancillary data")
			continue
		}

		v, err := unmarshalValue(buf[:n], fds)
		if err != nil {
			c.log.WithField("component", "transport").WithError(err).Warn("failed to decode message")
			closeAll(fds)
			continue
		}
		c.dispatch(v)
	}
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var fds []int
	for _, scm := range scms {
		rights, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

func (c *unixConn) dispatch(v wire.Value) {
	c.mu.Lock()
	var remaining []*waiter
	var matched []*waiter
	for _, w := range c.waiters {
		if w.match(v) {
			matched = append(matched, w)
			if !w.once {
				remaining = append(remaining, w)
			}
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	if len(matched) == 0 {
		c.emit(Event{Kind: EventMessage, Value: v})
		return
	}
	for _, w := range matched {
		select {
		case w.ch <- v:
		default:
		}
	}
}

func (c *unixConn) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func (c *unixConn) finish() {
	c.mu.Lock()
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, w := range waiters {
		close(w.ch)
	}
	close(c.done)
}

func (c *unixConn) Send(ctx context.Context, v wire.Value) error {
	msg, err := marshalValue(v)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.uc.SetWriteDeadline(dl)
		defer c.uc.SetWriteDeadline(time.Time{})
	}

	rights := make([]int, len(msg.fds))
	for i, fd := range msg.fds {
		rights[i] = fd.Raw()
	}
	var oob []byte
	if len(rights) > 0 {
		oob = unix.UnixRights(rights...)
	}
	if _, _, err := c.uc.WriteMsgUnix(msg.bytes, oob, nil); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	for _, fd := range msg.fds {
		if err := fd.SenderDidEncode(); err != nil {
			c.log.WithField("component", "transport").WithError(err).Warn("failed to close fd after encode")
		}
	}
	return nil
}

func (c *unixConn) SendReceive(ctx context.Context, v wire.Value, isReply func(wire.Value) bool) (wire.Value, error) {
	ch, cancel, err := c.registerWaiter(isReply, true)
	if err != nil {
		return wire.Value{}, err
	}
	defer cancel()

	if err := c.Send(ctx, v); err != nil {
		return wire.Value{}, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return wire.Value{}, errConnectionInvalid
		}
		return reply, nil
	case <-ctx.Done():
		return wire.Value{}, ctx.Err()
	case <-c.done:
		return wire.Value{}, errConnectionInvalid
	}
}

func (c *unixConn) SendSubscribe(ctx context.Context, v wire.Value, isReply func(wire.Value) bool) (<-chan wire.Value, func(), error) {
	ch, cancel, err := c.registerWaiter(isReply, false)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Send(ctx, v); err != nil {
		cancel()
		return nil, nil, err
	}
	return ch, cancel, nil
}

func (c *unixConn) registerWaiter(match func(wire.Value) bool, once bool) (chan wire.Value, func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, errConnectionInvalid
	}
	w := &waiter{match: match, ch: make(chan wire.Value, 8), once: once}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, existing := range c.waiters {
			if existing == w {
				c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
				break
			}
		}
	}
	return w.ch, cancel, nil
}

func (c *unixConn) Events() <-chan Event { return c.events }

func (c *unixConn) PeerIdentity(ctx context.Context) (trust.PeerIdentity, error) {
	raw, err := c.uc.SyscallConn()
	if err != nil {
		return trust.PeerIdentity{}, err
	}
	var cred *unix.Ucred
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return trust.PeerIdentity{}, err
	}
	if sockErr != nil {
		return trust.PeerIdentity{}, fmt.Errorf("transport: SO_PEERCRED: %w", sockErr)
	}
	return trust.PeerIdentity{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}

func (c *unixConn) Close() error {
	return c.uc.Close()
}

var errConnectionInvalid = errConnInvalid{}

type errConnInvalid struct{}

func (errConnInvalid) Error() string { return "transport: connection is no longer valid" }
