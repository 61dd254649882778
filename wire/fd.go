package wire

import (
	"sync"

	"golang.org/x/sys/unix"
)

// FD is a transport-only file-descriptor handle. It is non-copyable by
// design: every Materialize call duplicates the underlying OS descriptor,
// and the caller that receives the duplicate owns its lifetime.
//
// Only the framework's own codec may encode or decode an FD leaf (see
// codec.FileDescriptor and the capability marker in codec/marker.go); a
// received FD wraps a descriptor the kernel already duplicated when the
// transport passed it.
type FD struct {
	mu            sync.Mutex
	raw           int
	closed        bool
	closeOnEncode bool
}

// NewFD wraps an existing OS file descriptor. If closeOnEncode is true, the
// sender's descriptor is closed once the transport has sent the message
// carrying it (the sender relinquishes the original); otherwise the sender keeps it
// open and only the receiver's duplicate is new.
func NewFD(raw int, closeOnEncode bool) *FD {
	return &FD{raw: raw, closeOnEncode: closeOnEncode}
}

// Raw returns the underlying descriptor number without duplicating it. It
// is intended for the transport layer only (passing the descriptor through
// SCM_RIGHTS); ordinary callers should use Materialize.
func (f *FD) Raw() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw
}

// CloseOnEncode reports whether encoding should close the sender's
// descriptor once transmission succeeds.
func (f *FD) CloseOnEncode() bool { return f.closeOnEncode }

// Materialize duplicates the underlying descriptor and returns a new FD
// wrapping the duplicate. The caller owns the returned FD and MUST Close
// it.
func (f *FD) Materialize() (*FD, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errClosedFD
	}
	dup, err := unix.Dup(f.raw)
	if err != nil {
		return nil, err
	}
	return &FD{raw: dup}, nil
}

// Close closes the underlying descriptor. Close is idempotent.
func (f *FD) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return unix.Close(f.raw)
}

// SenderDidEncode is invoked by the transport after the message carrying
// this descriptor has been written; it closes the sender's
// descriptor when CloseOnEncode was requested. Ordinary callers never call
// this directly.
func (f *FD) SenderDidEncode() error {
	if !f.closeOnEncode {
		return nil
	}
	return f.Close()
}

var errClosedFD = &fdClosedError{}

type fdClosedError struct{}

func (*fdClosedError) Error() string { return "wire: file descriptor already closed" }
