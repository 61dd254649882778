package wire

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestFDMaterializeDuplicatesDescriptor(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer w.Close()
	defer r.Close()

	fd := NewFD(int(r.Fd()), false)
	dup, err := fd.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	defer dup.Close()

	if dup.Raw() == fd.Raw() {
		t.Fatal("Materialize returned the same descriptor instead of a duplicate")
	}

	// Both descriptors remain independently valid until each is closed.
	if err := unix.SetNonblock(dup.Raw(), true); err != nil {
		t.Fatalf("duplicate descriptor is not usable: %v", err)
	}
}

func TestFDSenderDidEncodeHonorsCloseOnEncode(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer w.Close()

	fd := NewFD(int(r.Fd()), true)
	dup, err := fd.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	defer dup.Close()

	if err := fd.SenderDidEncode(); err != nil {
		t.Fatalf("SenderDidEncode: %v", err)
	}

	// The sender's own descriptor is now closed...
	if err := unix.SetNonblock(fd.Raw(), true); err == nil {
		t.Fatal("sender descriptor should be closed after SenderDidEncode with CloseOnEncode")
	}
	// ...but the receiver's duplicate remains open.
	if err := unix.SetNonblock(dup.Raw(), true); err != nil {
		t.Fatalf("receiver duplicate should remain open: %v", err)
	}
}

func TestFDSenderKeepsDescriptorWithoutCloseOnEncode(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer w.Close()
	defer r.Close()

	fd := NewFD(int(r.Fd()), false)
	dup, err := fd.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	defer dup.Close()

	if err := fd.SenderDidEncode(); err != nil {
		t.Fatalf("SenderDidEncode: %v", err)
	}
	if err := unix.SetNonblock(fd.Raw(), true); err != nil {
		t.Fatalf("sender descriptor should remain open without CloseOnEncode: %v", err)
	}
}
