package transport

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/trustedipc/xpc/wire"
)

func TestUnixTransportEchoRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tr := NewUnixTransport(dir)

	ln, err := tr.ListenAnonymous()
	if err != nil {
		t.Fatalf("ListenAnonymous: %v", err)
	}
	defer ln.Close()

	serverReady := make(chan Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverReady <- conn
	}()

	clientConn, err := tr.DialEndpoint(ln.Endpoint())
	if err != nil {
		t.Fatalf("DialEndpoint: %v", err)
	}
	defer clientConn.Close()

	serverConn := <-serverReady
	defer serverConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := clientConn.Send(ctx, wire.String("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-serverConn.Events():
		if ev.Kind != EventMessage {
			t.Fatalf("event kind = %v, want EventMessage", ev.Kind)
		}
		s, err := ev.Value.AsString()
		if err != nil || s != "hello" {
			t.Fatalf("received %q (%v), want %q", s, err, "hello")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestUnixTransportSendReceive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tr := NewUnixTransport(dir)

	ln, err := tr.ListenAnonymous()
	if err != nil {
		t.Fatalf("ListenAnonymous: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		ev := <-conn.Events()
		n, _ := ev.Value.AsInt64()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Send(ctx, wire.Int64(n*2))
	}()

	clientConn, err := tr.DialEndpoint(ln.Endpoint())
	if err != nil {
		t.Fatalf("DialEndpoint: %v", err)
	}
	defer clientConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := clientConn.SendReceive(ctx, wire.Int64(21), func(v wire.Value) bool {
		return v.Kind() == wire.KindInt64
	})
	if err != nil {
		t.Fatalf("SendReceive: %v", err)
	}
	n, err := reply.AsInt64()
	if err != nil || n != 42 {
		t.Fatalf("reply = %v (%v), want 42", n, err)
	}
}

func TestUnixTransportFDPassing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tr := NewUnixTransport(dir)

	ln, err := tr.ListenAnonymous()
	if err != nil {
		t.Fatalf("ListenAnonymous: %v", err)
	}
	defer ln.Close()

	serverReady := make(chan Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverReady <- conn
	}()

	clientConn, err := tr.DialEndpoint(ln.Endpoint())
	if err != nil {
		t.Fatalf("DialEndpoint: %v", err)
	}
	defer clientConn.Close()
	serverConn := <-serverReady
	defer serverConn.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	fd := wire.NewFD(int(w.Fd()), false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clientConn.Send(ctx, wire.FDValue(fd)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-serverConn.Events():
		received, err := ev.Value.AsFD()
		if err != nil {
			t.Fatalf("AsFD: %v", err)
		}
		if received.Raw() == int(w.Fd()) {
			t.Fatal("received descriptor should be a distinct duplicate, not the original number")
		}
		defer received.Close()
	case <-ctx.Done():
		t.Fatal("timed out waiting for fd message")
	}
}
