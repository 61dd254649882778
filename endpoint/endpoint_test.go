package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/trustedipc/xpc/client"
	"github.com/trustedipc/xpc/route"
	"github.com/trustedipc/xpc/server"
	"github.com/trustedipc/xpc/transport"
	"github.com/trustedipc/xpc/trust"
)

type pingRequest struct{ Text string }
type pingReply struct{ Text string }

func pingRoute() route.Descriptor[pingRequest, pingReply, route.NoType] {
	return route.WithReply[pingReply](route.WithMessage[pingRequest](route.NamedRoute("ping")))
}

// TestMintAndMaterializeRoundTrip mints an endpoint from an anonymous
// server, hands it to a second transport the way a forwarding handler
// would, and confirms the resulting client can still call the original
// server.
func TestMintAndMaterializeRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tr := transport.NewUnixTransport(dir)

	s, err := server.NewAnonymousServer(tr, trust.Always(), nil, 1, nil)
	if err != nil {
		t.Fatalf("NewAnonymousServer: %v", err)
	}
	defer s.Close()

	if err := server.RegisterMessageReply(s, pingRoute(), func(ctx context.Context, m pingRequest) (pingReply, error) {
		return pingReply{Text: "pong:" + m.Text}, nil
	}); err != nil {
		t.Fatalf("RegisterMessageReply: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	handle, err := Mint(s)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	c, err := Materialize(tr, handle, nil, nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Send(ctx, c, pingRoute(), pingRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != "pong:hi" {
		t.Fatalf("reply.Text = %q, want %q", reply.Text, "pong:hi")
	}
}

// TestMintFailsForContainerServer confirms a host-managed container server,
// which has no listener of its own, cannot mint an endpoint.
func TestMintFailsForContainerServer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tr := transport.NewUnixTransport(dir)

	ln, err := tr.ListenAnonymous()
	if err != nil {
		t.Fatalf("ListenAnonymous: %v", err)
	}
	defer ln.Close()

	go func() { _, _ = ln.Accept() }()
	conn, err := tr.DialEndpoint(ln.Endpoint())
	if err != nil {
		t.Fatalf("DialEndpoint: %v", err)
	}
	defer conn.Close()

	s, err := server.NewContainerServer(conn, trust.Always(), nil, 1, nil)
	if err != nil {
		t.Fatalf("NewContainerServer: %v", err)
	}

	if _, err := Mint(s); err == nil {
		t.Fatal("expected Mint to fail for a container server")
	}
}
