// Package endpoint mints and materializes portable connection handles: an
// opaque reference to a listener that can travel inside an ordinary
// message and be turned back into a working client on the far side.
package endpoint

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/trustedipc/xpc/client"
	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/server"
	"github.com/trustedipc/xpc/transport"
)

// Mint wraps s's listener endpoint as a codec.EndpointHandle so it can be
// embedded in a field of any message or reply struct and forwarded to a
// peer. It fails for a container server, which has no listener to mint
// from.
func Mint(s *server.Server) (codec.EndpointHandle, error) {
	ep, err := s.Endpoint()
	if err != nil {
		return codec.EndpointHandle{}, fmt.Errorf("endpoint: mint: %w", err)
	}
	return codec.EndpointHandle{Endpoint: ep}, nil
}

// Materialize dials the connection described by h and wraps it in a client.
// The resulting client behaves like any other endpoint-wrapping client: one
// connection, established once, never redialed after it is invalidated —
// regardless of whether the far side that minted h was a named or an
// anonymous server.
func Materialize(t transport.Transport, h codec.EndpointHandle, bookmark []byte, log *logrus.Logger) (*client.Client, error) {
	return client.NewEndpointClient(t, h.Endpoint, bookmark, log)
}
