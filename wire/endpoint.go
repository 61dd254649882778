package wire

// Endpoint is an opaque, portable handle to a listener. It can be sent as a
// wire value and used on the receiving side to construct a new client. The
// concrete addressing scheme (for the reference unix-domain transport, a
// filesystem socket path) is owned by the transport package; wire only
// needs the handle to be comparable and copyable.
//
// Endpoints are shared-by-copy: minting one is cheap, and the same Endpoint
// may be held by multiple callers. Endpoint values are hashable by their
// Address.
type Endpoint struct {
	// Address is the transport-specific address the endpoint resolves to
	// (for the unix-domain reference transport, a socket path).
	Address string
	// Anonymous marks endpoints minted from anonymous listeners, as opposed
	// to named-service listeners; both kinds may be forwarded, but
	// host-managed container listeners never produce an Endpoint at all.
	Anonymous bool
}

// Equal reports structural equality between two endpoints.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Address == other.Address && e.Anonymous == other.Anonymous
}
