// Package trust implements the peer-trust predicate tree and the identity
// introspection it evaluates against: a recursive acceptor sum type closed
// under conjunction/disjunction, backed by SO_PEERCRED-derived peer
// credentials and a pluggable resolver for code-identity acceptors.
package trust

import "fmt"

// PeerIdentity is the credential set the transport can obtain cheaply for
// any connected peer, analogous to the host's audit token.
type PeerIdentity struct {
	PID int32
	UID uint32
	GID uint32
}

func (p PeerIdentity) String() string {
	return fmt.Sprintf("pid=%d uid=%d gid=%d", p.PID, p.UID, p.GID)
}

// CodeIdentity is the richer, optional identity a resolver may produce:
// the peer's executable path and a coarse notion of signing/team
// membership. Hosts without a code-signing story populate only what they
// can and leave the rest zero.
type CodeIdentity struct {
	ExecutablePath string
	TeamIdentifier string
}

// IdentityResolver resolves a PeerIdentity to a richer CodeIdentity.
// ProcResolver reads /proc; callers embedding this framework on a host
// with a real code-signing story should supply their own. A nil resolver
// makes sec-requirement and team-identifier acceptors fail closed.
type IdentityResolver interface {
	Resolve(PeerIdentity) (CodeIdentity, error)
}

// Requirement is an opaque, host-defined code-signing requirement blob
// evaluated by a Resolver. Its encoding is resolver-specific; the trust
// package only ever compares requirements for equality.
type Requirement struct {
	raw string
}

// NewRequirement wraps an opaque requirement string.
func NewRequirement(raw string) Requirement { return Requirement{raw: raw} }

// String returns the requirement's raw form, for diagnostics.
func (r Requirement) String() string { return r.raw }

// Satisfies reports whether identity satisfies r. The default evaluation
// is a literal match against the resolver-reported team identifier; hosts
// with a richer signing story can wrap IdentityResolver to populate
// TeamIdentifier with whatever granularity their Requirement encoding
// needs.
func (r Requirement) Satisfies(identity CodeIdentity) bool {
	return identity.TeamIdentifier != "" && identity.TeamIdentifier == r.raw
}
