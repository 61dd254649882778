package trust

import (
	"context"
	"strings"
)

// kind tags which acceptor variant a Predicate holds.
type kind int

const (
	kindAlways kind = iota
	kindSameProcess
	kindSecRequirement
	kindTeamIdentifier
	kindParentBundle
	kindParentDesignatedRequirement
	kindAnd
	kindOr
)

// Predicate is a node in the peer-trust acceptor tree: always-accept,
// same-process, a code-signing requirement, a team-identifier equality
// check, parent-bundle path containment, parent-designated-requirement,
// or a conjunction/disjunction of two predicates. Construct one with the
// package-level functions; Predicate itself has no exported fields.
type Predicate struct {
	k           kind
	requirement Requirement
	teamID      string
	bundleURL   string
	left, right *Predicate
}

// Always accepts every peer unconditionally.
func Always() Predicate { return Predicate{k: kindAlways} }

// SameProcess accepts only a peer whose pid matches the evaluating
// connection's own pid at the moment the predicate runs. It is safe only
// for anonymous peers created strictly after the listener, per spec: an
// attacker cannot forge a pid match retroactively, but a reused pid from
// an exited process could collide if evaluated too late.
func SameProcess() Predicate { return Predicate{k: kindSameProcess} }

// SecRequirement accepts a peer whose resolved code identity satisfies
// req.
func SecRequirement(req Requirement) Predicate {
	return Predicate{k: kindSecRequirement, requirement: req}
}

// TeamIdentifier accepts a peer whose resolved code identity carries the
// given team identifier. It is equivalent to a SecRequirement compiled
// from the team id alone.
func TeamIdentifier(teamID string) Predicate {
	return Predicate{k: kindTeamIdentifier, teamID: teamID}
}

// ParentBundle accepts a peer whose resolved executable path is a
// path-prefix extension of bundleURL.
func ParentBundle(bundleURL string) Predicate {
	return Predicate{k: kindParentBundle, bundleURL: bundleURL}
}

// ParentDesignatedRequirement accepts a peer whose resolved code identity
// matches the parent process's own code-signing requirement, as reported
// by the evaluating Gate.
func ParentDesignatedRequirement() Predicate {
	return Predicate{k: kindParentDesignatedRequirement}
}

// And returns a predicate that accepts iff both p and q accept.
// And(p, Always()) is structurally equal to p.
func And(p, q Predicate) Predicate {
	if q.k == kindAlways {
		return p
	}
	if p.k == kindAlways {
		return q
	}
	return Predicate{k: kindAnd, left: &p, right: &q}
}

// Or returns a predicate that accepts iff either p or q accepts.
// Or(p, Always()) is structurally equal to Always().
func Or(p, q Predicate) Predicate {
	if p.k == kindAlways || q.k == kindAlways {
		return Always()
	}
	return Predicate{k: kindOr, left: &p, right: &q}
}

// Equal reports whether two predicates are structurally identical.
// Equality is reflexive, symmetric and transitive by construction: it
// recurses over the same tagged-union shape on both sides.
func (p Predicate) Equal(other Predicate) bool {
	if p.k != other.k {
		return false
	}
	switch p.k {
	case kindAlways, kindSameProcess, kindParentDesignatedRequirement:
		return true
	case kindSecRequirement:
		return p.requirement.raw == other.requirement.raw
	case kindTeamIdentifier:
		return p.teamID == other.teamID
	case kindParentBundle:
		return p.bundleURL == other.bundleURL
	case kindAnd, kindOr:
		return p.left.Equal(*other.left) && p.right.Equal(*other.right)
	default:
		return false
	}
}

// BookmarkResolver resolves an opaque client bookmark to a filesystem
// path, with the host-side side effect (on a real host) of expanding the
// sandbox to include that path. Resolution failure must be treated as a
// refusal, never a crash.
type BookmarkResolver interface {
	Resolve(bookmark []byte) (path string, err error)
}

// Gate evaluates a Predicate against an incoming connection and message,
// running the sandbox-expansion hook only for acceptor kinds that need a
// resolved code identity.
type Gate struct {
	resolver IdentityResolver
	bookmark BookmarkResolver
	parentID CodeIdentity
}

// NewGate constructs a Gate. resolver may be nil, in which case
// sec-requirement and team-identifier acceptors always refuse.
// bookmarkResolver may be nil, in which case the sandbox-expansion hook is
// skipped and any bookmark supplied with the request is ignored.
func NewGate(resolver IdentityResolver, bookmarkResolver BookmarkResolver, parentID CodeIdentity) *Gate {
	return &Gate{resolver: resolver, bookmark: bookmarkResolver, parentID: parentID}
}

// Accept evaluates p against peer, the peer's cheap credentials, and
// bookmark, the raw __client_bookmark bytes carried by the request
// envelope. It never panics; a resolution failure anywhere in the tree is
// treated as a refusal (fail closed).
func (g *Gate) Accept(ctx context.Context, p Predicate, peer PeerIdentity, selfPID int32, bookmark []byte) bool {
	switch p.k {
	case kindAlways:
		return true
	case kindSameProcess:
		return peer.PID == selfPID
	case kindSecRequirement:
		identity, err := g.resolveWithExpansion(peer, bookmark)
		if err != nil {
			return false
		}
		return p.requirement.Satisfies(identity)
	case kindTeamIdentifier:
		identity, err := g.resolveWithExpansion(peer, bookmark)
		if err != nil {
			return false
		}
		return identity.TeamIdentifier != "" && identity.TeamIdentifier == p.teamID
	case kindParentBundle:
		identity, err := g.resolveWithExpansion(peer, bookmark)
		if err != nil {
			return false
		}
		return isPathPrefix(p.bundleURL, identity.ExecutablePath)
	case kindParentDesignatedRequirement:
		identity, err := g.resolveWithExpansion(peer, bookmark)
		if err != nil {
			return false
		}
		return identity.TeamIdentifier != "" && identity.TeamIdentifier == g.parentID.TeamIdentifier
	case kindAnd:
		return g.Accept(ctx, *p.left, peer, selfPID, bookmark) && g.Accept(ctx, *p.right, peer, selfPID, bookmark)
	case kindOr:
		return g.Accept(ctx, *p.left, peer, selfPID, bookmark) || g.Accept(ctx, *p.right, peer, selfPID, bookmark)
	default:
		return false
	}
}

// resolveWithExpansion runs the sandbox-expansion hook (materializing the
// bookmark, if a resolver is configured) and then resolves the peer's
// code identity. Any failure along the way is surfaced so the caller
// refuses rather than proceeding with a partial identity.
func (g *Gate) resolveWithExpansion(peer PeerIdentity, bookmark []byte) (CodeIdentity, error) {
	if g.bookmark != nil && len(bookmark) > 0 {
		if _, err := g.bookmark.Resolve(bookmark); err != nil {
			return CodeIdentity{}, err
		}
	}
	if g.resolver == nil {
		return CodeIdentity{}, errNoResolver
	}
	return g.resolver.Resolve(peer)
}

var errNoResolver = noResolverError{}

type noResolverError struct{}

func (noResolverError) Error() string { return "trust: no identity resolver configured" }

func isPathPrefix(prefix, path string) bool {
	if prefix == "" || path == "" {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
