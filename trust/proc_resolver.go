package trust

import (
	"fmt"
	"os"
	"strconv"
)

// ProcResolver is the IdentityResolver this package provides: it reads
// /proc/<pid>/exe to populate a CodeIdentity's executable path. A Gate
// uses it only when it is passed to NewGate. It has no notion of a real team identifier; callers that
// need SecRequirement/TeamIdentifier acceptors to do more than a literal
// string compare against an externally-known value should supply their
// own resolver.
type ProcResolver struct {
	// ProcRoot overrides the /proc mount point, for tests. Empty means
	// "/proc".
	ProcRoot string
	// TeamIdentifiers maps a resolved executable path to the team
	// identifier trust acceptors should see for it. A path absent from
	// this map resolves to an empty team identifier, which never
	// satisfies a TeamIdentifier or SecRequirement acceptor.
	TeamIdentifiers map[string]string
}

// Resolve implements IdentityResolver.
func (r *ProcResolver) Resolve(peer PeerIdentity) (CodeIdentity, error) {
	root := r.ProcRoot
	if root == "" {
		root = "/proc"
	}
	exePath := fmt.Sprintf("%s/%d/exe", root, peer.PID)
	target, err := os.Readlink(exePath)
	if err != nil {
		return CodeIdentity{}, fmt.Errorf("trust: resolving executable for pid %d: %w", peer.PID, err)
	}
	identity := CodeIdentity{ExecutablePath: target}
	if r.TeamIdentifiers != nil {
		identity.TeamIdentifier = r.TeamIdentifiers[target]
	}
	return identity, nil
}

// ParsePID parses a /proc directory entry name as a pid, returning ok=false
// for non-numeric entries (".", "..", non-process files).
func ParsePID(name string) (int32, bool) {
	n, err := strconv.ParseInt(name, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}
