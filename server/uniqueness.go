package server

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/trustedipc/xpc/trust"
)

// namedServerEntry pairs an already-constructed named server with the
// trust predicate it was constructed under, so a later call for the same
// name can detect a conflicting requirement.
type namedServerEntry struct {
	server    *Server
	predicate trust.Predicate
}

// uniquenessCache guarantees at most one named server per name per
// process. Construction is guarded by a singleflight.Group so concurrent
// first callers for the same name race into exactly one factory
// invocation; completed entries live in a sync.Map for the lock-free
// common case of a repeat lookup.
type uniquenessCache struct {
	group   singleflight.Group
	entries sync.Map // name -> *namedServerEntry
}

var namedServers = &uniquenessCache{}

// acquire returns the existing server registered for name if predicate
// matches it structurally, ErrConflictingClientRequirements if it does
// not, or builds one with factory if none exists yet.
func (c *uniquenessCache) acquire(name string, predicate trust.Predicate, factory func() (*Server, error)) (*Server, error) {
	if v, ok := c.entries.Load(name); ok {
		return c.match(v.(*namedServerEntry), predicate)
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		if v, ok := c.entries.Load(name); ok {
			return v, nil
		}
		s, err := factory()
		if err != nil {
			return nil, err
		}
		entry := &namedServerEntry{server: s, predicate: predicate}
		c.entries.Store(name, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return c.match(v.(*namedServerEntry), predicate)
}

func (c *uniquenessCache) match(entry *namedServerEntry, predicate trust.Predicate) (*Server, error) {
	if !entry.predicate.Equal(predicate) {
		return nil, ErrConflictingClientRequirements
	}
	return entry.server, nil
}

// release removes name's entry, allowing a future NewNamedServer call for
// the same name to succeed once the existing server is no longer running.
func (c *uniquenessCache) release(name string) {
	c.entries.Delete(name)
}
