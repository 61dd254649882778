package codec

import "context"

// contextKey is the context key under which coding-context values are
// stored, following the same typed-key/WithValue pattern used for request
// IDs elsewhere in this codebase rather than a bespoke side-channel map
// threaded by hand through every call.
type contextKey struct{ name string }

// RouteContextKey is a well-known key for carrying the current route in a
// coding context. Neither the server nor the client engine sets or reads
// it: the client hands a route's declared error types to the error decoder
// directly as an argument.
var RouteContextKey = contextKey{name: "route"}

// WithValue returns a new context carrying v under key, for use by callers
// that need to thread additional coding-context values (beyond the route)
// through Encode/Decode.
func WithValue(ctx context.Context, key any, v any) context.Context {
	return context.WithValue(ctx, key, v)
}

// ValueFrom retrieves a previously stored coding-context value, returning
// false if ctx is nil or the key was never set.
func ValueFrom(ctx context.Context, key any) (any, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(key)
	return v, v != nil
}
