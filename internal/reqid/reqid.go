// Package reqid carries the current request's id through a context.Context
// so logging call sites anywhere in the dispatch path can attach it without
// threading an extra parameter through every function.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// New mints a fresh request id.
func New() uuid.UUID { return uuid.New() }

// WithID returns a context carrying id, retrievable with FromContext.
func WithID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request id stored in ctx, or the zero UUID if
// none was attached.
func FromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.UUID{}
	}
	id, _ := ctx.Value(contextKey{}).(uuid.UUID)
	return id
}
