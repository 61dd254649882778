// Package route implements the route catalog: path-identified operations,
// their declared message/reply/sequential-reply shapes, and a builder
// pipeline that only lets compatible handlers register and compatible
// calls issue.
package route

import (
	"fmt"
	"reflect"
	"strings"
)

// Route is a non-empty ordered sequence of path components. Two routes are
// equal iff their path sequences are equal; declared type information is
// not part of identity.
type Route struct {
	path []string
}

// Named constructs a route from one or more path components. It panics if
// called with zero components, mirroring a programmer error rather than a
// runtime condition.
func Named(path ...string) Route {
	if len(path) == 0 {
		panic("route: Named requires at least one path component")
	}
	return Route{path: append([]string(nil), path...)}
}

// Path returns the route's path components.
func (r Route) Path() []string { return append([]string(nil), r.path...) }

// String renders the route as a slash-joined path, for logging.
func (r Route) String() string { return strings.Join(r.path, "/") }

// Key returns a comparable string suitable for use as a map key.
func (r Route) Key() string { return strings.Join(r.path, "\x00") }

// Equal reports whether two routes have the same path sequence.
func (r Route) Equal(other Route) bool {
	if len(r.path) != len(other.path) {
		return false
	}
	for i := range r.path {
		if r.path[i] != other.path[i] {
			return false
		}
	}
	return true
}

// Shape describes which of the six route shapes a descriptor carries.
type Shape int

const (
	// ShapeNoMessageNoReply carries neither a request payload nor a reply.
	ShapeNoMessageNoReply Shape = iota
	// ShapeNoMessageOneReply carries no request payload but expects a single reply.
	ShapeNoMessageOneReply
	// ShapeNoMessageSequentialReply carries no request payload but expects a
	// sequence of replies.
	ShapeNoMessageSequentialReply
	// ShapeMessageNoReply carries a request payload and no reply.
	ShapeMessageNoReply
	// ShapeMessageOneReply carries a request payload and expects a single reply.
	ShapeMessageOneReply
	// ShapeMessageSequentialReply carries a request payload and expects a
	// sequence of replies.
	ShapeMessageSequentialReply
)

// String renders the shape name for diagnostics.
func (s Shape) String() string {
	switch s {
	case ShapeNoMessageNoReply:
		return "no-message/no-reply"
	case ShapeNoMessageOneReply:
		return "no-message/one-reply"
	case ShapeNoMessageSequentialReply:
		return "no-message/sequential-reply"
	case ShapeMessageNoReply:
		return "message/no-reply"
	case ShapeMessageOneReply:
		return "message/one-reply"
	case ShapeMessageSequentialReply:
		return "message/sequential-reply"
	default:
		return "unknown"
	}
}

// NoType is the zero type parameter used for an absent message, reply, or
// sequential-reply type.
type NoType struct{}

// Descriptor is a typed route declaration. M is the request message type
// (NoType if the route carries no message), R the single-reply type
// (NoType if none), S the sequential-reply element type (NoType if none).
// Exactly one of R and S may be anything other than NoType; a descriptor
// with both set is a programmer error caught at build time by the
// WithReply/WithSequentialReply functions, which are mutually exclusive by
// construction since each returns a new, differently-parameterized
// Descriptor type.
type Descriptor[M, R, S any] struct {
	route        Route
	doc          string
	expectsReply bool
	sequential   bool
	errorTypes   []reflect.Type
}

// NamedRoute starts a builder pipeline for a no-message, no-reply route.
func NamedRoute(path ...string) Descriptor[NoType, NoType, NoType] {
	return Descriptor[NoType, NoType, NoType]{route: Named(path...)}
}

// Doc attaches a human-readable description surfaced only through
// Describe; it is never transmitted.
func (d Descriptor[M, R, S]) Doc(text string) Descriptor[M, R, S] {
	d.doc = text
	return d
}

// WithMessage declares the route's request payload type.
func WithMessage[M2 any, M, R, S any](d Descriptor[M, R, S]) Descriptor[M2, R, S] {
	return Descriptor[M2, R, S]{route: d.route, doc: d.doc, expectsReply: d.expectsReply, sequential: d.sequential, errorTypes: d.errorTypes}
}

// WithReply declares the route's single-reply type.
func WithReply[R2 any, M, R, S any](d Descriptor[M, R, S]) Descriptor[M, R2, NoType] {
	return Descriptor[M, R2, NoType]{route: d.route, doc: d.doc, expectsReply: true, errorTypes: d.errorTypes}
}

// WithSequentialReply declares the route's sequential-reply element type.
func WithSequentialReply[S2 any, M, R, S any](d Descriptor[M, R, S]) Descriptor[M, NoType, S2] {
	return Descriptor[M, NoType, S2]{route: d.route, doc: d.doc, expectsReply: true, sequential: true, errorTypes: d.errorTypes}
}

// Throws declares that the handler may fail with error type E. The
// declared type is local to the decoding process and is never
// transmitted.
func Throws[E error, M, R, S any](d Descriptor[M, R, S]) Descriptor[M, R, S] {
	d.errorTypes = append(append([]reflect.Type(nil), d.errorTypes...), reflect.TypeOf((*E)(nil)).Elem())
	return d
}

// Route returns the route identity.
func (d Descriptor[M, R, S]) Route() Route { return d.route }

// ExpectsReply reports whether the route declares a reply (single or
// sequential).
func (d Descriptor[M, R, S]) ExpectsReply() bool { return d.expectsReply }

// Sequential reports whether the declared reply is sequential.
func (d Descriptor[M, R, S]) Sequential() bool { return d.sequential }

// ErrorTypes returns the declared error types, in declaration order.
func (d Descriptor[M, R, S]) ErrorTypes() []reflect.Type {
	return append([]reflect.Type(nil), d.errorTypes...)
}

// Shape reports which of the six route shapes this descriptor has.
func (d Descriptor[M, R, S]) Shape() Shape {
	_, hasMessage := any(*new(M)).(NoType)
	_, hasReply := any(*new(R)).(NoType)
	_, hasSeq := any(*new(S)).(NoType)
	withMessage := !hasMessage
	withReply := !hasReply
	withSeq := !hasSeq

	switch {
	case !withMessage && !withReply && !withSeq:
		return ShapeNoMessageNoReply
	case !withMessage && withReply:
		return ShapeNoMessageOneReply
	case !withMessage && withSeq:
		return ShapeNoMessageSequentialReply
	case withMessage && !withReply && !withSeq:
		return ShapeMessageNoReply
	case withMessage && withReply:
		return ShapeMessageOneReply
	case withMessage && withSeq:
		return ShapeMessageSequentialReply
	default:
		return ShapeNoMessageNoReply
	}
}

// Describe renders a diagnostic line naming the route's path, shape and
// declared doc string. It is never transmitted; use Descriptor for that.
func (d Descriptor[M, R, S]) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", d.route, d.Shape())
	if d.doc != "" {
		fmt.Fprintf(&b, ": %s", d.doc)
	}
	return b.String()
}

// TypeName returns a type's unqualified name for the transmitted
// diagnostic descriptor, or "" for NoType.
func TypeName(t reflect.Type) string {
	if t == nil || t == reflect.TypeOf(NoType{}) {
		return ""
	}
	return t.Name()
}

// Transmitted is the wire-level, encodable form of a Descriptor: path plus
// declared type-name strings and the expects-reply flag. Declared error
// types are never included since the transport carries only value data.
type Transmitted struct {
	PathComponents      []string `xpc:"pathComponents"`
	MessageType         *string  `xpc:"messageType"`
	ReplyType           *string  `xpc:"replyType"`
	SequentialReplyType *string  `xpc:"sequentialReplyType"`
	ExpectsReply        bool     `xpc:"expectsReply"`
}

// Transmit produces the transmitted form of d.
func Transmit[M, R, S any](d Descriptor[M, R, S]) Transmitted {
	tx := Transmitted{
		PathComponents: d.route.Path(),
		ExpectsReply:   d.expectsReply,
	}
	if name := TypeName(reflect.TypeOf(*new(M))); name != "" {
		tx.MessageType = &name
	}
	if d.sequential {
		if name := TypeName(reflect.TypeOf(*new(S))); name != "" {
			tx.SequentialReplyType = &name
		}
	} else if name := TypeName(reflect.TypeOf(*new(R))); name != "" {
		tx.ReplyType = &name
	}
	return tx
}
