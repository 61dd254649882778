// Package codec implements the recursive encoder/decoder between
// user-defined Go values and the wire value tree (package wire), including
// strongly-typed containers, transport-only value gating, the trivial-array
// fast path, and the coding-context side channel used to carry the current
// route into error decoding.
package codec

import "fmt"

// EncodingError reports a failure while building a wire value from a user
// value.
type EncodingError struct{ Description string }

func (e *EncodingError) Error() string { return "codec: encoding error: " + e.Description }

// DecodingError reports a failure while building a user value from a wire
// value, for failures not covered by the more specific error types below.
type DecodingError struct{ Description string }

func (e *DecodingError) Error() string { return "codec: decoding error: " + e.Description }

// TypeMismatchError reports that a requested Go type does not match the
// observed wire.Kind, or that an integer value is not representable in the
// requested width/signedness.
type TypeMismatchError struct{ Description string }

func (e *TypeMismatchError) Error() string { return "codec: type mismatch: " + e.Description }

// KeyNotFoundError reports a missing required dictionary key.
type KeyNotFoundError struct{ Key string }

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("codec: key not found: %q", e.Key)
}

// ValueNotFoundError reports a read past the end of a sequence.
type ValueNotFoundError struct{ Index int }

func (e *ValueNotFoundError) Error() string {
	return fmt.Sprintf("codec: value not found at index %d", e.Index)
}

// DataCorruptedError reports structurally invalid wire data (e.g. a
// trivial-array blob whose length is not a multiple of the element
// stride).
type DataCorruptedError struct{ Description string }

func (e *DataCorruptedError) Error() string { return "codec: data corrupted: " + e.Description }

// ErrOnlyEncodableByFramework is returned when a transport-only value
// (FileDescriptor, EndpointHandle) is encoded through a coder that was not
// constructed by the framework itself.
var ErrOnlyEncodableByFramework = &capabilityError{encoding: true}

// ErrOnlyDecodableByFramework is the decode-side counterpart of
// ErrOnlyEncodableByFramework.
var ErrOnlyDecodableByFramework = &capabilityError{encoding: false}

type capabilityError struct{ encoding bool }

func (e *capabilityError) Error() string {
	if e.encoding {
		return "codec: value is only-encodable-by-framework"
	}
	return "codec: value is only-decodable-by-framework"
}
