// Package wire implements the tagged tree of primitive values that the
// transport moves between processes: booleans, signed/unsigned 64-bit
// integers, doubles, UTF-8 strings, UUIDs, dates, byte blobs, duplicated
// file-descriptor handles, opaque endpoint handles, arrays and dictionaries.
//
// Values are constructed only through the typed constructors in this file;
// there is no exported struct literal, so every Value on the wire is one of
// the variants below.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindUUID
	KindDate
	KindBytes
	KindFD
	KindEndpoint
	KindArray
	KindDict
)

// String renders the kind name for diagnostics and error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindUUID:
		return "uuid"
	case KindDate:
		return "date"
	case KindBytes:
		return "bytes"
	case KindFD:
		return "fd"
	case KindEndpoint:
		return "endpoint"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	default:
		return "unknown"
	}
}

// Value is a single node of the tagged primitive tree. The zero Value is
// KindNull.
type Value struct {
	kind  Kind
	b     bool
	i64   int64
	u64   uint64
	f64   float64
	str   string
	uid   uuid.UUID
	date  time.Time
	blob  []byte
	fd    *FD
	ep    *Endpoint
	arr   []Value
	dict  *Dict
}

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// Null constructs the null leaf.
func Null() Value { return Value{kind: KindNull} }

// Bool constructs a boolean leaf.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int64 constructs a signed 64-bit integer leaf.
func Int64(i int64) Value { return Value{kind: KindInt64, i64: i} }

// Uint64 constructs an unsigned 64-bit integer leaf.
func Uint64(u uint64) Value { return Value{kind: KindUint64, u64: u} }

// Double constructs an IEEE-754 double leaf.
func Double(f float64) Value { return Value{kind: KindDouble, f64: f} }

// String constructs a UTF-8 string leaf.
func String(s string) Value { return Value{kind: KindString, str: s} }

// UUIDValue constructs a 128-bit UUID leaf.
func UUIDValue(id uuid.UUID) Value { return Value{kind: KindUUID, uid: id} }

// Date constructs a date leaf (nanoseconds since the host epoch).
func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

// Bytes constructs an opaque byte-blob leaf. The slice is retained, not
// copied; callers must not mutate it after construction.
func Bytes(b []byte) Value { return Value{kind: KindBytes, blob: b} }

// FDValue wraps a file-descriptor handle as a leaf.
func FDValue(fd *FD) Value { return Value{kind: KindFD, fd: fd} }

// EndpointValue wraps an endpoint handle as a leaf.
func EndpointValue(ep *Endpoint) Value { return Value{kind: KindEndpoint, ep: ep} }

// Array constructs an ordered sequence leaf.
func Array(vals []Value) Value { return Value{kind: KindArray, arr: vals} }

// DictValue constructs a dictionary leaf.
func DictValue(d *Dict) Value { return Value{kind: KindDict, dict: d} }

// IsNull reports whether the value is the null leaf.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload, failing with a classified error if the
// observed kind is not KindBool.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, typeMismatch(KindBool, v.kind)
	}
	return v.b, nil
}

// AsInt64 returns the signed integer payload.
func (v Value) AsInt64() (int64, error) {
	if v.kind != KindInt64 {
		return 0, typeMismatch(KindInt64, v.kind)
	}
	return v.i64, nil
}

// AsUint64 returns the unsigned integer payload.
func (v Value) AsUint64() (uint64, error) {
	if v.kind != KindUint64 {
		return 0, typeMismatch(KindUint64, v.kind)
	}
	return v.u64, nil
}

// AsDouble returns the double payload.
func (v Value) AsDouble() (float64, error) {
	if v.kind != KindDouble {
		return 0, typeMismatch(KindDouble, v.kind)
	}
	return v.f64, nil
}

// AsString returns the string payload.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", typeMismatch(KindString, v.kind)
	}
	return v.str, nil
}

// AsUUID returns the UUID payload.
func (v Value) AsUUID() (uuid.UUID, error) {
	if v.kind != KindUUID {
		return uuid.UUID{}, typeMismatch(KindUUID, v.kind)
	}
	return v.uid, nil
}

// AsDate returns the date payload.
func (v Value) AsDate() (time.Time, error) {
	if v.kind != KindDate {
		return time.Time{}, typeMismatch(KindDate, v.kind)
	}
	return v.date, nil
}

// AsBytes returns the byte-blob payload.
func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, typeMismatch(KindBytes, v.kind)
	}
	return v.blob, nil
}

// AsFD returns the file-descriptor handle.
func (v Value) AsFD() (*FD, error) {
	if v.kind != KindFD {
		return nil, typeMismatch(KindFD, v.kind)
	}
	return v.fd, nil
}

// AsEndpoint returns the endpoint handle.
func (v Value) AsEndpoint() (*Endpoint, error) {
	if v.kind != KindEndpoint {
		return nil, typeMismatch(KindEndpoint, v.kind)
	}
	return v.ep, nil
}

// AsArray returns the ordered sequence payload.
func (v Value) AsArray() ([]Value, error) {
	if v.kind != KindArray {
		return nil, typeMismatch(KindArray, v.kind)
	}
	return v.arr, nil
}

// AsDict returns the dictionary payload.
func (v Value) AsDict() (*Dict, error) {
	if v.kind != KindDict {
		return nil, typeMismatch(KindDict, v.kind)
	}
	return v.dict, nil
}
