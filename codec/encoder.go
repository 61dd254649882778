package codec

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/trustedipc/xpc/wire"
)

// Encodable is implemented by user types that want to control their own
// wire shape instead of relying on the reflection-based default encoding.
// A type picks exactly one of the encoder's three container shapes:
// EncodeSingle for a bare leaf, Sequence for an ordered list, or Keyed for
// a dictionary.
type Encodable interface {
	EncodeXPC(enc *Encoder) error
}

type containerMode int

const (
	modeNone containerMode = iota
	modeSingle
	modeSequence
	modeKeyed
)

// Encoder accumulates exactly one of the three wire container shapes.
// NewEncoder and NewFrameworkEncoder construct one directly; Encode,
// EncodeFramework, and a parent container's Append/Encode construct one
// internally and hand it to an Encodable's EncodeXPC.
type Encoder struct {
	ctx    context.Context
	cap    *frameworkCapability
	mode   containerMode
	single wire.Value
	seq    []wire.Value
	dict   *wire.Dict
}

// NewEncoder returns a user-facing encoder. Transport-only values
// (FileDescriptor, EndpointHandle) refuse to encode through it.
func NewEncoder(ctx context.Context) *Encoder {
	return &Encoder{ctx: ctx}
}

// NewFrameworkEncoder returns an encoder carrying the framework's
// capability marker; only server/client package internals should call
// this.
func NewFrameworkEncoder(ctx context.Context) *Encoder {
	return &Encoder{ctx: ctx, cap: theFrameworkCapability}
}

// Context returns the coding context threaded through this encode.
func (e *Encoder) Context() context.Context { return e.ctx }

// IsFramework reports whether this encoder carries the framework's
// capability marker.
func (e *Encoder) IsFramework() bool { return e.cap != nil }

// EncodeSingle commits this encoder to the single-value container shape,
// writing one leaf.
func (e *Encoder) EncodeSingle(v wire.Value) { e.mode = modeSingle; e.single = v }

// Sequence commits this encoder to the ordered-sequence container shape.
func (e *Encoder) Sequence() *SequenceEncoder {
	e.mode = modeSequence
	return &SequenceEncoder{parent: e}
}

// Keyed commits this encoder to the dictionary container shape.
func (e *Encoder) Keyed() *KeyedEncoder {
	e.mode = modeKeyed
	if e.dict == nil {
		e.dict = wire.NewDict()
	}
	return &KeyedEncoder{parent: e}
}

func (e *Encoder) child() *Encoder { return &Encoder{ctx: e.ctx, cap: e.cap} }

func (e *Encoder) finish() (wire.Value, error) {
	switch e.mode {
	case modeSingle:
		return e.single, nil
	case modeSequence:
		return wire.Array(e.seq), nil
	case modeKeyed:
		return wire.DictValue(e.dict), nil
	default:
		return wire.Null(), nil
	}
}

// SequenceEncoder appends elements, in order, to a sequence container.
type SequenceEncoder struct{ parent *Encoder }

// Append encodes v with the default rules (or v's own EncodeXPC) and
// appends the result.
func (s *SequenceEncoder) Append(v any) error {
	child := s.parent.child()
	if err := encodeAny(child, v); err != nil {
		return err
	}
	val, err := child.finish()
	if err != nil {
		return err
	}
	s.parent.seq = append(s.parent.seq, val)
	return nil
}

// AppendValue appends an already-built wire value verbatim.
func (s *SequenceEncoder) AppendValue(v wire.Value) { s.parent.seq = append(s.parent.seq, v) }

// KeyedEncoder writes named fields into a dictionary container.
type KeyedEncoder struct{ parent *Encoder }

// Encode encodes v with the default rules (or v's own EncodeXPC) and stores
// it under key.
func (k *KeyedEncoder) Encode(key string, v any) error {
	child := k.parent.child()
	if err := encodeAny(child, v); err != nil {
		return err
	}
	val, err := child.finish()
	if err != nil {
		return err
	}
	return k.parent.dict.Set(key, val)
}

// EncodeValue stores an already-built wire value verbatim under key.
func (k *KeyedEncoder) EncodeValue(key string, v wire.Value) error {
	return k.parent.dict.Set(key, v)
}

// EncodeOptional encodes v under key, writing a null leaf if v is a nil
// pointer or a nil interface.
func (k *KeyedEncoder) EncodeOptional(key string, v any) error {
	if v == nil || isNilPointer(v) {
		return k.parent.dict.Set(key, wire.Null())
	}
	return k.Encode(key, v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

// Encode turns a user value into a wire value tree using a user-facing
// (non-framework) encoder. Transport-only values fail with
// ErrOnlyEncodableByFramework.
func Encode(ctx context.Context, v any) (wire.Value, error) {
	enc := NewEncoder(ctx)
	if err := encodeAny(enc, v); err != nil {
		return wire.Value{}, err
	}
	return enc.finish()
}

// EncodeFramework is the framework-internal counterpart of Encode, used by
// the server and client engines so that FileDescriptor and EndpointHandle
// values are permitted to cross the wire.
func EncodeFramework(ctx context.Context, v any) (wire.Value, error) {
	enc := NewFrameworkEncoder(ctx)
	if err := encodeAny(enc, v); err != nil {
		return wire.Value{}, err
	}
	return enc.finish()
}

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

func encodeAny(enc *Encoder, v any) error {
	if v == nil {
		enc.EncodeSingle(wire.Null())
		return nil
	}
	if wv, ok := v.(wire.Value); ok {
		enc.EncodeSingle(wv)
		return nil
	}
	if ev, ok := v.(Encodable); ok {
		return ev.EncodeXPC(enc)
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt {
	case timeType:
		enc.EncodeSingle(wire.Date(v.(time.Time)))
		return nil
	case uuidType:
		enc.EncodeSingle(wire.UUIDValue(v.(uuid.UUID)))
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		enc.EncodeSingle(wire.Bool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		enc.EncodeSingle(wire.Int64(rv.Int()))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		enc.EncodeSingle(wire.Uint64(rv.Uint()))
		return nil
	case reflect.Float32, reflect.Float64:
		enc.EncodeSingle(wire.Double(rv.Float()))
		return nil
	case reflect.String:
		enc.EncodeSingle(wire.String(rv.String()))
		return nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			enc.EncodeSingle(wire.Null())
			return nil
		}
		return encodeAny(enc, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 {
			enc.EncodeSingle(wire.Bytes(rv.Bytes()))
			return nil
		}
		seq := enc.Sequence()
		for i := 0; i < rv.Len(); i++ {
			if err := seq.Append(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if rt.Key().Kind() != reflect.String {
			return &EncodingError{Description: fmt.Sprintf("map key type %s is not string", rt.Key())}
		}
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		sort.Strings(names)
		keyed := enc.Keyed()
		for _, name := range names {
			if err := keyed.Encode(name, rv.MapIndex(reflect.ValueOf(name)).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		return encodeStruct(enc, rv, rt)
	default:
		return &EncodingError{Description: fmt.Sprintf("unsupported type %s", rt)}
	}
}

func encodeStruct(enc *Encoder, rv reflect.Value, rt reflect.Type) error {
	keyed := enc.Keyed()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		name, skip := fieldName(field)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Ptr || fv.Kind() == reflect.Interface {
			if err := keyed.EncodeOptional(name, fv.Interface()); err != nil {
				return err
			}
			continue
		}
		if err := keyed.Encode(name, fv.Interface()); err != nil {
			return err
		}
	}
	return nil
}

func fieldName(field reflect.StructField) (name string, skip bool) {
	tag := field.Tag.Get("xpc")
	if tag == "-" {
		return "", true
	}
	if tag != "" {
		return tag, false
	}
	return field.Name, false
}
