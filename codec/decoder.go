package codec

import (
	"context"
	"fmt"
	"reflect"

	"github.com/trustedipc/xpc/wire"
)

// Decodable is implemented by user types that want to control their own
// decoding instead of relying on the reflection-based default decoding.
type Decodable interface {
	DecodeXPC(dec *Decoder) error
}

// Decoder wraps one wire value being decoded into a user type.
type Decoder struct {
	ctx   context.Context
	cap   *frameworkCapability
	value wire.Value
}

// NewDecoder returns a user-facing decoder. Transport-only values
// (FileDescriptor, EndpointHandle) refuse to decode through it.
func NewDecoder(ctx context.Context, v wire.Value) *Decoder {
	return &Decoder{ctx: ctx, value: v}
}

// NewFrameworkDecoder returns a decoder carrying the framework's
// capability marker; only server/client package internals should call
// this.
func NewFrameworkDecoder(ctx context.Context, v wire.Value) *Decoder {
	return &Decoder{ctx: ctx, cap: theFrameworkCapability, value: v}
}

// Context returns the coding context threaded through this decode.
func (d *Decoder) Context() context.Context { return d.ctx }

// IsFramework reports whether this decoder carries the framework's
// capability marker.
func (d *Decoder) IsFramework() bool { return d.cap != nil }

// Value returns the raw wire value being decoded.
func (d *Decoder) Value() wire.Value { return d.value }

func (d *Decoder) child(v wire.Value) *Decoder { return &Decoder{ctx: d.ctx, cap: d.cap, value: v} }

// Sequence opens the wire value as an ordered-sequence container.
func (d *Decoder) Sequence() (*SequenceDecoder, error) {
	items, err := d.value.AsArray()
	if err != nil {
		return nil, err
	}
	return &SequenceDecoder{parent: d, items: items}, nil
}

// Keyed opens the wire value as a dictionary container.
func (d *Decoder) Keyed() (*KeyedDecoder, error) {
	dict, err := d.value.AsDict()
	if err != nil {
		return nil, err
	}
	return &KeyedDecoder{parent: d, dict: dict}, nil
}

// SequenceDecoder reads elements, in order, from a sequence container.
type SequenceDecoder struct {
	parent *Decoder
	items  []wire.Value
	idx    int
}

// HasMore reports whether another element remains.
func (s *SequenceDecoder) HasMore() bool { return s.idx < len(s.items) }

// Count returns the total number of elements.
func (s *SequenceDecoder) Count() int { return len(s.items) }

// Next decodes the next element into out, which must be a non-nil pointer.
// Reading past the end fails with ValueNotFoundError.
func (s *SequenceDecoder) Next(out any) error {
	if !s.HasMore() {
		return &ValueNotFoundError{Index: s.idx}
	}
	v := s.items[s.idx]
	s.idx++
	return decodeAny(s.parent.child(v), out)
}

// NextValue returns the next element as a raw wire value.
func (s *SequenceDecoder) NextValue() (wire.Value, error) {
	if !s.HasMore() {
		return wire.Value{}, &ValueNotFoundError{Index: s.idx}
	}
	v := s.items[s.idx]
	s.idx++
	return v, nil
}

// KeyedDecoder reads named fields from a dictionary container.
type KeyedDecoder struct {
	parent *Decoder
	dict   *wire.Dict
}

// Has reports whether key is present.
func (k *KeyedDecoder) Has(key string) bool {
	_, ok := k.dict.Get(key)
	return ok
}

// Decode decodes the value under key into out. A missing key fails with
// KeyNotFoundError.
func (k *KeyedDecoder) Decode(key string, out any) error {
	v, ok := k.dict.Get(key)
	if !ok {
		return &KeyNotFoundError{Key: key}
	}
	return decodeAny(k.parent.child(v), out)
}

// DecodeOptional decodes the value under key into out, leaving out
// untouched if key is absent or holds the null leaf.
func (k *KeyedDecoder) DecodeOptional(key string, out any) error {
	v, ok := k.dict.Get(key)
	if !ok || v.IsNull() {
		return nil
	}
	return decodeAny(k.parent.child(v), out)
}

// Value returns the raw wire value under key, if present.
func (k *KeyedDecoder) Value(key string) (wire.Value, bool) { return k.dict.Get(key) }

// Decode decodes a wire value into out (which must be a non-nil pointer)
// using a user-facing (non-framework) decoder.
func Decode(ctx context.Context, v wire.Value, out any) error {
	return decodeAny(NewDecoder(ctx, v), out)
}

// DecodeFramework is the framework-internal counterpart of Decode.
func DecodeFramework(ctx context.Context, v wire.Value, out any) error {
	return decodeAny(NewFrameworkDecoder(ctx, v), out)
}

// DecodeAs decodes a wire value into a freshly constructed T.
func DecodeAs[T any](ctx context.Context, v wire.Value) (T, error) {
	var out T
	err := Decode(ctx, v, &out)
	return out, err
}

// DecodeAsFramework is the framework-internal counterpart of DecodeAs.
func DecodeAsFramework[T any](ctx context.Context, v wire.Value) (T, error) {
	var out T
	err := DecodeFramework(ctx, v, &out)
	return out, err
}

func decodeAny(d *Decoder, out any) error {
	if dv, ok := out.(Decodable); ok {
		return dv.DecodeXPC(d)
	}
	if wv, ok := out.(*wire.Value); ok {
		*wv = d.value
		return nil
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &DecodingError{Description: "decode target must be a non-nil pointer"}
	}
	elem := rv.Elem()
	rt := elem.Type()

	switch rt {
	case timeType:
		t, err := d.value.AsDate()
		if err != nil {
			return err
		}
		elem.Set(reflect.ValueOf(t))
		return nil
	case uuidType:
		id, err := d.value.AsUUID()
		if err != nil {
			return err
		}
		elem.Set(reflect.ValueOf(id))
		return nil
	}

	switch elem.Kind() {
	case reflect.Bool:
		b, err := d.value.AsBool()
		if err != nil {
			return err
		}
		elem.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decodeSignedInt(d, elem)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decodeUnsignedInt(d, elem)
	case reflect.Float32, reflect.Float64:
		f, err := d.value.AsDouble()
		if err != nil {
			return err
		}
		elem.SetFloat(f)
		return nil
	case reflect.String:
		s, err := d.value.AsString()
		if err != nil {
			return err
		}
		elem.SetString(s)
		return nil
	case reflect.Ptr:
		if d.value.IsNull() {
			elem.Set(reflect.Zero(rt))
			return nil
		}
		next := reflect.New(rt.Elem())
		if err := decodeAny(d, next.Interface()); err != nil {
			return err
		}
		elem.Set(next)
		return nil
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			b, err := d.value.AsBytes()
			if err != nil {
				return err
			}
			elem.SetBytes(append([]byte(nil), b...))
			return nil
		}
		items, err := d.value.AsArray()
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(rt, len(items), len(items))
		for i, item := range items {
			target := reflect.New(rt.Elem())
			if err := decodeAny(d.child(item), target.Interface()); err != nil {
				return err
			}
			out.Index(i).Set(target.Elem())
		}
		elem.Set(out)
		return nil
	case reflect.Map:
		if rt.Key().Kind() != reflect.String {
			return &DecodingError{Description: fmt.Sprintf("map key type %s is not string", rt.Key())}
		}
		dict, err := d.value.AsDict()
		if err != nil {
			return err
		}
		out := reflect.MakeMapWithSize(rt, dict.Len())
		for _, key := range dict.Keys() {
			v, _ := dict.Get(key)
			target := reflect.New(rt.Elem())
			if err := decodeAny(d.child(v), target.Interface()); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(key), target.Elem())
		}
		elem.Set(out)
		return nil
	case reflect.Struct:
		return decodeStruct(d, elem, rt)
	default:
		return &DecodingError{Description: fmt.Sprintf("unsupported type %s", rt)}
	}
}

func decodeSignedInt(d *Decoder, elem reflect.Value) error {
	bits := elem.Type().Bits()
	switch d.value.Kind() {
	case wire.KindInt64:
		v, _ := d.value.AsInt64()
		if !signedFits(v, bits) {
			return &TypeMismatchError{Description: fmt.Sprintf("int64 value %d does not fit in %d-bit signed integer", v, bits)}
		}
		elem.SetInt(v)
		return nil
	case wire.KindUint64:
		v, _ := d.value.AsUint64()
		if v > 1<<63-1 || !signedFits(int64(v), bits) {
			return &TypeMismatchError{Description: fmt.Sprintf("uint64 value %d does not fit in %d-bit signed integer", v, bits)}
		}
		elem.SetInt(int64(v))
		return nil
	default:
		return &TypeMismatchError{Description: fmt.Sprintf("want integer wire kind, got %s", d.value.Kind())}
	}
}

func decodeUnsignedInt(d *Decoder, elem reflect.Value) error {
	bits := elem.Type().Bits()
	switch d.value.Kind() {
	case wire.KindUint64:
		v, _ := d.value.AsUint64()
		if !unsignedFits(v, bits) {
			return &TypeMismatchError{Description: fmt.Sprintf("uint64 value %d does not fit in %d-bit unsigned integer", v, bits)}
		}
		elem.SetUint(v)
		return nil
	case wire.KindInt64:
		v, _ := d.value.AsInt64()
		if v < 0 || !unsignedFits(uint64(v), bits) {
			return &TypeMismatchError{Description: fmt.Sprintf("int64 value %d does not fit in %d-bit unsigned integer", v, bits)}
		}
		elem.SetUint(uint64(v))
		return nil
	default:
		return &TypeMismatchError{Description: fmt.Sprintf("want integer wire kind, got %s", d.value.Kind())}
	}
}

func decodeStruct(d *Decoder, elem reflect.Value, rt reflect.Type) error {
	dict, err := d.value.AsDict()
	if err != nil {
		return err
	}
	keyed := &KeyedDecoder{parent: d, dict: dict}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			continue
		}
		name, skip := fieldName(field)
		if skip {
			continue
		}
		fv := elem.Field(i)
		target := fv.Addr().Interface()
		if fv.Kind() == reflect.Ptr {
			if err := keyed.DecodeOptional(name, target); err != nil {
				return err
			}
			continue
		}
		if err := keyed.Decode(name, target); err != nil {
			return err
		}
	}
	return nil
}
