package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/trustedipc/xpc/wire"
)

// PODElement marks a type as copyable with no indirection (no pointers,
// slices, strings or interfaces), making it safe to transmit as a raw byte
// blob. Implement it with a no-op method:
//
//	func (Point) xpcPOD() {}
//
// Only types wrapped in Trivial opt into the fast path; an ordinary array
// of PODElement values still encodes as an ordered sequence unless the
// caller explicitly asks for the byte-blob representation.
type PODElement interface {
	xpcPOD()
}

// Trivial wraps a slice of a POD element type so that Encode/Decode use the
// single-blob fast path: the blob's length is always count × stride, and
// decoding re-binds the blob's bytes into a freshly allocated slice.
type Trivial[T PODElement] []T

// EncodeXPC implements Encodable using the fast path.
func (t Trivial[T]) EncodeXPC(enc *Encoder) error {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, []T(t)); err != nil {
		return &EncodingError{Description: fmt.Sprintf("trivial array element is not fixed-size: %v", err)}
	}
	enc.EncodeSingle(wire.Bytes(buf.Bytes()))
	return nil
}

// DecodeXPC implements Decodable using the fast path.
func (t *Trivial[T]) DecodeXPC(dec *Decoder) error {
	blob, err := dec.Value().AsBytes()
	if err != nil {
		return err
	}
	var zero T
	stride := binary.Size(zero)
	if stride <= 0 {
		return &DecodingError{Description: "trivial array element is not fixed-size"}
	}
	if len(blob)%stride != 0 {
		return &DataCorruptedError{Description: fmt.Sprintf("blob length %d is not a multiple of element stride %d", len(blob), stride)}
	}
	count := len(blob) / stride
	out := make([]T, count)
	if count > 0 {
		if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, out); err != nil {
			return &DataCorruptedError{Description: err.Error()}
		}
	}
	*t = out
	return nil
}
