package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/trustedipc/xpc/wire"
)

// encodedMessage is a wire.Value flattened to bytes plus the list of raw
// file descriptors referenced by any FD leaf, in the order encountered.
// The descriptors travel out-of-band as SCM_RIGHTS ancillary data; the
// byte stream carries only their index into that list.
type encodedMessage struct {
	bytes []byte
	fds   []*wire.FD
}

func marshalValue(v wire.Value) (encodedMessage, error) {
	buf := &bytes.Buffer{}
	var fds []*wire.FD
	if err := writeValue(buf, v, &fds); err != nil {
		return encodedMessage{}, err
	}
	return encodedMessage{bytes: buf.Bytes(), fds: fds}, nil
}

func writeValue(buf *bytes.Buffer, v wire.Value, fds *[]*wire.FD) error {
	buf.WriteByte(byte(v.Kind()))
	switch v.Kind() {
	case wire.KindNull:
		return nil
	case wire.KindBool:
		b, _ := v.AsBool()
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case wire.KindInt64:
		n, _ := v.AsInt64()
		return binary.Write(buf, binary.BigEndian, n)
	case wire.KindUint64:
		n, _ := v.AsUint64()
		return binary.Write(buf, binary.BigEndian, n)
	case wire.KindDouble:
		f, _ := v.AsDouble()
		return binary.Write(buf, binary.BigEndian, math.Float64bits(f))
	case wire.KindString:
		s, _ := v.AsString()
		return writeBlob(buf, []byte(s))
	case wire.KindUUID:
		id, _ := v.AsUUID()
		b, _ := id.MarshalBinary()
		buf.Write(b)
		return nil
	case wire.KindDate:
		t, _ := v.AsDate()
		return binary.Write(buf, binary.BigEndian, t.UnixNano())
	case wire.KindBytes:
		b, _ := v.AsBytes()
		return writeBlob(buf, b)
	case wire.KindFD:
		fd, _ := v.AsFD()
		idx := len(*fds)
		*fds = append(*fds, fd)
		return binary.Write(buf, binary.BigEndian, uint32(idx))
	case wire.KindEndpoint:
		ep, _ := v.AsEndpoint()
		if ep.Anonymous {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return writeBlob(buf, []byte(ep.Address))
	case wire.KindArray:
		items, _ := v.AsArray()
		if err := binary.Write(buf, binary.BigEndian, uint32(len(items))); err != nil {
			return err
		}
		for _, item := range items {
			if err := writeValue(buf, item, fds); err != nil {
				return err
			}
		}
		return nil
	case wire.KindDict:
		d, _ := v.AsDict()
		keys := d.Keys()
		if err := binary.Write(buf, binary.BigEndian, uint32(len(keys))); err != nil {
			return err
		}
		for _, key := range keys {
			if err := writeBlob(buf, []byte(key)); err != nil {
				return err
			}
			val, _ := d.Get(key)
			if err := writeValue(buf, val, fds); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("transport: unknown wire kind %v", v.Kind())
	}
}

func writeBlob(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// unmarshalValue rebuilds a wire.Value tree from bytes produced by
// marshalValue, re-binding FD indices to the descriptors received
// out-of-band via SCM_RIGHTS (raw, already duplicated by the kernel).
func unmarshalValue(data []byte, receivedFDs []int) (wire.Value, error) {
	r := bytes.NewReader(data)
	v, err := readValue(r, receivedFDs)
	if err != nil {
		return wire.Value{}, err
	}
	if r.Len() != 0 {
		return wire.Value{}, fmt.Errorf("transport: %d trailing bytes after decoding message", r.Len())
	}
	return v, nil
}

func readValue(r *bytes.Reader, receivedFDs []int) (wire.Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return wire.Value{}, err
	}
	kind := wire.Kind(kindByte)
	switch kind {
	case wire.KindNull:
		return wire.Null(), nil
	case wire.KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return wire.Value{}, err
		}
		return wire.Bool(b != 0), nil
	case wire.KindInt64:
		var n int64
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return wire.Value{}, err
		}
		return wire.Int64(n), nil
	case wire.KindUint64:
		var n uint64
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return wire.Value{}, err
		}
		return wire.Uint64(n), nil
	case wire.KindDouble:
		var bits uint64
		if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
			return wire.Value{}, err
		}
		return wire.Double(math.Float64frombits(bits)), nil
	case wire.KindString:
		b, err := readBlob(r)
		if err != nil {
			return wire.Value{}, err
		}
		return wire.String(string(b)), nil
	case wire.KindUUID:
		buf := make([]byte, 16)
		if _, err := readFull(r, buf); err != nil {
			return wire.Value{}, err
		}
		id, err := uuid.FromBytes(buf)
		if err != nil {
			return wire.Value{}, err
		}
		return wire.UUIDValue(id), nil
	case wire.KindDate:
		var ns int64
		if err := binary.Read(r, binary.BigEndian, &ns); err != nil {
			return wire.Value{}, err
		}
		return wire.Date(time.Unix(0, ns).UTC()), nil
	case wire.KindBytes:
		b, err := readBlob(r)
		if err != nil {
			return wire.Value{}, err
		}
		return wire.Bytes(b), nil
	case wire.KindFD:
		var idx uint32
		if err := binary.Read(r, binary.BigEndian, &idx); err != nil {
			return wire.Value{}, err
		}
		if int(idx) >= len(receivedFDs) {
			return wire.Value{}, fmt.Errorf("transport: fd index %d out of range (%d received)", idx, len(receivedFDs))
		}
		return wire.FDValue(wire.NewFD(receivedFDs[idx], false)), nil
	case wire.KindEndpoint:
		anonByte, err := r.ReadByte()
		if err != nil {
			return wire.Value{}, err
		}
		addr, err := readBlob(r)
		if err != nil {
			return wire.Value{}, err
		}
		ep := wire.Endpoint{Address: string(addr), Anonymous: anonByte != 0}
		return wire.EndpointValue(&ep), nil
	case wire.KindArray:
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return wire.Value{}, err
		}
		items := make([]wire.Value, count)
		for i := range items {
			item, err := readValue(r, receivedFDs)
			if err != nil {
				return wire.Value{}, err
			}
			items[i] = item
		}
		return wire.Array(items), nil
	case wire.KindDict:
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return wire.Value{}, err
		}
		d := wire.NewDict()
		for i := uint32(0); i < count; i++ {
			key, err := readBlob(r)
			if err != nil {
				return wire.Value{}, err
			}
			val, err := readValue(r, receivedFDs)
			if err != nil {
				return wire.Value{}, err
			}
			if err := d.Set(string(key), val); err != nil {
				return wire.Value{}, err
			}
		}
		return wire.DictValue(d), nil
	default:
		return wire.Value{}, fmt.Errorf("transport: unknown wire kind byte %d", kindByte)
	}
}

func readBlob(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		k, err := r.Read(b[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
