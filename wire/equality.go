package wire

import "bytes"

// Equal performs the transport's structural equality predicate over two
// values: leaves compare by value, FD leaves compare by raw descriptor
// identity (never by duplicating), arrays compare element-wise in order,
// and dictionaries compare as sets of key/value pairs (insertion order does
// not affect dictionary equality).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt64:
		return a.i64 == b.i64
	case KindUint64:
		return a.u64 == b.u64
	case KindDouble:
		return a.f64 == b.f64
	case KindString:
		return a.str == b.str
	case KindUUID:
		return a.uid == b.uid
	case KindDate:
		return a.date.Equal(b.date)
	case KindBytes:
		return bytes.Equal(a.blob, b.blob)
	case KindFD:
		if a.fd == nil || b.fd == nil {
			return a.fd == b.fd
		}
		return a.fd.Raw() == b.fd.Raw()
	case KindEndpoint:
		if a.ep == nil || b.ep == nil {
			return a.ep == b.ep
		}
		return a.ep.Equal(*b.ep)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.dict == nil || b.dict == nil {
			return a.dict == b.dict
		}
		if a.dict.Len() != b.dict.Len() {
			return false
		}
		for _, k := range a.dict.Keys() {
			av, _ := a.dict.Get(k)
			bv, ok := b.dict.Get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
