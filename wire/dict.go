package wire

import (
	"fmt"
	"unicode"
)

// Dict is a dictionary keyed by NUL-terminated ASCII strings. Insertion
// order is irrelevant to equality but is preserved for deterministic
// iteration and diagnostics. A key appears at most once: setting a key that
// is already present replaces its value.
//
// The key/order split keeps registration order alongside a lookup map
// rather than a bare map[string]Value, so iteration order is never at the
// mercy of Go's map randomization.
type Dict struct {
	order []string
	vals  map[string]Value
}

// NewDict constructs an empty dictionary.
func NewDict() *Dict {
	return &Dict{vals: make(map[string]Value)}
}

// Set inserts or replaces the value for key. Set fails if key is not valid
// ASCII (the transport's native dictionary keys are C strings).
func (d *Dict) Set(key string, v Value) error {
	if !isASCII(key) {
		return fmt.Errorf("wire: dict key %q is not ASCII", key)
	}
	if _, exists := d.vals[key]; !exists {
		d.order = append(d.order, key)
	}
	d.vals[key] = v
	return nil
}

// MustSet is Set, panicking on error; for use with compile-time-known
// ASCII keys such as envelope field names.
func (d *Dict) MustSet(key string, v Value) *Dict {
	if err := d.Set(key, v); err != nil {
		panic(err)
	}
	return d
}

// Get returns the value for key and whether it was present, distinguishing
// "absent" from "present but of a different type" (the caller inspects the
// returned Value's Kind themselves).
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.vals[key]
	return v, ok
}

// Keys returns the dictionary's keys in insertion order.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Len reports the number of entries.
func (d *Dict) Len() int { return len(d.vals) }

// Delete removes key, if present.
func (d *Dict) Delete(key string) {
	if _, ok := d.vals[key]; !ok {
		return
	}
	delete(d.vals, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
