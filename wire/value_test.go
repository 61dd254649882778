package wire

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTypedAccessorsRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Nanosecond)
	id := uuid.New()

	tests := []struct {
		name  string
		value Value
		check func(t *testing.T, v Value)
	}{
		{"bool", Bool(true), func(t *testing.T, v Value) {
			got, err := v.AsBool()
			if err != nil || got != true {
				t.Fatalf("AsBool() = %v, %v; want true, nil", got, err)
			}
		}},
		{"int64", Int64(-42), func(t *testing.T, v Value) {
			got, err := v.AsInt64()
			if err != nil || got != -42 {
				t.Fatalf("AsInt64() = %v, %v; want -42, nil", got, err)
			}
		}},
		{"uint64", Uint64(42), func(t *testing.T, v Value) {
			got, err := v.AsUint64()
			if err != nil || got != 42 {
				t.Fatalf("AsUint64() = %v, %v; want 42, nil", got, err)
			}
		}},
		{"double", Double(3.5), func(t *testing.T, v Value) {
			got, err := v.AsDouble()
			if err != nil || got != 3.5 {
				t.Fatalf("AsDouble() = %v, %v; want 3.5, nil", got, err)
			}
		}},
		{"string", String("héllo 🌀"), func(t *testing.T, v Value) {
			got, err := v.AsString()
			if err != nil || got != "héllo 🌀" {
				t.Fatalf("AsString() = %q, %v; want héllo 🌀, nil", got, err)
			}
		}},
		{"uuid", UUIDValue(id), func(t *testing.T, v Value) {
			got, err := v.AsUUID()
			if err != nil || got != id {
				t.Fatalf("AsUUID() = %v, %v; want %v, nil", got, err, id)
			}
		}},
		{"date", Date(now), func(t *testing.T, v Value) {
			got, err := v.AsDate()
			if err != nil || !got.Equal(now) {
				t.Fatalf("AsDate() = %v, %v; want %v, nil", got, err, now)
			}
		}},
		{"bytes", Bytes([]byte("blob")), func(t *testing.T, v Value) {
			got, err := v.AsBytes()
			if err != nil || string(got) != "blob" {
				t.Fatalf("AsBytes() = %q, %v; want blob, nil", got, err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, tt.value)
		})
	}
}

func TestAccessorTypeMismatch(t *testing.T) {
	t.Parallel()

	v := String("x")
	if _, err := v.AsInt64(); err == nil {
		t.Fatal("AsInt64() on a string value: want type-mismatch error, got nil")
	} else if _, ok := err.(*TypeMismatchError); !ok {
		t.Fatalf("AsInt64() error type = %T, want *TypeMismatchError", err)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	d1 := NewDict()
	_ = d1.Set("a", Int64(1))
	_ = d1.Set("b", String("x"))

	d2 := NewDict()
	_ = d2.Set("b", String("x"))
	_ = d2.Set("a", Int64(1))

	if !Equal(DictValue(d1), DictValue(d2)) {
		t.Fatal("dictionaries with same entries in different insertion order should be equal")
	}

	arr1 := Array([]Value{Int64(1), Int64(2)})
	arr2 := Array([]Value{Int64(1), Int64(2)})
	arr3 := Array([]Value{Int64(2), Int64(1)})
	if !Equal(arr1, arr2) {
		t.Fatal("identical arrays should be equal")
	}
	if Equal(arr1, arr3) {
		t.Fatal("arrays are ordered; reordered elements should not be equal")
	}
}

func TestDictDuplicateKeyOverwritesNotDuplicates(t *testing.T) {
	t.Parallel()

	d := NewDict()
	_ = d.Set("k", Int64(1))
	_ = d.Set("k", Int64(2))

	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after re-setting the same key", d.Len())
	}
	v, ok := d.Get("k")
	if !ok {
		t.Fatal("Get(k) reported absent after Set")
	}
	got, _ := v.AsInt64()
	if got != 2 {
		t.Fatalf("Get(k) = %d, want 2 (latest write wins)", got)
	}
}

func TestDictRejectsNonASCIIKey(t *testing.T) {
	t.Parallel()

	d := NewDict()
	if err := d.Set("héllo", Int64(1)); err == nil {
		t.Fatal("Set with non-ASCII key: want error, got nil")
	}
}

func TestDictGetAbsentVsWrongType(t *testing.T) {
	t.Parallel()

	d := NewDict()
	_ = d.Set("present", String("wrong-type-for-int"))

	if _, ok := d.Get("absent"); ok {
		t.Fatal("Get(absent) reported present")
	}
	v, ok := d.Get("present")
	if !ok {
		t.Fatal("Get(present) reported absent")
	}
	if _, err := v.AsInt64(); err == nil {
		t.Fatal("AsInt64 on a string-kinded value: want type-mismatch, got nil")
	}
}
