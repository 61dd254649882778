package reqid

import (
	"context"
	"testing"
)

func TestWithIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := New()
	ctx := WithID(context.Background(), id)

	if got := FromContext(ctx); got != id {
		t.Fatalf("FromContext() = %v, want %v", got, id)
	}
}

func TestFromContextMissing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ctx  context.Context
	}{
		{"nil context", nil},
		{"no value set", context.Background()},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FromContext(tc.ctx); got.String() != "00000000-0000-0000-0000-000000000000" {
				t.Fatalf("FromContext() = %v, want the zero UUID", got)
			}
		})
	}
}
