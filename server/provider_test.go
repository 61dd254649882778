package server

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/route"
)

func TestStreamProviderSuccessThenFinished(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	var reported []error
	p := newStreamProvider[int64](route.Named("fib"), uuid.New(), conn, func(_ context.Context, err error, _ uuid.UUID, _ string) {
		reported = append(reported, err)
	}, nil)

	ctx := context.Background()
	if err := p.Success(ctx, 1); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if err := p.Success(ctx, 2); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if err := p.Finished(ctx); err != nil {
		t.Fatalf("Finished: %v", err)
	}

	if len(conn.sent) != 3 {
		t.Fatalf("len(sent) = %d, want 3", len(conn.sent))
	}
	last, err := envelope.DecodeResponse(conn.lastSent())
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !last.IsFinished() {
		t.Fatal("expected the last response to be the finished sentinel")
	}
	if len(reported) != 0 {
		t.Fatalf("unexpected onError calls: %v", reported)
	}
}

func TestStreamProviderFinishedIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	var reported []error
	p := newStreamProvider[int64](route.Named("fib"), uuid.New(), conn, func(_ context.Context, err error, _ uuid.UUID, _ string) {
		reported = append(reported, err)
	}, nil)

	ctx := context.Background()
	_ = p.Finished(ctx)
	_ = p.Finished(ctx)

	if len(conn.sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1 (second Finished should be a no-op on the wire)", len(conn.sent))
	}
	if len(reported) != 1 {
		t.Fatalf("len(reported) = %d, want 1 (second Finished should report sequence-finished)", len(reported))
	}
	if _, ok := reported[0].(*SequenceFinishedError); !ok {
		t.Fatalf("reported[0] = %T, want *SequenceFinishedError", reported[0])
	}
}

func TestStreamProviderFailureFinishesTheSequence(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	p := newStreamProvider[int64](route.Named("fib"), uuid.New(), conn, func(context.Context, error, uuid.UUID, string) {}, nil)

	ctx := context.Background()
	if err := p.Failure(ctx, errBoom{}); err != nil {
		t.Fatalf("Failure: %v", err)
	}
	resp, err := envelope.DecodeResponse(conn.lastSent())
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}

	// Any further operation is a no-op on the wire.
	if err := p.Success(ctx, 1); err != nil {
		t.Fatalf("Success after Failure: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1", len(conn.sent))
	}
}

func TestStreamProviderFinishOnDropFinishesUnterminatedSequence(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	p := newStreamProvider[int64](route.Named("fib"), uuid.New(), conn, func(context.Context, error, uuid.UUID, string) {}, nil)

	ctx := context.Background()
	_ = p.Success(ctx, 1)
	p.finishOnDrop(ctx)

	if len(conn.sent) != 2 {
		t.Fatalf("len(sent) = %d, want 2 (one Success, one auto-Finished)", len(conn.sent))
	}
	resp, err := envelope.DecodeResponse(conn.lastSent())
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !resp.IsFinished() {
		t.Fatal("expected finishOnDrop to send the finished sentinel")
	}
}

func TestStreamProviderRespondDispatchesOnError(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	p := newStreamProvider[int64](route.Named("fib"), uuid.New(), conn, func(context.Context, error, uuid.UUID, string) {}, nil)

	ctx := context.Background()
	if err := p.Respond(ctx, 0, errBoom{}); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	resp, err := envelope.DecodeResponse(conn.lastSent())
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected Respond with a non-nil error to send an error response")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
