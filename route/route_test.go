package route

import "testing"

type echoRequest struct{ Text string }
type echoReply struct{ Text string }

type configError struct{ Code string }

func (e *configError) Error() string { return "config error: " + e.Code }

func TestRouteIdentityIsPathOnly(t *testing.T) {
	t.Parallel()

	a := Named("config", "update")
	b := Named("config", "update")
	c := Named("config", "read")

	if !a.Equal(b) {
		t.Fatal("routes with identical paths should be equal")
	}
	if a.Equal(c) {
		t.Fatal("routes with different paths should not be equal")
	}
}

func TestDescriptorShapes(t *testing.T) {
	t.Parallel()

	bare := NamedRoute("ping")
	if bare.Shape() != ShapeNoMessageNoReply {
		t.Fatalf("bare shape = %s, want %s", bare.Shape(), ShapeNoMessageNoReply)
	}
	if bare.ExpectsReply() {
		t.Fatal("bare route should not expect a reply")
	}

	withReply := WithReply[echoReply](NamedRoute("time", "now"))
	if withReply.Shape() != ShapeNoMessageOneReply {
		t.Fatalf("withReply shape = %s, want %s", withReply.Shape(), ShapeNoMessageOneReply)
	}
	if !withReply.ExpectsReply() || withReply.Sequential() {
		t.Fatal("withReply should expect a non-sequential reply")
	}

	echo := WithReply[echoReply](WithMessage[echoRequest](NamedRoute("echo")))
	if echo.Shape() != ShapeMessageOneReply {
		t.Fatalf("echo shape = %s, want %s", echo.Shape(), ShapeMessageOneReply)
	}

	stream := WithSequentialReply[int64](WithMessage[echoRequest](NamedRoute("fib")))
	if stream.Shape() != ShapeMessageSequentialReply {
		t.Fatalf("stream shape = %s, want %s", stream.Shape(), ShapeMessageSequentialReply)
	}
	if !stream.Sequential() {
		t.Fatal("stream should be sequential")
	}
}

func TestThrowsDeclaresErrorTypeNotTransmitted(t *testing.T) {
	t.Parallel()

	d := Throws[*configError](WithReply[echoReply](NamedRoute("config", "update")))
	if len(d.ErrorTypes()) != 1 {
		t.Fatalf("len(ErrorTypes()) = %d, want 1", len(d.ErrorTypes()))
	}

	tx := Transmit(d)
	if tx.MessageType != nil {
		t.Fatalf("MessageType = %v, want nil (no message declared)", *tx.MessageType)
	}
	if tx.ReplyType == nil || *tx.ReplyType != "echoReply" {
		t.Fatalf("ReplyType = %v, want %q", tx.ReplyType, "echoReply")
	}
	if !tx.ExpectsReply {
		t.Fatal("ExpectsReply should be true")
	}
}

func TestTransmitOmitsDocString(t *testing.T) {
	t.Parallel()

	d := NamedRoute("ping").Doc("replies immediately")
	if d.Describe() == "" {
		t.Fatal("Describe() should include the doc string")
	}
	tx := Transmit(d)
	_ = tx // Transmitted has no Doc field; this is a compile-time guarantee.
}
