package server

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/envelope"
	"github.com/trustedipc/xpc/internal/xpclog"
)

// errorPayloadFor builds the wire error payload for handlerErr. If
// handlerErr's concrete type matches one of declaredTypes, it is encoded
// into underlyingError so the client can reconstruct it exactly;
// otherwise the response carries only the localized description and a
// nil underlying error.
func errorPayloadFor(ctx context.Context, handlerErr error, declaredTypes []reflect.Type) envelope.ErrorPayload {
	payload := envelope.ErrorPayload{
		LocalizedDescription: handlerErr.Error(),
		TypeName:             reflect.TypeOf(handlerErr).String(),
	}
	concrete := reflect.TypeOf(handlerErr)
	for _, declared := range declaredTypes {
		if concrete == declared {
			if v, err := codec.EncodeFramework(ctx, handlerErr); err == nil {
				if d, derr := v.AsDict(); derr == nil {
					payload.UnderlyingError = d
				}
			}
			break
		}
	}
	return payload
}

// errorKind classifies an error surfaced to the server's error-handler
// hook, for the structured logging fields described in the ambient
// logging section.
type errorKind string

const (
	kindInsecure         errorKind = "insecure"
	kindRouteMismatch    errorKind = "route-mismatch"
	kindHandlerError     errorKind = "handler-error"
	kindEncodingError    errorKind = "encoding-error"
	kindTransportError   errorKind = "transport-error"
	kindSequenceFinished errorKind = "sequence-finished"
)

func logDispatchError(log *logrus.Logger, routeName, requestID string, err error, kind errorKind) {
	if log == nil {
		return
	}
	xpclog.ForRoute(log, routeName, requestID).
		WithField("component", "server").
		WithField("kind", string(kind)).
		WithError(err).Warn("dispatch error")
}
