// Package envelope implements the request/response dictionary schema
// carried over the transport: {route, request-id, payload,
// client-bookmark} for requests, and {request-id, payload-or-error} for
// responses.
package envelope

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/trustedipc/xpc/codec"
	"github.com/trustedipc/xpc/route"
	"github.com/trustedipc/xpc/wire"
)

// Dictionary keys used by both envelope shapes. These are never exposed to
// handler code; they exist only at the wire boundary.
const (
	KeyRoute          = "__route"
	KeyRequestID      = "__request_id"
	KeyPayload        = "__payload"
	KeyError          = "__error"
	KeyClientBookmark = "__client_bookmark"
)

// Request is the decoded form of a request envelope.
type Request struct {
	Route          route.Transmitted
	RequestID      uuid.UUID
	Payload        *wire.Value
	ClientBookmark []byte
}

// EncodeRequest builds the wire dictionary for a request. tx is the
// transmitted route descriptor; payload is nil for message-less routes;
// bookmark is the client's own bundle bookmark, always present.
func EncodeRequest(ctx context.Context, tx route.Transmitted, requestID uuid.UUID, payload *wire.Value, bookmark []byte) (wire.Value, error) {
	routeVal, err := codec.EncodeFramework(ctx, tx)
	if err != nil {
		return wire.Value{}, fmt.Errorf("envelope: encoding route: %w", err)
	}

	d := wire.NewDict()
	if err := d.Set(KeyRoute, routeVal); err != nil {
		return wire.Value{}, err
	}
	if err := d.Set(KeyRequestID, wire.UUIDValue(requestID)); err != nil {
		return wire.Value{}, err
	}
	if err := d.Set(KeyClientBookmark, wire.Bytes(bookmark)); err != nil {
		return wire.Value{}, err
	}
	if payload != nil {
		if err := d.Set(KeyPayload, *payload); err != nil {
			return wire.Value{}, err
		}
	}
	return wire.DictValue(d), nil
}

// DecodeRequest parses v as a request envelope.
func DecodeRequest(ctx context.Context, v wire.Value) (*Request, error) {
	d, err := v.AsDict()
	if err != nil {
		return nil, err
	}

	routeVal, ok := d.Get(KeyRoute)
	if !ok {
		return nil, &MalformedEnvelopeError{Description: "missing " + KeyRoute}
	}
	tx, err := codec.DecodeAsFramework[route.Transmitted](ctx, routeVal)
	if err != nil {
		return nil, fmt.Errorf("envelope: decoding route: %w", err)
	}

	idVal, ok := d.Get(KeyRequestID)
	if !ok {
		return nil, &MalformedEnvelopeError{Description: "missing " + KeyRequestID}
	}
	id, err := idVal.AsUUID()
	if err != nil {
		return nil, err
	}

	req := &Request{Route: tx, RequestID: id}

	if bm, ok := d.Get(KeyClientBookmark); ok {
		blob, err := bm.AsBytes()
		if err != nil {
			return nil, err
		}
		req.ClientBookmark = blob
	}

	if p, ok := d.Get(KeyPayload); ok {
		req.Payload = &p
	}
	return req, nil
}

// ErrorPayload is the error shape carried in an error response envelope.
type ErrorPayload struct {
	LocalizedDescription string
	TypeName             string
	UnderlyingError      *wire.Dict
}

// Response is the decoded form of a response envelope. Exactly one of
// Payload and Error is non-nil, or neither for the streaming-finished
// sentinel.
type Response struct {
	RequestID uuid.UUID
	Payload   *wire.Value
	Error     *ErrorPayload
}

// IsFinished reports whether r is the streaming-finished sentinel: neither
// a payload nor an error.
func (r *Response) IsFinished() bool { return r.Payload == nil && r.Error == nil }

// EncodeResponse builds the wire dictionary for a successful response.
func EncodeResponse(requestID uuid.UUID, payload *wire.Value) (wire.Value, error) {
	d := wire.NewDict()
	if err := d.Set(KeyRequestID, wire.UUIDValue(requestID)); err != nil {
		return wire.Value{}, err
	}
	if payload != nil {
		if err := d.Set(KeyPayload, *payload); err != nil {
			return wire.Value{}, err
		}
	}
	return wire.DictValue(d), nil
}

// EncodeErrorResponse builds the wire dictionary for an error response.
func EncodeErrorResponse(requestID uuid.UUID, errPayload ErrorPayload) (wire.Value, error) {
	d := wire.NewDict()
	if err := d.Set(KeyRequestID, wire.UUIDValue(requestID)); err != nil {
		return wire.Value{}, err
	}

	errDict := wire.NewDict()
	if err := errDict.Set("localizedDescription", wire.String(errPayload.LocalizedDescription)); err != nil {
		return wire.Value{}, err
	}
	if err := errDict.Set("typeName", wire.String(errPayload.TypeName)); err != nil {
		return wire.Value{}, err
	}
	if errPayload.UnderlyingError != nil {
		if err := errDict.Set("underlyingError", wire.DictValue(errPayload.UnderlyingError)); err != nil {
			return wire.Value{}, err
		}
	}
	if err := d.Set(KeyError, wire.DictValue(errDict)); err != nil {
		return wire.Value{}, err
	}
	return wire.DictValue(d), nil
}

// DecodeResponse parses v as a response envelope.
func DecodeResponse(v wire.Value) (*Response, error) {
	d, err := v.AsDict()
	if err != nil {
		return nil, err
	}

	idVal, ok := d.Get(KeyRequestID)
	if !ok {
		return nil, &MalformedEnvelopeError{Description: "missing " + KeyRequestID}
	}
	id, err := idVal.AsUUID()
	if err != nil {
		return nil, err
	}

	resp := &Response{RequestID: id}

	payloadVal, hasPayload := d.Get(KeyPayload)
	errVal, hasError := d.Get(KeyError)
	if hasPayload && hasError {
		return nil, &MalformedEnvelopeError{Description: "response carries both " + KeyPayload + " and " + KeyError}
	}
	if hasPayload {
		resp.Payload = &payloadVal
		return resp, nil
	}
	if hasError {
		errDict, err := errVal.AsDict()
		if err != nil {
			return nil, err
		}
		ep := &ErrorPayload{}
		if s, ok := errDict.Get("localizedDescription"); ok {
			ep.LocalizedDescription, _ = s.AsString()
		}
		if s, ok := errDict.Get("typeName"); ok {
			ep.TypeName, _ = s.AsString()
		}
		if u, ok := errDict.Get("underlyingError"); ok {
			ud, err := u.AsDict()
			if err != nil {
				return nil, err
			}
			ep.UnderlyingError = ud
		}
		resp.Error = ep
		return resp, nil
	}
	// Neither key present: the streaming-finished sentinel.
	return resp, nil
}

// MalformedEnvelopeError reports an envelope dictionary missing a
// required key or carrying an invalid combination of keys.
type MalformedEnvelopeError struct{ Description string }

func (e *MalformedEnvelopeError) Error() string { return "envelope: malformed: " + e.Description }
