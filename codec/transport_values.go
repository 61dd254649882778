package codec

import "github.com/trustedipc/xpc/wire"

// FileDescriptor wraps a wire.FD so it can appear inside a user message
// type. It refuses to encode or decode through any coder but the
// framework's own, per spec: a user-supplied Encoder/Decoder lacks the
// capability marker checked here.
type FileDescriptor struct {
	FD *wire.FD
}

// EncodeXPC implements Encodable.
func (f FileDescriptor) EncodeXPC(enc *Encoder) error {
	if !enc.IsFramework() {
		return ErrOnlyEncodableByFramework
	}
	enc.EncodeSingle(wire.FDValue(f.FD))
	return nil
}

// DecodeXPC implements Decodable.
func (f *FileDescriptor) DecodeXPC(dec *Decoder) error {
	if !dec.IsFramework() {
		return ErrOnlyDecodableByFramework
	}
	fd, err := dec.Value().AsFD()
	if err != nil {
		return err
	}
	f.FD = fd
	return nil
}

// EndpointHandle wraps a wire.Endpoint so it can appear inside a user
// message or reply type, subject to the same framework-only gating as
// FileDescriptor.
type EndpointHandle struct {
	Endpoint wire.Endpoint
}

// EncodeXPC implements Encodable.
func (e EndpointHandle) EncodeXPC(enc *Encoder) error {
	if !enc.IsFramework() {
		return ErrOnlyEncodableByFramework
	}
	enc.EncodeSingle(wire.EndpointValue(&e.Endpoint))
	return nil
}

// DecodeXPC implements Decodable.
func (e *EndpointHandle) DecodeXPC(dec *Decoder) error {
	if !dec.IsFramework() {
		return ErrOnlyDecodableByFramework
	}
	ep, err := dec.Value().AsEndpoint()
	if err != nil {
		return err
	}
	e.Endpoint = *ep
	return nil
}
