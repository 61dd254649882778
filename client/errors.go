package client

import "fmt"

// ConnectionCannotBeReestablishedError is returned when a call is attempted
// on an endpoint-wrapping client whose one connection has become invalid.
// Unlike named and service clients, an endpoint client has no dial
// function to fall back to.
type ConnectionCannotBeReestablishedError struct{}

func (ConnectionCannotBeReestablishedError) Error() string {
	return "client: connection-cannot-be-reestablished"
}

// RemoteError is the client-side reconstruction of a server error
// response. TypeName and Underlying mirror envelope.ErrorPayload;
// Underlying is nil when the server declined to (or could not) include
// structured error data.
type RemoteError struct {
	LocalizedDescription string
	TypeName             string
	Underlying           error
}

func (e *RemoteError) Error() string { return e.LocalizedDescription }

func (e *RemoteError) Unwrap() error { return e.Underlying }

// MalformedReplyError reports a reply envelope that could not be decoded
// at all (neither a valid success nor a valid error shape).
type MalformedReplyError struct{ Description string }

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("client: malformed reply: %s", e.Description)
}
