package ami

import (
	"errors"
	"fmt"
)

// ErrMalformedLine marks an inbound line without a ":" separator. Such lines
// are dropped; the error is only ever passed to the decoder's malformed hook.
var ErrMalformedLine = errors.New("ami: malformed line")

// ErrClosed is returned for actions issued after the client was closed.
var ErrClosed = errors.New("ami: client closed")

// TransportError is a connection-level failure. It is fatal to the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ami %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationError reports a login the switch refused or never answered.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "ami: authentication failed"
	}
	return "ami: authentication failed: " + e.Message
}

// ActionRejected reports an action the switch answered but declined.
type ActionRejected struct {
	Action  string
	Message string
}

func (e *ActionRejected) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ami: %s rejected", e.Action)
	}
	return fmt.Sprintf("ami: %s rejected: %s", e.Action, e.Message)
}
