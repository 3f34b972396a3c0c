package liveclient

import (
	"errors"
	"fmt"
)

var ErrHandshakeIncomplete = errors.New("connection closed before handshake completed")

// RejectedError is returned by Connect when the server refused the handshake. Message is
// the server's reason verbatim.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "connection rejected: " + e.Message
}

// DecodeError reports an inbound frame that could not be decoded into what a handler
// expected.
type DecodeError struct {
	Target   string
	TypeName string
	EntityID int64
	Err      error
}

func (e *DecodeError) Error() string {
	if e.TypeName == "" {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode %s for %s %d: %v", e.Target, e.TypeName, e.EntityID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
