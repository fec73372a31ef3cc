package session

import (
	"errors"
	"fmt"

	"github.com/muurk/banddump/internal/protocol"
)

// ErrAlreadyRun is returned when Run is called a second time
var ErrAlreadyRun = errors.New("session already run")

// TransportError is a failure reported by the transport, passed through
// without reinterpretation. Op names what the session was doing.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SinkError is a failure to persist the finished image
type SinkError struct {
	Size int
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("failed to persist %d-byte image: %v", e.Size, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// isTransport reports whether err came from the transport rather than from
// decoding what it delivered
func isTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// asHandshake keeps transport errors as they are and turns decode failures
// into HandshakeFailed
func asHandshake(step string, err error) error {
	if isTransport(err) || errors.Is(err, protocol.ErrUnsupportedCommand) {
		return err
	}
	return protocol.NewHandshakeError(step, err)
}
