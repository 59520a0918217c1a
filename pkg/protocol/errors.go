package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidCommand indicates a frame which doesn't match the grammar of
// the current phase.
var ErrInvalidCommand = errors.New("invalid command")

// TransportError wraps errors from the underlying stream.
type TransportError struct {
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap returns the stream error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
