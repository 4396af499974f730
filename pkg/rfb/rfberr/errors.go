// Package rfberr holds the error kinds surfaced across the RFB engine, per
// the error-handling contract: transport errors terminate a session and are
// reported to the embedder, handshake errors never let a session reach
// Running, and protocol violations close the offending session without
// affecting others.
package rfberr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", ErrX) at the
// call site to attach context; callers can still errors.Is against the
// sentinel.
var (
	ErrIoError           = errors.New("rfb: io error")
	ErrHandshakeTimeout  = errors.New("rfb: handshake timeout")
	ErrAuthFailure       = errors.New("rfb: authentication failure")
	ErrUnsupported       = errors.New("rfb: unsupported protocol version")
	ErrProtocolMismatch  = errors.New("rfb: protocol version mismatch")
	ErrProtocolViolation = errors.New("rfb: protocol violation")
	ErrEncodingFailure   = errors.New("rfb: encoding failure")
	ErrResizeFailure     = errors.New("rfb: framebuffer resize failure")
)

// Wrap annotates err with a message while preserving errors.Is matching
// against the given sentinel.
func Wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
