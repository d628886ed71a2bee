package payloadextract

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by the run controller when the cancel hook
// requested a stop between partitions. Callers that don't care may ignore
// it with errors.Is.
var ErrCancelled = errors.New("payload-extract: cancelled")

var (
	errUnsupportedWhence = errors.New("unsupported whence")
	errNegativeSeek      = errors.New("resulting seek position is negative")
)

// FormatError covers bad magic, unsupported version, truncated frames,
// malformed BSDF2 headers, and patch length disagreements.
type FormatError struct {
	Msg   string
	Cause error
}

func (e *FormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid payload: %s: %v", e.Msg, e.Cause)
	}
	return "invalid payload: " + e.Msg
}

func (e *FormatError) Unwrap() error { return e.Cause }

// IntegrityError is raised on a SHA-256 mismatch for an operation's
// payload bytes.
type IntegrityError struct {
	OpType     uint32
	DataOffset uint64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("operation data hash mismatch (type=%d, data_offset=%d)", e.OpType, e.DataOffset)
}

// DecodeError wraps a codec failure and names the offending codec.
type DecodeError struct {
	Codec string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decode failed: %v", e.Codec, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// UnsupportedOperation names an operation type code the engine does not
// know how to dispatch.
type UnsupportedOperation struct {
	Code uint32
}

func (e *UnsupportedOperation) Error() string {
	return fmt.Sprintf("unsupported operation type: %d", e.Code)
}

// MissingSource is raised when a SOURCE_COPY or BSDIFF-family operation is
// reached with no old-image reader available.
type MissingSource struct {
	OpType uint32
}

func (e *MissingSource) Error() string {
	return fmt.Sprintf("operation type %d requires an old-image source but none is open", e.OpType)
}

// IOError wraps an underlying read/write/seek failure with a bit of
// context about what was being attempted.
type IOError struct {
	Op    string
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }

// NotFound is raised when a named member (e.g. payload.bin inside a zip)
// cannot be located.
type NotFound struct {
	What string
}

func (e *NotFound) Error() string {
	return "not found: " + e.What
}

func badFormat(msg string) error {
	return &FormatError{Msg: msg}
}

func wrapFormat(msg string, cause error) error {
	return &FormatError{Msg: msg, Cause: cause}
}
