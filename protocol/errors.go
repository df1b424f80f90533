package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Error categories. Every failure returned by this package matches exactly one
// of ErrProtocolViolation or ErrUsageViolation via errors.Is, except for the
// stream lifecycle errors (io.EOF, ErrUnexpectedEndOfStream, ErrSourceBroken).
var (
	// ErrProtocolViolation indicates malformed or inconsistent wire bytes
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrUsageViolation indicates misuse of the API (wrong argument counts,
	// double writes, quota exhaustion, and similar)
	ErrUsageViolation = errors.New("usage violation")

	// ErrUnexpectedEndOfStream indicates the transport ended after part of a
	// value had already been framed
	ErrUnexpectedEndOfStream = fmt.Errorf("unexpected end of stream: %w", io.ErrUnexpectedEOF)

	// ErrQuotaExceeded indicates a buffer would grow past its configured maximum
	ErrQuotaExceeded = errors.New("buffer quota exceeded")

	// ErrReleased indicates an attempt to retain memory that was already
	// returned to its pool
	ErrReleased = errors.New("segment already released")

	// ErrSourceBroken indicates a source whose buffered state is indeterminate
	// after a cancelled read, a transport error or a protocol violation
	ErrSourceBroken = errors.New("source is broken and cannot be reused")
)

// ProtocolError represents a RESP parsing error
type ProtocolError struct {
	Message string
	Offset  int64 // byte offset of the offending value within the scanned buffer
	Prefix  Prefix
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	if e.Prefix != PrefixNone {
		return fmt.Sprintf("protocol error at offset %d (%s): %s", e.Offset, e.Prefix, e.Message)
	}
	return fmt.Sprintf("protocol error at offset %d: %s", e.Offset, e.Message)
}

// Is reports whether target is ErrProtocolViolation
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// UsageError represents API misuse
type UsageError struct {
	Op      string
	Message string
	Err     error
}

// Error implements the error interface
func (e *UsageError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Is reports whether target is ErrUsageViolation
func (e *UsageError) Is(target error) bool {
	return target == ErrUsageViolation
}

// Unwrap returns the wrapped error
func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageError(op, format string, args ...interface{}) error {
	return &UsageError{Op: op, Message: fmt.Sprintf(format, args...)}
}
