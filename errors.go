package respwire

import (
	"errors"
	"fmt"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrClosed indicates the connection has been closed
	ErrClosed = errors.New("connection is closed")

	// ErrInvalidCommand indicates an empty or malformed command
	ErrInvalidCommand = errors.New("invalid command")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Addr string
	Op   string // "dial", "write", "read"
	Err  error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("connection error to %s: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("connection error to %s (%s): %v", e.Addr, e.Op, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ReplyError is an error reply sent by the server
type ReplyError struct {
	Message string
}

// Error implements the error interface
func (e *ReplyError) Error() string {
	return e.Message
}

// Prefix returns the error code, the first word of the message
func (e *ReplyError) Prefix() string {
	for i := 0; i < len(e.Message); i++ {
		if e.Message[i] == ' ' {
			return e.Message[:i]
		}
	}
	return e.Message
}
