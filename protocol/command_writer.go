package protocol

import (
	"strconv"
	"unsafe"
)

// maxLengthPrefix is the worst-case size of a "<prefix><int64>\r\n" header
const maxLengthPrefix = 1 + 20 + 2

var nullBulk = []byte("$-1\r\n")

// CommandWriter serializes one command at a time into pooled segments.
// The command is an array of bulk strings: the name followed by exactly the
// declared number of arguments. A fixed region at the front of every
// command is reserved for a preamble (see RequestBuffer.WithPreamble).
//
// A CommandWriter is not safe for concurrent use.
type CommandWriter struct {
	buf      *RotatingBuffer
	preamble int

	started  bool
	argCount int
	written  int
}

// NewCommandWriter creates a writer that reserves preambleReservation bytes
// ahead of every command and allocates blockSize segments
func NewCommandWriter(preambleReservation, blockSize int) (*CommandWriter, error) {
	if preambleReservation < 0 {
		return nil, usageError("new command writer", "negative preamble reservation %d", preambleReservation)
	}
	if blockSize <= 0 {
		blockSize = DefaultCommandBlockSize
	}
	buf, err := NewRotatingBuffer(blockSize, 0)
	if err != nil {
		return nil, err
	}
	w := &CommandWriter{
		buf:      buf,
		preamble: preambleReservation,
	}
	if err := w.reserve(); err != nil {
		buf.Close()
		return nil, err
	}
	return w, nil
}

// PreambleReservation returns the number of bytes reserved ahead of each command
func (w *CommandWriter) PreambleReservation() int {
	return w.preamble
}

// Len returns the number of bytes written for the current command,
// including the reserved preamble
func (w *CommandWriter) Len() int64 {
	return w.buf.Len()
}

func (w *CommandWriter) reserve() error {
	if w.preamble == 0 {
		return nil
	}
	return w.buf.Commit(w.preamble)
}

// WriteCommand starts a command with the given name and number of arguments
func (w *CommandWriter) WriteCommand(name []byte, argCount int) error {
	if w.started {
		return usageError("write command", "command header already written")
	}
	if len(name) == 0 {
		return usageError("write command", "command name is empty")
	}
	if argCount < 0 {
		return usageError("write command", "negative argument count %d", argCount)
	}

	need := maxLengthPrefix + maxLengthPrefix + len(name) + 2
	if span, ok := w.buf.TryWritableSpan(need); ok {
		out := span[:0]
		out = append(out, '*')
		out = appendInt(out, int64(argCount)+1)
		out = append(out, '\r', '\n', '$')
		out = appendInt(out, int64(len(name)))
		out = append(out, '\r', '\n')
		out = append(out, name...)
		out = append(out, '\r', '\n')
		if err := w.buf.Commit(len(out)); err != nil {
			return err
		}
	} else {
		if err := w.writeHeader('*', int64(argCount)+1); err != nil {
			return err
		}
		if err := w.writeBulk(name); err != nil {
			return err
		}
	}

	w.started = true
	w.argCount = argCount
	w.written = 0
	return nil
}

// WriteCommandString is WriteCommand for a string name
func (w *CommandWriter) WriteCommandString(name string, argCount int) error {
	return w.WriteCommand(stringBytes(name), argCount)
}

// WriteValue writes one binary argument
func (w *CommandWriter) WriteValue(value []byte) error {
	if err := w.nextArg("write value"); err != nil {
		return err
	}
	return w.writeBulk(value)
}

// WriteString writes one text argument
func (w *CommandWriter) WriteString(value string) error {
	if err := w.nextArg("write string"); err != nil {
		return err
	}
	return w.writeBulk(stringBytes(value))
}

// WriteNull writes one absent argument as a null bulk string
func (w *CommandWriter) WriteNull() error {
	if err := w.nextArg("write null"); err != nil {
		return err
	}
	return w.writeRaw(nullBulk)
}

// WriteInt64 writes one integer argument in its decimal form
func (w *CommandWriter) WriteInt64(value int64) error {
	if err := w.nextArg("write int64"); err != nil {
		return err
	}
	var digits [20]byte
	return w.writeBulk(appendInt(digits[:0], value))
}

func (w *CommandWriter) nextArg(op string) error {
	if !w.started {
		return usageError(op, "WriteCommand must be called first")
	}
	if w.written >= w.argCount {
		return usageError(op, "all %d declared arguments already written", w.argCount)
	}
	w.written++
	return nil
}

// writeBulk emits $<len>\r\n<value>\r\n, in one span when it fits
func (w *CommandWriter) writeBulk(value []byte) error {
	if span, ok := w.buf.TryWritableSpan(maxLengthPrefix + len(value) + 2); ok {
		out := span[:0]
		out = append(out, '$')
		out = appendInt(out, int64(len(value)))
		out = append(out, '\r', '\n')
		out = append(out, value...)
		out = append(out, '\r', '\n')
		return w.buf.Commit(len(out))
	}

	if err := w.writeHeader('$', int64(len(value))); err != nil {
		return err
	}
	if err := w.writeRaw(value); err != nil {
		return err
	}
	return w.writeRaw(crlfBytes)
}

func (w *CommandWriter) writeHeader(prefix byte, n int64) error {
	var header [maxLengthPrefix]byte
	out := append(header[:0], prefix)
	out = appendInt(out, n)
	out = append(out, '\r', '\n')
	return w.writeRaw(out)
}

// writeRaw copies b into the buffer, spilling into new segments as needed
func (w *CommandWriter) writeRaw(b []byte) error {
	for len(b) > 0 {
		span, err := w.buf.WritableTail()
		if err != nil {
			return err
		}
		n := copy(span, b)
		if err := w.buf.Commit(n); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Detach finalizes the current command and returns it as a RequestBuffer.
// The writer is ready for the next command afterwards.
func (w *CommandWriter) Detach() (RequestBuffer, error) {
	if !w.started {
		return RequestBuffer{}, usageError("detach", "no command written")
	}
	if w.written != w.argCount {
		return RequestBuffer{}, usageError("detach", "wrote %d of %d declared arguments", w.written, w.argCount)
	}

	lease := w.buf.Detach()
	w.started = false
	w.argCount, w.written = 0, 0
	if err := w.reserve(); err != nil {
		lease.Release()
		return RequestBuffer{}, err
	}

	return RequestBuffer{
		lease:    lease,
		reserved: int64(w.preamble),
		start:    int64(w.preamble),
	}, nil
}

// Reset discards any partially written command
func (w *CommandWriter) Reset() error {
	w.buf.Detach().Release()
	w.started = false
	w.argCount, w.written = 0, 0
	return w.reserve()
}

// Close releases the writer's segments. Detached RequestBuffers stay valid.
func (w *CommandWriter) Close() {
	w.buf.Close()
}

// appendInt appends the decimal form of v to dst
func appendInt(dst []byte, v int64) []byte {
	return strconv.AppendInt(dst, v, 10)
}

// stringBytes returns a read-only byte view of s without copying
func stringBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
