package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

const (
	// CRLF is the RESP line terminator
	CRLF = "\r\n"

	// maxBulkSize is the maximum size for bulk payloads (1GB)
	maxBulkSize = 1024 * 1024 * 1024

	// maxAggregateSize is the maximum declared element count; maps double it
	maxAggregateSize = math.MaxInt32 / 2

	// maxIntegerLine bounds the digits of a length or count line, so that a
	// missing terminator is reported instead of buffering forever
	maxIntegerLine = 20
)

var (
	crlfBytes = []byte(CRLF)
)

// Reader is a zero-copy decoder over one contiguous buffer. Each ReadNext
// call frames exactly one wire value (aggregate headers count as one value;
// their children follow as separate values).
//
// A Reader borrows its buffer: the buffer must not change while the Reader
// is in use, and a Reader must not be kept after the buffer is released.
type Reader struct {
	buf   []byte
	index int

	prefix Prefix
	offset int // payload offset within buf, -1 if none
	length int // payload length or declared element count
	null   bool
}

// NewReader creates a Reader positioned at the start of buf
func NewReader(buf []byte) Reader {
	r := Reader{}
	r.Reset(buf)
	return r
}

// Reset repositions the reader at the start of buf
func (r *Reader) Reset(buf []byte) {
	r.buf = buf
	r.index = 0
	r.resetCurrent()
}

func (r *Reader) resetCurrent() {
	r.prefix = PrefixNone
	r.offset = -1
	r.length = 0
	r.null = false
}

// BytesConsumed returns the number of bytes framed so far
func (r *Reader) BytesConsumed() int64 {
	return int64(r.index)
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.buf) - r.index
}

// Prefix returns the type of the current value
func (r *Reader) Prefix() Prefix {
	return r.prefix
}

// IsScalar returns true if the current value carries a payload
func (r *Reader) IsScalar() bool {
	return r.prefix.IsScalar()
}

// IsAggregate returns true if the current value declares children
func (r *Reader) IsAggregate() bool {
	return r.prefix.IsAggregate()
}

// IsNull returns true for null bulk values, null aggregates and the RESP3
// null marker
func (r *Reader) IsNull() bool {
	return r.null
}

// Length returns the payload length of a scalar or the declared element
// count of an aggregate; null values report 0
func (r *Reader) Length() int {
	return r.length
}

// ChildCount returns the number of child values that follow the current
// value. Maps report two children (key and value) per declared pair.
func (r *Reader) ChildCount() int {
	if r.length <= 0 {
		return 0
	}
	switch r.prefix {
	case PrefixArray, PrefixSet, PrefixPush:
		return r.length
	case PrefixMap:
		return 2 * r.length
	default:
		return 0
	}
}

// Bytes returns the payload of the current scalar value. The slice aliases
// the reader's buffer. Null bulk values return nil, true.
func (r *Reader) Bytes() ([]byte, bool) {
	if !r.IsScalar() {
		return nil, false
	}
	if r.null || r.length == 0 {
		return nil, true
	}
	return r.buf[r.offset : r.offset+r.length], true
}

// Is performs a byte-wise comparison of the current payload with value
func (r *Reader) Is(value []byte) bool {
	payload, ok := r.Bytes()
	if !ok || r.null {
		return false
	}
	return bytes.Equal(payload, value)
}

// IsString performs a byte-wise comparison of the current payload with s
func (r *Reader) IsString(s string) bool {
	payload, ok := r.Bytes()
	if !ok || r.null {
		return false
	}
	return string(payload) == s
}

// CopyTo copies as much of the current payload as fits into dst
func (r *Reader) CopyTo(dst []byte) int {
	payload, ok := r.Bytes()
	if !ok {
		return 0
	}
	return copy(dst, payload)
}

// Text returns the current payload as a string
func (r *Reader) Text() (string, bool) {
	payload, ok := r.Bytes()
	if !ok || r.null {
		return "", false
	}
	return string(payload), true
}

// Int64 parses the current payload as a base-10 integer
func (r *Reader) Int64() (int64, error) {
	payload, ok := r.Bytes()
	if !ok || r.null {
		return 0, strconv.ErrSyntax
	}
	return parseInt64(payload)
}

// ReadNext frames the next value. It returns false with a nil error when the
// buffer does not yet hold a complete value (or holds nothing at all); the
// caller decides, from BytesConsumed and the state of its transport, whether
// that means "read more" or "clean end". Malformed input returns a
// *ProtocolError and must not be retried.
func (r *Reader) ReadNext() (bool, error) {
	r.resetCurrent()

	// shortest possible value is 3 bytes
	if r.index+2 >= len(r.buf) {
		return false, nil
	}

	start := r.index
	prefix := Prefix(r.buf[start])
	rest := r.buf[start+1:]

	switch prefix {
	case PrefixSimpleString, PrefixSimpleError, PrefixInteger,
		PrefixBoolean, PrefixDouble, PrefixBigNumber:
		end := bytes.Index(rest, crlfBytes)
		if end < 0 {
			return false, nil
		}
		r.prefix = prefix
		r.offset = start + 1
		r.length = end
		r.index += end + 3
		return true, nil

	case PrefixBulkString, PrefixBulkError, PrefixVerbatimString:
		n, consumed, ok, err := readIntegerCRLF(rest)
		if err != nil {
			return false, r.violation(start, prefix, "invalid length: %v", err)
		}
		if !ok {
			return false, nil
		}
		if n == -1 {
			r.prefix = prefix
			r.null = true
			r.offset = start + 1 + consumed
			r.index += consumed + 1
			return true, nil
		}
		if n < 0 || n > maxBulkSize {
			return false, r.violation(start, prefix, "invalid length: %d", n)
		}
		length := int(n)
		if length+2 > len(rest)-consumed {
			return false, nil
		}
		if rest[consumed+length] != '\r' || rest[consumed+length+1] != '\n' {
			return false, r.violation(start, prefix, "expected CRLF terminator [13, 10], got [%d, %d]",
				rest[consumed+length], rest[consumed+length+1])
		}
		if prefix == PrefixVerbatimString && length < 4 {
			return false, r.violation(start, prefix, "verbatim payload too short: %d", length)
		}
		r.prefix = prefix
		r.offset = start + 1 + consumed
		r.length = length
		r.index += 1 + consumed + length + 2
		return true, nil

	case PrefixArray, PrefixSet, PrefixMap, PrefixPush:
		n, consumed, ok, err := readIntegerCRLF(rest)
		if err != nil {
			return false, r.violation(start, prefix, "invalid count: %v", err)
		}
		if !ok {
			return false, nil
		}
		if n < -1 || n > maxAggregateSize {
			return false, r.violation(start, prefix, "invalid count: %d", n)
		}
		r.prefix = prefix
		if n == -1 {
			r.null = true
		} else {
			r.length = int(n)
		}
		r.index += consumed + 1
		return true, nil

	case PrefixNull:
		if rest[0] != '\r' || rest[1] != '\n' {
			return false, r.violation(start, prefix, "expected CRLF terminator [13, 10], got [%d, %d]", rest[0], rest[1])
		}
		r.prefix = prefix
		r.null = true
		r.offset = start + 1
		r.index += 3
		return true, nil

	default:
		if prefix == 0 {
			return false, r.violation(start, PrefixNone, "unknown RESP type: empty byte")
		}
		return false, r.violation(start, PrefixNone, "unknown RESP type: %c (0x%02x)", byte(prefix), byte(prefix))
	}
}

func (r *Reader) violation(offset int, prefix Prefix, format string, args ...interface{}) error {
	r.resetCurrent()
	return &ProtocolError{
		Message: fmt.Sprintf(format, args...),
		Offset:  int64(offset),
		Prefix:  prefix,
	}
}

// readIntegerCRLF parses a base-10 integer terminated by CRLF at the start
// of b. It reports ok=false when the terminator has not arrived yet; the
// returned byte count includes the terminator.
func readIntegerCRLF(b []byte) (value int64, consumed int, ok bool, err error) {
	end := bytes.Index(b, crlfBytes)
	if end < 0 {
		if len(b) > maxIntegerLine {
			return 0, 0, false, strconv.ErrRange
		}
		return 0, 0, false, nil
	}
	value, err = parseLength(b[:end])
	if err != nil {
		return 0, 0, false, err
	}
	return value, end + 2, true, nil
}

// parseLength parses a length or count line: plain digits, or exactly -1
func parseLength(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}
	if b[0] == '-' {
		if len(b) == 2 && b[1] == '1' {
			return -1, nil
		}
		return 0, strconv.ErrSyntax
	}
	if b[0] < '0' || b[0] > '9' {
		return 0, strconv.ErrSyntax
	}
	return parseInt64(b)
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var neg bool
	var i int

	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	default:
		i = 0
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}

		d := int64(b[i] - '0')

		// Check for overflow
		if n > (math.MaxInt64-d)/10 {
			return 0, strconv.ErrRange
		}

		n = n*10 + d
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

// Scan runs the framing algorithm over buf: starting from *pending
// outstanding values, it reads values until *pending reaches zero or the
// buffer runs out, replacing each aggregate's slot with its children. It
// returns the number of bytes covered by fully framed values.
func Scan(buf []byte, pending *int) (int64, error) {
	r := NewReader(buf)
	for *pending > 0 {
		ok, err := r.ReadNext()
		if err != nil {
			return r.BytesConsumed(), err
		}
		if !ok {
			break
		}
		*pending = *pending - 1 + r.ChildCount()
	}
	return r.BytesConsumed(), nil
}
