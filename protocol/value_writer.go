package protocol

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ValueWriter writes RESP2 and RESP3 values to a buffered stream. It is the
// reply side used by servers and tools; clients build requests with
// CommandWriter.
type ValueWriter struct {
	bw      *bufio.Writer
	scratch [24]byte
}

// NewValueWriter creates a new RESP value writer
func NewValueWriter(w io.Writer) *ValueWriter {
	return &ValueWriter{
		bw: bufio.NewWriter(w),
	}
}

// WriteValue writes a value tree
func (w *ValueWriter) WriteValue(v Value) error {
	switch v.Prefix {
	case PrefixSimpleString, PrefixSimpleError, PrefixInteger,
		PrefixBoolean, PrefixDouble, PrefixBigNumber:
		return w.writeLine(v.Prefix, v.Data)
	case PrefixBulkString, PrefixBulkError, PrefixVerbatimString:
		if v.Null {
			return w.writeHeader(v.Prefix, -1)
		}
		return w.writeBulk(v.Prefix, v.Data)
	case PrefixNull:
		return w.WriteNull()
	case PrefixArray, PrefixSet, PrefixPush:
		if v.Null {
			return w.writeHeader(v.Prefix, -1)
		}
		if err := w.writeHeader(v.Prefix, int64(len(v.Children))); err != nil {
			return err
		}
		return w.writeChildren(v.Children)
	case PrefixMap:
		if v.Null {
			return w.writeHeader(v.Prefix, -1)
		}
		if len(v.Children)%2 != 0 {
			return fmt.Errorf("map value has odd number of children: %d", len(v.Children))
		}
		if err := w.writeHeader(v.Prefix, int64(len(v.Children)/2)); err != nil {
			return err
		}
		return w.writeChildren(v.Children)
	default:
		return fmt.Errorf("unsupported value type: %s", v.Prefix)
	}
}

func (w *ValueWriter) writeChildren(children []Value) error {
	for _, child := range children {
		if err := w.WriteValue(child); err != nil {
			return err
		}
	}
	return nil
}

// WriteSimpleString writes a simple string
func (w *ValueWriter) WriteSimpleString(s string) error {
	return w.writeLine(PrefixSimpleString, stringBytes(s))
}

// WriteError writes an error message
func (w *ValueWriter) WriteError(msg string) error {
	return w.writeLine(PrefixSimpleError, stringBytes(msg))
}

// WriteInteger writes an integer
func (w *ValueWriter) WriteInteger(n int64) error {
	return w.writeLine(PrefixInteger, appendInt(w.scratch[:0], n))
}

// WriteBulkString writes a bulk string
func (w *ValueWriter) WriteBulkString(data []byte) error {
	return w.writeBulk(PrefixBulkString, data)
}

// WriteBulkStringFromString writes a bulk string from a string
func (w *ValueWriter) WriteBulkStringFromString(s string) error {
	return w.writeBulk(PrefixBulkString, stringBytes(s))
}

// WriteNullBulkString writes a null bulk string
func (w *ValueWriter) WriteNullBulkString() error {
	return w.writeHeader(PrefixBulkString, -1)
}

// WriteArrayHeader writes an array header; the caller writes n values next
func (w *ValueWriter) WriteArrayHeader(n int) error {
	return w.writeHeader(PrefixArray, int64(n))
}

// WriteArray writes an array of values
func (w *ValueWriter) WriteArray(values []Value) error {
	if err := w.WriteArrayHeader(len(values)); err != nil {
		return err
	}
	return w.writeChildren(values)
}

// WriteNullArray writes a null array
func (w *ValueWriter) WriteNullArray() error {
	return w.writeHeader(PrefixArray, -1)
}

// WriteMapHeader writes a map header; the caller writes n key/value pairs next
func (w *ValueWriter) WriteMapHeader(n int) error {
	return w.writeHeader(PrefixMap, int64(n))
}

// WriteSetHeader writes a set header
func (w *ValueWriter) WriteSetHeader(n int) error {
	return w.writeHeader(PrefixSet, int64(n))
}

// WritePushHeader writes a push header
func (w *ValueWriter) WritePushHeader(n int) error {
	return w.writeHeader(PrefixPush, int64(n))
}

// WriteNull writes the RESP3 null
func (w *ValueWriter) WriteNull() error {
	if err := w.bw.WriteByte(byte(PrefixNull)); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteBoolean writes a RESP3 boolean
func (w *ValueWriter) WriteBoolean(b bool) error {
	if b {
		return w.writeLine(PrefixBoolean, []byte{'t'})
	}
	return w.writeLine(PrefixBoolean, []byte{'f'})
}

// WriteDouble writes a RESP3 double
func (w *ValueWriter) WriteDouble(f float64) error {
	var out []byte
	switch {
	case math.IsInf(f, 1):
		out = append(w.scratch[:0], "inf"...)
	case math.IsInf(f, -1):
		out = append(w.scratch[:0], "-inf"...)
	case math.IsNaN(f):
		out = append(w.scratch[:0], "nan"...)
	default:
		out = strconv.AppendFloat(w.scratch[:0], f, 'g', -1, 64)
	}
	return w.writeLine(PrefixDouble, out)
}

// WriteBigNumber writes a RESP3 big number from its decimal digits
func (w *ValueWriter) WriteBigNumber(digits string) error {
	return w.writeLine(PrefixBigNumber, stringBytes(digits))
}

// WriteBulkError writes a RESP3 bulk error
func (w *ValueWriter) WriteBulkError(msg string) error {
	return w.writeBulk(PrefixBulkError, stringBytes(msg))
}

// WriteVerbatimString writes a RESP3 verbatim string with a three letter
// format such as "txt" or "mkd"
func (w *ValueWriter) WriteVerbatimString(format, text string) error {
	if len(format) != 3 {
		return fmt.Errorf("verbatim format must be 3 bytes, got %q", format)
	}
	if err := w.writeHeader(PrefixVerbatimString, int64(len(text)+4)); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(format); err != nil {
		return err
	}
	if err := w.bw.WriteByte(':'); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(text); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteCommand writes a Redis command as a RESP array
func (w *ValueWriter) WriteCommand(cmd string, args ...string) error {
	if err := w.WriteArrayHeader(1 + len(args)); err != nil {
		return err
	}
	if err := w.WriteBulkStringFromString(cmd); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.WriteBulkStringFromString(arg); err != nil {
			return err
		}
	}
	return nil
}

// WriteRaw writes pre-encoded bytes unchanged
func (w *ValueWriter) WriteRaw(b []byte) error {
	_, err := w.bw.Write(b)
	return err
}

// WriteOK writes a simple "OK" response
func (w *ValueWriter) WriteOK() error {
	return w.WriteSimpleString("OK")
}

// WritePONG writes a simple "PONG" response
func (w *ValueWriter) WritePONG() error {
	return w.WriteSimpleString("PONG")
}

// Flush flushes any buffered data to the underlying writer
func (w *ValueWriter) Flush() error {
	return w.bw.Flush()
}

// Reset resets the writer to write to a new underlying writer
func (w *ValueWriter) Reset(writer io.Writer) {
	w.bw.Reset(writer)
}

func (w *ValueWriter) writeLine(prefix Prefix, payload []byte) error {
	if err := w.bw.WriteByte(byte(prefix)); err != nil {
		return err
	}
	if _, err := w.bw.Write(payload); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *ValueWriter) writeHeader(prefix Prefix, n int64) error {
	if err := w.bw.WriteByte(byte(prefix)); err != nil {
		return err
	}
	if _, err := w.bw.Write(appendInt(w.scratch[:0], n)); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *ValueWriter) writeBulk(prefix Prefix, data []byte) error {
	if err := w.writeHeader(prefix, int64(len(data))); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	return w.writeCRLF()
}

// writeCRLF writes the CRLF terminator
func (w *ValueWriter) writeCRLF() error {
	_, err := w.bw.WriteString(CRLF)
	return err
}
