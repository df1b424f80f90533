package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefix is the type byte that starts every RESP value
type Prefix byte

const (
	PrefixNone Prefix = 0

	// RESP2
	PrefixSimpleString Prefix = '+'
	PrefixSimpleError  Prefix = '-'
	PrefixInteger      Prefix = ':'
	PrefixBulkString   Prefix = '$'
	PrefixArray        Prefix = '*'

	// RESP3
	PrefixNull           Prefix = '_'
	PrefixBoolean        Prefix = '#'
	PrefixDouble         Prefix = ','
	PrefixBigNumber      Prefix = '('
	PrefixBulkError      Prefix = '!'
	PrefixVerbatimString Prefix = '='
	PrefixMap            Prefix = '%'
	PrefixSet            Prefix = '~'
	PrefixPush           Prefix = '>'

	// Streamed strings (';', '.') and attributes ('|') are not supported.
)

// String returns the name of the prefix
func (p Prefix) String() string {
	switch p {
	case PrefixNone:
		return "none"
	case PrefixSimpleString:
		return "simple-string"
	case PrefixSimpleError:
		return "simple-error"
	case PrefixInteger:
		return "integer"
	case PrefixBulkString:
		return "bulk-string"
	case PrefixArray:
		return "array"
	case PrefixNull:
		return "null"
	case PrefixBoolean:
		return "boolean"
	case PrefixDouble:
		return "double"
	case PrefixBigNumber:
		return "big-number"
	case PrefixBulkError:
		return "bulk-error"
	case PrefixVerbatimString:
		return "verbatim-string"
	case PrefixMap:
		return "map"
	case PrefixSet:
		return "set"
	case PrefixPush:
		return "push"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(p))
	}
}

// IsScalar returns true for types that carry a payload
func (p Prefix) IsScalar() bool {
	switch p {
	case PrefixSimpleString, PrefixSimpleError, PrefixInteger,
		PrefixBoolean, PrefixDouble, PrefixBigNumber,
		PrefixBulkError, PrefixBulkString, PrefixVerbatimString:
		return true
	default:
		return false
	}
}

// IsAggregate returns true for types that declare child values
func (p Prefix) IsAggregate() bool {
	switch p {
	case PrefixArray, PrefixSet, PrefixMap, PrefixPush:
		return true
	default:
		return false
	}
}

// IsError returns true for error types
func (p Prefix) IsError() bool {
	return p == PrefixSimpleError || p == PrefixBulkError
}

// Value is a decoded RESP value tree. Scalar payloads are copied out of the
// wire buffer, so a Value outlives the Lease it was parsed from.
//
// A null aggregate (Null set, no Children) and an empty aggregate (Null
// unset, no Children) are distinct.
type Value struct {
	Prefix   Prefix
	Data     []byte
	Children []Value
	Null     bool
}

// String returns a string representation of the value
func (v Value) String() string {
	if v.Null {
		return "(nil)"
	}
	switch {
	case v.Prefix == PrefixMap:
		parts := make([]string, 0, len(v.Children)/2)
		for i := 0; i+1 < len(v.Children); i += 2 {
			parts = append(parts, v.Children[i].String()+": "+v.Children[i+1].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case v.Prefix.IsAggregate():
		parts := make([]string, len(v.Children))
		for i, item := range v.Children {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case v.Prefix == PrefixVerbatimString && len(v.Data) >= 4 && v.Data[3] == ':':
		return string(v.Data[4:])
	case v.Prefix.IsScalar():
		return string(v.Data)
	default:
		return fmt.Sprintf("unknown type %c", byte(v.Prefix))
	}
}

// Bytes returns the payload of a scalar value
func (v Value) Bytes() []byte {
	return v.Data
}

// Int returns the integer value, or 0 if the payload is not an integer
func (v Value) Int() int64 {
	n, err := parseInt64(v.Data)
	if err != nil {
		return 0
	}
	return n
}

// Bool returns the value of a RESP3 boolean
func (v Value) Bool() bool {
	return v.Prefix == PrefixBoolean && len(v.Data) == 1 && v.Data[0] == 't'
}

// Float returns the value of a RESP3 double
func (v Value) Float() (float64, error) {
	switch s := string(v.Data); s {
	case "inf":
		return strconv.ParseFloat("+Inf", 64)
	case "-inf":
		return strconv.ParseFloat("-Inf", 64)
	default:
		return strconv.ParseFloat(s, 64)
	}
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Prefix.IsError()
}

// Error returns the error message if this is an error value
func (v Value) Error() string {
	if v.IsError() {
		return string(v.Data)
	}
	return ""
}

// ReadValue reads one complete value, with all of its children, from r
func ReadValue(r *Reader) (Value, error) {
	ok, err := r.ReadNext()
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, ErrUnexpectedEndOfStream
	}

	v := Value{Prefix: r.Prefix(), Null: r.IsNull()}
	if payload, ok := r.Bytes(); ok {
		v.Data = append([]byte(nil), payload...)
		return v, nil
	}
	if !v.Prefix.IsAggregate() || v.Null {
		return v, nil
	}

	n := r.ChildCount()
	v.Children = make([]Value, n)
	for i := 0; i < n; i++ {
		child, err := ReadValue(r)
		if err != nil {
			return Value{}, err
		}
		v.Children[i] = child
	}
	return v, nil
}

// ParseValue decodes the single top-level value held by l. The lease is not
// released.
func ParseValue(l Lease) (Value, error) {
	r, _ := l.Reader(nil)
	return ReadValue(&r)
}

// Command represents a command parsed from a RESP array
type Command struct {
	Name string
	Args [][]byte
}

// ParseCommand parses a RESP array value into a Command
func ParseCommand(v Value) (*Command, error) {
	if v.Prefix != PrefixArray || len(v.Children) == 0 {
		return nil, fmt.Errorf("invalid command format")
	}

	cmd := &Command{
		Args: make([][]byte, len(v.Children)-1),
	}

	if v.Children[0].Prefix != PrefixBulkString {
		return nil, fmt.Errorf("command name must be bulk string")
	}
	cmd.Name = strings.ToUpper(string(v.Children[0].Data))

	for i := 1; i < len(v.Children); i++ {
		if v.Children[i].Prefix != PrefixBulkString {
			return nil, fmt.Errorf("command arguments must be bulk strings")
		}
		cmd.Args[i-1] = v.Children[i].Data
	}

	return cmd, nil
}

// String returns a string representation of the command
func (c *Command) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = string(arg)
	}
	return c.Name + " " + strings.Join(args, " ")
}
