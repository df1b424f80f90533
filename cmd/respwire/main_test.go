package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/raniellyferreira/respwire"
	"github.com/raniellyferreira/respwire/internal/resptest"
	"github.com/raniellyferreira/respwire/protocol"
)

func TestDecodeStream(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "scalars",
			input:    "+OK\r\n:42\r\n$5\r\nhello\r\n$-1\r\n-ERR boom\r\n",
			expected: "OK\n(integer) 42\n\"hello\"\n(nil)\n(error) ERR boom\n",
		},
		{
			name:     "array",
			input:    "*3\r\n$1\r\na\r\n:2\r\n*0\r\n",
			expected: "1) \"a\"\n2) (integer) 2\n3) (empty array)\n",
		},
		{
			name:     "nested array",
			input:    "*2\r\n*2\r\n:1\r\n:2\r\n$1\r\nx\r\n",
			expected: "1) 1) (integer) 1\n   2) (integer) 2\n2) \"x\"\n",
		},
		{
			name:     "resp3 scalars",
			input:    "_\r\n#t\r\n#f\r\n,1.5\r\n(12345678901234567890\r\n=7\r\ntxt:abc\r\n",
			expected: "(nil)\n(true)\n(false)\n(double) 1.5\n(big number) 12345678901234567890\n\"abc\"\n",
		},
		{
			name:     "map",
			input:    "%2\r\n+a\r\n:1\r\n+b\r\n:2\r\n",
			expected: "1# a => (integer) 1\n2# b => (integer) 2\n",
		},
		{
			name:     "set",
			input:    "~2\r\n:1\r\n:2\r\n",
			expected: "1~ (integer) 1\n2~ (integer) 2\n",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := decodeStream(context.Background(), strings.NewReader(tt.input), &out, 1024, false)
			if err != nil {
				t.Fatalf("decodeStream() error: %v", err)
			}
			if out.String() != tt.expected {
				t.Errorf("expected:\n%s\ngot:\n%s", tt.expected, out.String())
			}
		})
	}
}

func TestDecodeStreamErrors(t *testing.T) {
	var out bytes.Buffer

	err := decodeStream(context.Background(), strings.NewReader("+OK\r\n$10\r\nshort"), &out, 1024, false)
	if err == nil {
		t.Fatal("expected an error for truncated input")
	}
	if out.String() != "OK\n" {
		t.Errorf("expected the complete value before the error, got %q", out.String())
	}

	out.Reset()
	err = decodeStream(context.Background(), strings.NewReader("?bad\r\n"), &out, 1024, false)
	if err == nil {
		t.Fatal("expected an error for an unknown prefix")
	}
}

func TestDecodeStreamRaw(t *testing.T) {
	var out bytes.Buffer
	err := decodeStream(context.Background(), strings.NewReader("+OK\r\n*1\r\n:1\r\n"), &out, 1024, true)
	if err != nil {
		t.Fatalf("decodeStream() error: %v", err)
	}
	expected := "\"+OK\\r\\n\"\n\"*1\\r\\n:1\\r\\n\"\n"
	if out.String() != expected {
		t.Errorf("expected %q, got %q", expected, out.String())
	}
}

func TestEncodeCommand(t *testing.T) {
	req, err := encodeCommand(nil, []string{"SET", "key", "value"})
	if err != nil {
		t.Fatalf("encodeCommand() error: %v", err)
	}
	defer req.Recycle()

	if got := req.String(); got != "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n" {
		t.Errorf("unexpected encoding %q", got)
	}

	preamble := []byte("*1\r\n$4\r\nPING\r\n")
	withPreamble, err := encodeCommand(preamble, []string{"GET", "k"})
	if err != nil {
		t.Fatalf("encodeCommand() error: %v", err)
	}
	defer withPreamble.Recycle()

	if got := withPreamble.String(); got != "*1\r\n$4\r\nPING\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\n" {
		t.Errorf("unexpected encoding %q", got)
	}
	if withPreamble.PreambleLen() != int64(len(preamble)) {
		t.Errorf("expected preamble of %d bytes, got %d", len(preamble), withPreamble.PreambleLen())
	}
}

func TestCommands(t *testing.T) {
	s := resptest.NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer s.Stop()

	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"do set", []string{"do", "--addr", s.Addr(), "SET", "k", "v"}, "OK\n"},
		{"do get", []string{"do", "--addr", s.Addr(), "GET", "k"}, "\"v\"\n"},
		{"do error reply", []string{"do", "--addr", s.Addr(), "NOPE"}, "(error) ERR unknown command 'nope'\n"},
		{"eval", []string{"eval", "--addr", s.Addr(), "return {redis.call('GET', KEYS[1]), ARGV[1]}", "1", "k", "extra"}, "1) \"v\"\n2) \"extra\"\n"},
		{"encode", []string{"encode", "--raw", "PING"}, "*1\r\n$4\r\nPING\r\n"},
		{"version", []string{"version", "--short"}, respwire.Version + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)

			if err := cmd.Execute(); err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if out.String() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, out.String())
			}
		})
	}
}

func TestEvalRejectsBadKeyCount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"eval", "return 1", "3", "only-one"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for a key count larger than the arguments")
	}
}

func TestFormatValue(t *testing.T) {
	v := protocol.Value{Prefix: protocol.PrefixPush, Children: []protocol.Value{
		{Prefix: protocol.PrefixBulkString, Data: []byte("message")},
		{Prefix: protocol.PrefixMap},
	}}

	var out bytes.Buffer
	writeValue(&out, v)
	if got := out.String(); got != "1> \"message\"\n2> (empty hash)\n" {
		t.Errorf("unexpected output %q", got)
	}
}
