package protocol_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/raniellyferreira/respwire/protocol"
)

func newCommandWriter(t *testing.T, preamble, blockSize int) *protocol.CommandWriter {
	t.Helper()
	w, err := protocol.NewCommandWriter(preamble, blockSize)
	if err != nil {
		t.Fatalf("NewCommandWriter() error = %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func requestBytes(r protocol.RequestBuffer) string {
	return string(r.Bytes().AppendTo(nil))
}

func TestCommandWriter(t *testing.T) {
	tests := []struct {
		name     string
		write    func(w *protocol.CommandWriter) error
		expected string
	}{
		{
			name: "set",
			write: func(w *protocol.CommandWriter) error {
				if err := w.WriteCommandString("SET", 2); err != nil {
					return err
				}
				if err := w.WriteString("key"); err != nil {
					return err
				}
				return w.WriteString("value")
			},
			expected: "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n",
		},
		{
			name:     "no arguments",
			write:    func(w *protocol.CommandWriter) error { return w.WriteCommand([]byte("PING"), 0) },
			expected: "*1\r\n$4\r\nPING\r\n",
		},
		{
			name: "null and empty",
			write: func(w *protocol.CommandWriter) error {
				if err := w.WriteCommandString("ECHO", 2); err != nil {
					return err
				}
				if err := w.WriteNull(); err != nil {
					return err
				}
				return w.WriteValue(nil)
			},
			expected: "*3\r\n$4\r\nECHO\r\n$-1\r\n$0\r\n\r\n",
		},
		{
			name: "integers",
			write: func(w *protocol.CommandWriter) error {
				if err := w.WriteCommandString("INCRBY", 2); err != nil {
					return err
				}
				if err := w.WriteString("counter"); err != nil {
					return err
				}
				return w.WriteInt64(-12)
			},
			expected: "*3\r\n$6\r\nINCRBY\r\n$7\r\ncounter\r\n$3\r\n-12\r\n",
		},
		{
			name: "binary",
			write: func(w *protocol.CommandWriter) error {
				if err := w.WriteCommandString("SET", 2); err != nil {
					return err
				}
				if err := w.WriteValue([]byte{0, '\r', '\n'}); err != nil {
					return err
				}
				return w.WriteString("é")
			},
			expected: "*3\r\n$3\r\nSET\r\n$3\r\n\x00\r\n\r\n$2\r\né\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newCommandWriter(t, 0, 0)
			if err := tt.write(w); err != nil {
				t.Fatalf("write error = %v", err)
			}
			req, err := w.Detach()
			if err != nil {
				t.Fatalf("Detach() error = %v", err)
			}
			defer req.Recycle()

			if got := requestBytes(req); got != tt.expected {
				t.Errorf("request = %q, want %q", got, tt.expected)
			}
			if req.Len() != int64(len(tt.expected)) {
				t.Errorf("Len() = %d, want %d", req.Len(), len(tt.expected))
			}
			span, ok := req.TrySpan()
			if !ok || string(span) != tt.expected {
				t.Errorf("TrySpan() = %q, %v", span, ok)
			}
		})
	}
}

func TestCommandWriterUsageErrors(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *protocol.CommandWriter) error
	}{
		{name: "negative argument count", write: func(w *protocol.CommandWriter) error { return w.WriteCommandString("GET", -1) }},
		{name: "empty name", write: func(w *protocol.CommandWriter) error { return w.WriteCommandString("", 0) }},
		{name: "argument before command", write: func(w *protocol.CommandWriter) error { return w.WriteString("x") }},
		{
			name: "second command header",
			write: func(w *protocol.CommandWriter) error {
				if err := w.WriteCommandString("PING", 0); err != nil {
					return err
				}
				return w.WriteCommandString("PING", 0)
			},
		},
		{
			name: "too many arguments",
			write: func(w *protocol.CommandWriter) error {
				if err := w.WriteCommandString("GET", 1); err != nil {
					return err
				}
				if err := w.WriteString("a"); err != nil {
					return err
				}
				return w.WriteNull()
			},
		},
		{
			name: "early detach",
			write: func(w *protocol.CommandWriter) error {
				if err := w.WriteCommandString("SET", 2); err != nil {
					return err
				}
				if err := w.WriteString("a"); err != nil {
					return err
				}
				_, err := w.Detach()
				return err
			},
		},
		{
			name: "detach without command",
			write: func(w *protocol.CommandWriter) error {
				_, err := w.Detach()
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newCommandWriter(t, 0, 0)
			err := tt.write(w)
			if !errors.Is(err, protocol.ErrUsageViolation) {
				t.Fatalf("error = %v, want usage violation", err)
			}
			if errors.Is(err, protocol.ErrProtocolViolation) {
				t.Errorf("usage error also matched protocol violation")
			}
		})
	}

	if _, err := protocol.NewCommandWriter(-1, 0); !errors.Is(err, protocol.ErrUsageViolation) {
		t.Errorf("NewCommandWriter(-1) error = %v, want usage violation", err)
	}
}

func TestCommandWriterLargeValues(t *testing.T) {
	big := strings.Repeat("v", 5000)
	name := strings.Repeat("N", 1500)

	w := newCommandWriter(t, 0, 1024)
	if err := w.WriteCommandString(name, 2); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("key"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString(big); err != nil {
		t.Fatal(err)
	}
	req, err := w.Detach()
	if err != nil {
		t.Fatal(err)
	}
	defer req.Recycle()

	if _, ok := req.TrySpan(); ok {
		t.Error("TrySpan() succeeded for a multi-segment request")
	}

	v, err := protocol.ParseValue(req.Bytes())
	if err != nil {
		t.Fatalf("ParseValue() error = %v", err)
	}
	cmd, err := protocol.ParseCommand(v)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Name != name || string(cmd.Args[0]) != "key" || string(cmd.Args[1]) != big {
		t.Errorf("ParseCommand() = %d byte name with %d args", len(cmd.Name), len(cmd.Args))
	}

	var buf bytes.Buffer
	n, err := req.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if n != req.Len() || buf.String() != requestBytes(req) {
		t.Errorf("WriteTo() wrote %d bytes, want %d", n, req.Len())
	}
	if req.Sum64() != protocol.LeaseBytes(buf.Bytes()).Sum64() {
		t.Error("Sum64() differs between segmented and flat forms")
	}
}

func TestCommandWriterReuse(t *testing.T) {
	w := newCommandWriter(t, 16, 0)

	for i, name := range []string{"PING", "DBSIZE", "TIME"} {
		if err := w.WriteCommandString(name, 0); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
		req, err := w.Detach()
		if err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
		want := "*1\r\n$" + string(rune('0'+len(name))) + "\r\n" + name + "\r\n"
		if got := requestBytes(req); got != want {
			t.Errorf("command %d = %q, want %q", i, got, want)
		}
		req.Recycle()
	}
}

func TestCommandWriterReset(t *testing.T) {
	w := newCommandWriter(t, 8, 0)
	if err := w.WriteCommandString("SET", 2); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("half"); err != nil {
		t.Fatal(err)
	}
	if err := w.Reset(); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 8 {
		t.Errorf("Len() after Reset = %d, want the 8 reserved bytes", w.Len())
	}

	if err := w.WriteCommandString("PING", 0); err != nil {
		t.Fatal(err)
	}
	req, err := w.Detach()
	if err != nil {
		t.Fatal(err)
	}
	defer req.Recycle()
	if got := requestBytes(req); got != "*1\r\n$4\r\nPING\r\n" {
		t.Errorf("request after Reset = %q", got)
	}
}

func TestRequestBufferPreamble(t *testing.T) {
	const command = "*1\r\n$4\r\nPING\r\n"
	const select0 = "*2\r\n$6\r\nSELECT\r\n$1\r\n0\r\n"

	w := newCommandWriter(t, 32, 0)
	if err := w.WriteCommandString("PING", 0); err != nil {
		t.Fatal(err)
	}
	req, err := w.Detach()
	if err != nil {
		t.Fatal(err)
	}
	defer req.Recycle()

	if got := requestBytes(req); got != command {
		t.Fatalf("request = %q, want %q", got, command)
	}

	same, err := req.WithPreamble(nil)
	if err != nil || requestBytes(same) != command {
		t.Errorf("WithPreamble(nil) = %q, %v", requestBytes(same), err)
	}

	withSelect, err := req.WithPreamble([]byte(select0))
	if err != nil {
		t.Fatalf("WithPreamble() error = %v", err)
	}
	if got := requestBytes(withSelect); got != select0+command {
		t.Errorf("request with preamble = %q", got)
	}
	if withSelect.Len() != int64(len(select0+command)) || withSelect.PreambleLen() != int64(len(select0)) {
		t.Errorf("Len() = %d, PreambleLen() = %d", withSelect.Len(), withSelect.PreambleLen())
	}

	if _, err := withSelect.WithPreamble([]byte("+X\r\n")); !errors.Is(err, protocol.ErrUsageViolation) {
		t.Errorf("second WithPreamble() error = %v, want usage violation", err)
	}

	cleared := withSelect.WithoutPreamble()
	if got := requestBytes(cleared); got != command {
		t.Errorf("WithoutPreamble() = %q, want %q", got, command)
	}
	refilled, err := cleared.WithPreamble([]byte("+X\r\n"))
	if err != nil || requestBytes(refilled) != "+X\r\n"+command {
		t.Errorf("refill = %q, %v", requestBytes(refilled), err)
	}

	if _, err := cleared.WithPreamble(make([]byte, 33)); !errors.Is(err, protocol.ErrUsageViolation) {
		t.Errorf("oversized WithPreamble() error = %v, want usage violation", err)
	}
}

func TestRequestBufferPreambleAcrossSegments(t *testing.T) {
	preamble := bytes.Repeat([]byte("p"), 1000)

	w := newCommandWriter(t, 1500, 1024)
	if err := w.WriteCommandString("PING", 0); err != nil {
		t.Fatal(err)
	}
	req, err := w.Detach()
	if err != nil {
		t.Fatal(err)
	}
	defer req.Recycle()

	filled, err := req.WithPreamble(preamble)
	if err != nil {
		t.Fatalf("WithPreamble() error = %v", err)
	}
	want := string(preamble) + "*1\r\n$4\r\nPING\r\n"
	if got := requestBytes(filled); got != want {
		t.Errorf("request = %d bytes, want %d", len(got), len(want))
	}

	var buf bytes.Buffer
	if _, err := filled.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != want {
		t.Errorf("WriteTo() wrote %d bytes, want %d", buf.Len(), len(want))
	}
}

func TestRequestBufferRecycle(t *testing.T) {
	w := newCommandWriter(t, 0, 0)
	if err := w.WriteCommandString("PING", 0); err != nil {
		t.Fatal(err)
	}
	req, err := w.Detach()
	if err != nil {
		t.Fatal(err)
	}

	req.Recycle()
	if req.Len() != 0 || !req.Bytes().IsEmpty() {
		t.Errorf("recycled buffer still has %d bytes", req.Len())
	}
	req.Recycle()
}
