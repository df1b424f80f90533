package protocol

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"testing"
)

// BenchmarkReaderParseSimpleString benchmarks parsing simple strings
func BenchmarkReaderParseSimpleString(b *testing.B) {
	input := []byte("+OK\r\n")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r := NewReader(input)
		if _, err := r.ReadNext(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkReaderParseBulkString benchmarks parsing bulk strings
func BenchmarkReaderParseBulkString(b *testing.B) {
	sizes := []struct {
		name string
		data []byte
	}{
		{"Small_16B", bytes.Repeat([]byte("x"), 16)},
		{"Medium_1KB", bytes.Repeat([]byte("x"), 1024)},
		{"Large_64KB", bytes.Repeat([]byte("x"), 64*1024)},
	}

	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			input := bulk(size.data)

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(len(size.data)))

			for i := 0; i < b.N; i++ {
				r := NewReader(input)
				if _, err := r.ReadNext(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkScanCommand benchmarks framing common Redis commands
func BenchmarkScanCommand(b *testing.B) {
	commands := []struct {
		name  string
		input []byte
	}{
		{name: "GET", input: []byte("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n")},
		{name: "SET", input: []byte("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n")},
		{name: "MAP", input: []byte("%2\r\n+server\r\n$5\r\nredis\r\n+proto\r\n:3\r\n")},
	}

	for _, cmd := range commands {
		b.Run(cmd.name, func(b *testing.B) {
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				pending := 1
				if _, err := Scan(cmd.input, &pending); err != nil || pending != 0 {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkStreamSource benchmarks framing a pipelined reply stream
func BenchmarkStreamSource(b *testing.B) {
	var stream bytes.Buffer
	for i := 0; i < 1000; i++ {
		stream.WriteString("*2\r\n$3\r\nfoo\r\n:")
		stream.WriteString(strconv.Itoa(i))
		stream.WriteString("\r\n")
	}
	input := stream.Bytes()

	b.ResetTimer()
	b.ReportAllocs()
	b.SetBytes(int64(len(input)))

	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		src, err := NewStreamSource(bytes.NewReader(input))
		if err != nil {
			b.Fatal(err)
		}
		for {
			l, err := src.ReadNext(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				b.Fatal(err)
			}
			l.Release()
		}
		src.Close()
	}
}

// BenchmarkCommandWriter benchmarks encoding commands into pooled segments
func BenchmarkCommandWriter(b *testing.B) {
	values := []struct {
		name  string
		value string
	}{
		{"Small_16B", string(bytes.Repeat([]byte("v"), 16))},
		{"Medium_1KB", string(bytes.Repeat([]byte("v"), 1024))},
		{"Large_64KB", string(bytes.Repeat([]byte("v"), 64*1024))},
	}

	for _, v := range values {
		b.Run(v.name, func(b *testing.B) {
			w, err := NewCommandWriter(0, DefaultCommandBlockSize)
			if err != nil {
				b.Fatal(err)
			}
			defer w.Close()

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(len(v.value)))

			for i := 0; i < b.N; i++ {
				if err := w.WriteCommandString("SET", 2); err != nil {
					b.Fatal(err)
				}
				if err := w.WriteString("key"); err != nil {
					b.Fatal(err)
				}
				if err := w.WriteString(v.value); err != nil {
					b.Fatal(err)
				}
				req, err := w.Detach()
				if err != nil {
					b.Fatal(err)
				}
				if _, err := req.WriteTo(io.Discard); err != nil {
					b.Fatal(err)
				}
				req.Recycle()
			}
		})
	}
}

// BenchmarkValueWriterCommand benchmarks the buffered value writer
func BenchmarkValueWriterCommand(b *testing.B) {
	w := NewValueWriter(io.Discard)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := w.WriteCommand("SET", "key", "value"); err != nil {
			b.Fatal(err)
		}
	}
	w.Flush()
}

func bulk(data []byte) []byte {
	out := append([]byte{'$'}, strconv.Itoa(len(data))...)
	out = append(out, CRLF...)
	out = append(out, data...)
	return append(out, CRLF...)
}
