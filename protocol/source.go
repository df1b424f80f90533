package protocol

import (
	"context"
	"errors"
	"io"
	"time"
)

// maxConsecutiveEmptyReads bounds reads that return no data and no error
const maxConsecutiveEmptyReads = 100

// Source yields one complete top-level wire value at a time. Each returned
// Lease covers exactly the bytes of that value (aggregates include all of
// their children) and must be released by the caller.
//
// At a clean end of input ReadNext returns an empty Lease and io.EOF.
type Source interface {
	ReadNext(ctx context.Context) (Lease, error)
	Close() error
}

// BytesSource frames values out of a fixed byte slice. Leases returned by a
// BytesSource alias the slice and own no pooled memory.
type BytesSource struct {
	data   []byte
	off    int
	broken bool
}

// NewBytesSource creates a source over b
func NewBytesSource(b []byte) *BytesSource {
	return &BytesSource{data: b}
}

// ReadNext returns the next complete value
func (s *BytesSource) ReadNext(ctx context.Context) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return Lease{}, err
	}
	if s.broken {
		return Lease{}, ErrSourceBroken
	}
	if s.off == len(s.data) {
		return Lease{}, io.EOF
	}

	pending := 1
	consumed, err := Scan(s.data[s.off:], &pending)
	if err != nil {
		s.broken = true
		return Lease{}, offsetError(err, int64(s.off))
	}
	if pending != 0 {
		s.broken = true
		return Lease{}, ErrUnexpectedEndOfStream
	}

	l := LeaseBytes(s.data[s.off : s.off+int(consumed)])
	s.off += int(consumed)
	return l, nil
}

// Remaining returns the number of bytes not yet framed
func (s *BytesSource) Remaining() int {
	return len(s.data) - s.off
}

// Close implements Source
func (s *BytesSource) Close() error {
	s.off = len(s.data)
	return nil
}

// SourceOption configures a StreamSource
type SourceOption func(*sourceConfig) error

type sourceConfig struct {
	blockSize int
	maxBuffer int64
}

// WithSourceBlockSize sets the segment size used to buffer transport reads
func WithSourceBlockSize(size int) SourceOption {
	return func(c *sourceConfig) error {
		if size <= 0 {
			return usageError("with source block size", "block size must be positive, got %d", size)
		}
		c.blockSize = size
		return nil
	}
}

// WithSourceMaxBuffer caps the bytes a StreamSource may hold for a single
// incomplete value
func WithSourceMaxBuffer(n int64) SourceOption {
	return func(c *sourceConfig) error {
		if n < 0 {
			return usageError("with source max buffer", "negative maximum %d", n)
		}
		c.maxBuffer = n
		return nil
	}
}

// readDeadliner is implemented by transports whose reads can be interrupted
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// StreamSource frames values out of an io.Reader, buffering transport
// reads in pooled segments. Completed values are detached from the buffer
// without copying.
//
// A StreamSource is not safe for concurrent use. Cancelling the context of
// an in-flight ReadNext interrupts the read when the transport supports read
// deadlines; the source is broken afterwards.
type StreamSource struct {
	r   io.Reader
	buf *RotatingBuffer

	scratch []byte
	eof     bool
	readErr error
	broken  bool
	closed  bool
}

// NewStreamSource creates a source reading from r
func NewStreamSource(r io.Reader, opts ...SourceOption) (*StreamSource, error) {
	cfg := sourceConfig{blockSize: DefaultStreamBlockSize}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	buf, err := NewRotatingBuffer(cfg.blockSize, cfg.maxBuffer)
	if err != nil {
		return nil, err
	}
	return &StreamSource{r: r, buf: buf}, nil
}

// Buffered returns the number of bytes read from the transport but not yet
// returned as part of a value
func (s *StreamSource) Buffered() int64 {
	return s.buf.Len()
}

// Stats returns the shape of the underlying buffer
func (s *StreamSource) Stats() BufferStats {
	return s.buf.Stats()
}

// ReadNext returns the next complete value
func (s *StreamSource) ReadNext(ctx context.Context) (Lease, error) {
	if s.closed {
		return Lease{}, usageError("read next", "source is closed")
	}
	if s.broken {
		return Lease{}, ErrSourceBroken
	}

	pending := 1
	var scanned int64
	for {
		if buffered := s.buf.Len(); buffered > scanned {
			window, err := s.buf.Committed().Slice(scanned, buffered-scanned)
			if err != nil {
				s.broken = true
				return Lease{}, err
			}

			var data []byte
			if window.IsSingleSegment() {
				data = window.First()
			} else {
				s.scratch = window.AppendTo(s.scratch[:0])
				data = s.scratch
			}

			consumed, err := Scan(data, &pending)
			if err != nil {
				s.broken = true
				return Lease{}, offsetError(err, scanned)
			}
			scanned += consumed

			if pending == 0 {
				lease, err := s.buf.DetachRotating(scanned)
				if err != nil {
					s.broken = true
					return Lease{}, err
				}
				return lease, nil
			}
		}

		if s.eof {
			if s.buf.Len() == 0 {
				return Lease{}, io.EOF
			}
			s.broken = true
			return Lease{}, ErrUnexpectedEndOfStream
		}

		if err := s.fill(ctx); err != nil {
			s.broken = true
			return Lease{}, err
		}
	}
}

// fill performs exactly one successful transport read into the buffer tail
func (s *StreamSource) fill(ctx context.Context) error {
	if s.readErr != nil {
		return s.readErr
	}

	for empty := 0; empty < maxConsecutiveEmptyReads; empty++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		span, err := s.buf.WritableTail()
		if err != nil {
			return err
		}

		n, err := s.read(ctx, span)
		if n > 0 {
			if cerr := s.buf.Commit(n); cerr != nil {
				return cerr
			}
		}

		switch {
		case err == nil:
			if n > 0 {
				return nil
			}
		case errors.Is(err, io.EOF):
			s.eof = true
			return nil
		default:
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if n > 0 {
				// report on the next fill, after the committed bytes are framed
				s.readErr = err
				return nil
			}
			return err
		}
	}
	return io.ErrNoProgress
}

func (s *StreamSource) read(ctx context.Context, span []byte) (int, error) {
	if d, ok := s.r.(readDeadliner); ok && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetReadDeadline(time.Unix(1, 0))
		})
		defer stop()
	}
	return s.r.Read(span)
}

// Close releases the buffered memory. It does not close the underlying
// reader. Leases already returned stay valid.
func (s *StreamSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf.Close()
	s.scratch = nil
	return nil
}

// offsetError rebases a protocol error's offset onto the caller's window
func offsetError(err error, base int64) error {
	var pe *ProtocolError
	if base == 0 || !errors.As(err, &pe) {
		return err
	}
	rebased := *pe
	rebased.Offset += base
	return &rebased
}
