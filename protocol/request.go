package protocol

import (
	"io"
	"net"
)

// RequestBuffer is a finalized command ready to send: an owning Lease over
// the reserved preamble region plus the command payload. Only the bytes from
// the start index onward are sent.
type RequestBuffer struct {
	lease    Lease
	reserved int64 // end of the preamble region, where the payload begins
	start    int64 // first byte to send
}

// Len returns the number of bytes that will be sent
func (r RequestBuffer) Len() int64 {
	return r.lease.Len() - r.start
}

// PreambleLen returns the number of preamble bytes that will be sent
func (r RequestBuffer) PreambleLen() int64 {
	return r.reserved - r.start
}

// WithPreamble fills b backward into the reserved region, so that it is
// sent immediately before the command. The region can be filled only once;
// call WithoutPreamble first to fill it again.
func (r RequestBuffer) WithPreamble(b []byte) (RequestBuffer, error) {
	if len(b) == 0 {
		return r, nil
	}
	if r.start != r.reserved {
		return r, usageError("with preamble", "preamble already written (%d bytes)", r.reserved-r.start)
	}
	if int64(len(b)) > r.reserved {
		return r, usageError("with preamble", "preamble of %d bytes exceeds reservation of %d", len(b), r.reserved)
	}
	start := r.reserved - int64(len(b))
	if n := r.lease.writeAt(start, b); n != len(b) {
		return r, usageError("with preamble", "short preamble write: %d of %d bytes", n, len(b))
	}
	r.start = start
	return r, nil
}

// WithoutPreamble returns the buffer with the preamble dropped
func (r RequestBuffer) WithoutPreamble() RequestBuffer {
	r.start = r.reserved
	return r
}

// Bytes returns a non-owning view of the bytes that will be sent
func (r RequestBuffer) Bytes() Lease {
	view, err := r.lease.Slice(r.start, r.Len())
	if err != nil {
		return Lease{}
	}
	return view
}

// TrySpan returns the bytes to send when they are contiguous in memory
func (r RequestBuffer) TrySpan() ([]byte, bool) {
	view := r.Bytes()
	if !view.IsSingleSegment() {
		return nil, false
	}
	return view.First(), true
}

// WriteTo writes the request to w, using vectored I/O when the bytes span
// several segments
func (r RequestBuffer) WriteTo(w io.Writer) (int64, error) {
	view := r.Bytes()
	if view.IsSingleSegment() {
		n, err := w.Write(view.First())
		return int64(n), err
	}
	bufs := make(net.Buffers, 0, 4)
	view.Chunks(func(chunk []byte) bool {
		bufs = append(bufs, chunk)
		return true
	})
	return bufs.WriteTo(w)
}

// Sum64 returns the xxhash64 digest of the bytes that will be sent
func (r RequestBuffer) Sum64() uint64 {
	return r.Bytes().Sum64()
}

// String returns the bytes that will be sent as text for debugging
func (r RequestBuffer) String() string {
	return r.Bytes().String()
}

// Recycle releases the underlying memory. The buffer must not be used
// afterwards.
func (r *RequestBuffer) Recycle() {
	r.lease.Release()
	*r = RequestBuffer{}
}
