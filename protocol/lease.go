package protocol

import (
	"iter"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Lease is an owning handle over an immutable byte range that may span
// several pooled segments. The holder must call Release exactly once per
// claim (the original claim plus one per successful Retain).
//
// A Lease built over a plain byte slice (see NewBytesSource) owns no pooled
// memory and Release is a no-op.
//
// The zero Lease is empty.
type Lease struct {
	start    *segment
	startOff int
	end      *segment
	endOff   int // exclusive, relative to end.data
	length   int64

	flat []byte
}

// leaseOf builds a lease over a (start, startOff) .. (end, endOff) range
func leaseOf(start *segment, startOff int, end *segment, endOff int) Lease {
	return Lease{
		start:    start,
		startOff: startOff,
		end:      end,
		endOff:   endOff,
		length:   (end.runningIndex + int64(endOff)) - (start.runningIndex + int64(startOff)),
	}
}

// LeaseBytes wraps b in a Lease that owns no pooled memory
func LeaseBytes(b []byte) Lease {
	return Lease{flat: b, length: int64(len(b))}
}

// Len returns the number of leased bytes
func (l Lease) Len() int64 {
	return l.length
}

// IsEmpty returns true if the lease covers no bytes
func (l Lease) IsEmpty() bool {
	return l.length == 0
}

// IsSingleSegment returns true if the bytes are contiguous in memory
func (l Lease) IsSingleSegment() bool {
	return l.start == nil || l.start == l.end
}

// First returns the first contiguous chunk of the lease
func (l Lease) First() []byte {
	if l.start == nil {
		return l.flat
	}
	if l.start == l.end {
		return l.start.data[l.startOff:l.endOff]
	}
	return l.start.data[l.startOff:]
}

// Chunks calls fn for every contiguous chunk in order until fn returns false
func (l Lease) Chunks(fn func(chunk []byte) bool) {
	if l.start == nil {
		if len(l.flat) > 0 {
			fn(l.flat)
		}
		return
	}
	for s := l.start; s != nil; s = s.next {
		from, to := 0, len(s.data)
		if s == l.start {
			from = l.startOff
		}
		if s == l.end {
			to = l.endOff
		}
		if to > from && !fn(s.data[from:to]) {
			return
		}
		if s == l.end {
			return
		}
	}
}

// All returns an iterator over the contiguous chunks of the lease
func (l Lease) All() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		l.Chunks(yield)
	}
}

// Slice returns a non-owning view of length bytes starting at offset.
// The view takes no additional references and must not be released.
func (l Lease) Slice(offset, length int64) (Lease, error) {
	if offset < 0 || length < 0 || offset+length > l.length {
		return Lease{}, usageError("slice", "range [%d:%d] out of bounds for length %d", offset, offset+length, l.length)
	}
	if l.start == nil {
		return LeaseBytes(l.flat[offset : offset+length]), nil
	}
	if length == 0 {
		return Lease{}, nil
	}

	s, off := l.seek(offset, false)
	e, endOff := l.seek(offset+length, true)
	return leaseOf(s, off, e, endOff), nil
}

// seek locates the segment and local offset of a position within the lease.
// With atEnd set, a position on a segment boundary resolves to the end of
// the earlier segment rather than the start of the next one.
func (l Lease) seek(pos int64, atEnd bool) (*segment, int) {
	abs := l.start.runningIndex + int64(l.startOff) + pos
	for s := l.start; s != nil; s = s.next {
		limit := s.runningIndex + int64(len(s.data))
		if abs < limit || (atEnd && abs == limit) || s == l.end {
			return s, int(abs - s.runningIndex)
		}
	}
	return l.end, l.endOff
}

// CopyTo copies as many leased bytes as fit into dst and returns the count
func (l Lease) CopyTo(dst []byte) int {
	n := 0
	l.Chunks(func(chunk []byte) bool {
		n += copy(dst[n:], chunk)
		return n < len(dst)
	})
	return n
}

// AppendTo appends the leased bytes to dst
func (l Lease) AppendTo(dst []byte) []byte {
	l.Chunks(func(chunk []byte) bool {
		dst = append(dst, chunk...)
		return true
	})
	return dst
}

// Sum64 returns the xxhash64 digest of the leased bytes
func (l Lease) Sum64() uint64 {
	if l.IsSingleSegment() {
		return xxhash.Sum64(l.First())
	}
	d := xxhash.New()
	l.Chunks(func(chunk []byte) bool {
		_, _ = d.Write(chunk)
		return true
	})
	return d.Sum64()
}

// Reader returns a wire value reader over the leased bytes. Single-segment
// leases are read in place; otherwise the bytes are copied into scratch,
// which is grown as needed and returned for reuse.
func (l Lease) Reader(scratch []byte) (Reader, []byte) {
	if l.IsSingleSegment() {
		return NewReader(l.First()), scratch
	}
	scratch = l.AppendTo(scratch[:0])
	return NewReader(scratch), scratch
}

// Retain adds one claim to every segment the lease spans. Each successful
// Retain must be matched by a Release.
func (l Lease) Retain() error {
	if l.start == nil {
		return nil
	}
	for s := l.start; s != nil; s = s.next {
		if err := s.retain(); err != nil {
			for r := l.start; r != s; r = r.next {
				r.release()
			}
			return err
		}
		if s == l.end {
			return nil
		}
	}
	return nil
}

// Release drops one claim on every segment the lease spans
func (l Lease) Release() {
	if l.start == nil {
		return
	}
	s := l.start
	for s != nil {
		// the end segment may still be the buffer's tail; its next link
		// belongs to the writer
		if s == l.end {
			s.release()
			return
		}
		next := s.next
		s.release()
		s = next
	}
}

// String returns the leased bytes as text for debugging
func (l Lease) String() string {
	if l.length == 0 {
		return ""
	}
	if l.length > 1024 {
		return "(" + strconv.FormatInt(l.length, 10) + " bytes)"
	}
	return string(l.AppendTo(make([]byte, 0, l.length)))
}

// writeAt overwrites leased bytes starting at offset. Only used to fill a
// reserved preamble before the lease is published.
func (l Lease) writeAt(offset int64, src []byte) int {
	view, err := l.Slice(offset, int64(len(src)))
	if err != nil {
		return 0
	}
	if view.start == nil {
		return copy(view.flat, src)
	}
	n := 0
	view.Chunks(func(chunk []byte) bool {
		n += copy(chunk, src[n:])
		return n < len(src)
	})
	return n
}
