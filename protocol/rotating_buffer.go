package protocol

import (
	"math"
)

// minRetainedTail is the smallest unused capacity worth keeping in a shared
// boundary segment after a detach
const minRetainedTail = 64

// RotatingBuffer is a chain of pooled segments with a writable tail and a
// committed window. Leading bytes can be detached as Leases while the rest
// of the chain stays in use, without copying.
//
// A RotatingBuffer is not safe for concurrent use.
type RotatingBuffer struct {
	head, tail *segment
	headOffset int
	tailOffset int
	tailSize   int

	maxLength int64
	pool      *segmentPool
	closed    bool
}

// BufferStats describes the current shape of a RotatingBuffer
type BufferStats struct {
	Segments  int
	Committed int64
	Capacity  int64
}

// NewRotatingBuffer creates a buffer that allocates blockSize segments and
// refuses to buffer more than maxLength bytes. maxLength <= 0 means no
// practical limit.
func NewRotatingBuffer(blockSize int, maxLength int64) (*RotatingBuffer, error) {
	if blockSize <= 0 {
		return nil, usageError("new rotating buffer", "block size must be positive, got %d", blockSize)
	}
	if maxLength <= 0 {
		maxLength = math.MaxInt32
	}
	b := &RotatingBuffer{
		maxLength: maxLength,
		pool:      poolFor(blockSize),
	}
	if err := b.expand(); err != nil {
		return nil, err
	}
	return b, nil
}

// BlockSize returns the capacity of each segment
func (b *RotatingBuffer) BlockSize() int {
	return b.pool.size
}

// MaxLength returns the configured quota
func (b *RotatingBuffer) MaxLength() int64 {
	return b.maxLength
}

// Len returns the number of committed bytes between head and tail
func (b *RotatingBuffer) Len() int64 {
	if b.head == nil {
		return 0
	}
	return (b.tail.runningIndex + int64(b.tailOffset)) - (b.head.runningIndex + int64(b.headOffset))
}

// AvailableBytes returns the contiguous bytes immediately writable, counting
// a fresh block if the tail is full
func (b *RotatingBuffer) AvailableBytes() int {
	remaining := b.tailSize - b.tailOffset
	if remaining == 0 {
		return b.pool.size
	}
	return remaining
}

// expand chains a new segment after a full (or missing) tail
func (b *RotatingBuffer) expand() error {
	if b.closed {
		return usageError("expand", "buffer is closed")
	}
	if b.Len()+int64(b.pool.size) > b.maxLength {
		return &UsageError{
			Op:      "expand",
			Message: "buffer quota exceeded (" + itoa64(b.maxLength) + " bytes)",
			Err:     ErrQuotaExceeded,
		}
	}

	next := newSegment(b.pool, b.tail)
	b.tail = next
	b.tailOffset = 0
	b.tailSize = len(next.data)
	if b.head == nil {
		b.head = next
		b.headOffset = 0
	}
	return nil
}

// WritableTail returns the unwritten remainder of the tail segment,
// allocating a new segment if the tail is full
func (b *RotatingBuffer) WritableTail() ([]byte, error) {
	if b.tail == nil || b.tailOffset == b.tailSize {
		if err := b.expand(); err != nil {
			return nil, err
		}
	}
	return b.tail.data[b.tailOffset:b.tailSize], nil
}

// TryWritableSpan returns the writable tail if it offers at least minSize
// contiguous bytes
func (b *RotatingBuffer) TryWritableSpan(minSize int) ([]byte, bool) {
	if minSize > b.AvailableBytes() {
		return nil, false
	}
	span, err := b.WritableTail()
	if err != nil || len(span) < minSize {
		return nil, false
	}
	return span, true
}

// Commit marks n bytes after the tail cursor as committed. Committing past
// the tail segment spreads the bytes over newly allocated segments, whether
// or not they were written.
func (b *RotatingBuffer) Commit(n int) error {
	if n >= 0 && b.tail != nil && n <= b.tailSize-b.tailOffset {
		b.tailOffset += n
		return nil
	}
	return b.commitSlow(n)
}

func (b *RotatingBuffer) commitSlow(n int) error {
	if n < 0 {
		return usageError("commit", "negative byte count %d", n)
	}
	for n > 0 {
		if b.tail == nil || b.tailOffset == b.tailSize {
			if err := b.expand(); err != nil {
				return err
			}
		}
		space := b.tailSize - b.tailOffset
		if n <= space {
			b.tailOffset += n
			return nil
		}
		b.tailOffset += space
		n -= space
	}
	return nil
}

// Committed returns a borrowed view of the committed bytes. The view is
// invalidated by any detach and must not be released.
func (b *RotatingBuffer) Committed() Lease {
	if b.head == nil {
		return Lease{}
	}
	return leaseOf(b.head, b.headOffset, b.tail, b.tailOffset)
}

// DetachRotating removes the first n committed bytes and returns them as an
// owning Lease. Buffered bytes past n, and any unwritten capacity, remain
// in place for continued use.
func (b *RotatingBuffer) DetachRotating(n int64) (Lease, error) {
	if n < 0 || n > b.Len() {
		return Lease{}, usageError("detach", "cannot detach %d of %d committed bytes", n, b.Len())
	}
	if n == 0 {
		return Lease{}, nil
	}

	all := b.Committed()
	endSeg, endOff := all.seek(n, true)
	take := leaseOf(b.head, b.headOffset, endSeg, endOff)

	// The only segment both sides can still need is the one holding the cut;
	// every earlier segment now belongs to the lease alone.
	leftover := len(endSeg.data) - endOff
	if leftover != 0 && (leftover >= minRetainedTail ||
		endSeg.next != nil ||
		(endSeg == b.tail && b.tailOffset != endOff)) {
		if err := endSeg.retain(); err != nil {
			return Lease{}, err
		}
		b.head = endSeg
		b.headOffset = endOff
		return take, nil
	}

	b.headOffset = 0
	if endSeg.next == nil {
		// nothing buffered past the cut: start over with a fresh block
		b.head, b.tail = nil, nil
		b.tailOffset, b.tailSize = 0, 0
		if err := b.expand(); err != nil {
			return take, err
		}
		return take, nil
	}

	next := endSeg.next
	endSeg.next = nil
	b.head = next
	return take, nil
}

// Detach hands the entire committed chain to the caller and leaves the
// buffer empty. The next write allocates a fresh segment.
func (b *RotatingBuffer) Detach() Lease {
	all := b.Committed()
	b.head, b.tail = nil, nil
	b.headOffset, b.tailOffset, b.tailSize = 0, 0, 0
	if all.length == 0 && all.start != nil {
		// an empty chain still holds its segment references
		all.Release()
		return Lease{}
	}
	return all
}

// Stats returns the current segment count and committed byte count
func (b *RotatingBuffer) Stats() BufferStats {
	var stats BufferStats
	for s := b.head; s != nil; s = s.next {
		stats.Segments++
		stats.Capacity += int64(len(s.data))
		if s == b.tail {
			break
		}
	}
	stats.Committed = b.Len()
	return stats
}

// Close releases every segment still held by the buffer. It is safe to call
// Close more than once.
func (b *RotatingBuffer) Close() {
	if b.closed {
		return
	}
	b.closed = true
	if b.head == nil {
		return
	}
	held := leaseOf(b.head, b.headOffset, b.tail, b.tailOffset)
	b.head, b.tail = nil, nil
	b.headOffset, b.tailOffset, b.tailSize = 0, 0, 0
	held.Release()
}

func itoa64(v int64) string {
	var buf [20]byte
	return string(appendInt(buf[:0], v))
}
