package protocol

import (
	"sync"
	"sync/atomic"
)

const (
	// minBlockSize is the smallest segment capacity handed out by the pool
	minBlockSize = 1024

	// DefaultStreamBlockSize is the segment size used by stream sources
	DefaultStreamBlockSize = 64 * 1024

	// DefaultCommandBlockSize is the segment size used by command writers
	DefaultCommandBlockSize = 1024
)

// segment is one pooled, fixed-capacity block in a buffer chain.
//
// The reference count starts at 1. Once it reaches 0 the block has been
// returned to its pool and data is nil; nothing may touch it afterwards.
type segment struct {
	data         []byte
	runningIndex int64
	next         *segment
	refs         atomic.Int32
	pool         *segmentPool
}

// newSegment takes a block from pool and chains it after previous, if any
func newSegment(pool *segmentPool, previous *segment) *segment {
	s := &segment{
		data: pool.get(),
		pool: pool,
	}
	s.refs.Store(1)
	if previous != nil {
		s.runningIndex = previous.runningIndex + int64(len(previous.data))
		previous.next = s
	}
	return s
}

// refCount returns the current reference count
func (s *segment) refCount() int32 {
	return s.refs.Load()
}

// released reports whether the block was returned to its pool
func (s *segment) released() bool {
	return s.refs.Load() == 0
}

// retain adds a reference
func (s *segment) retain() error {
	for {
		old := s.refs.Load()
		if old == 0 {
			return &UsageError{Op: "retain", Err: ErrReleased}
		}
		if s.refs.CompareAndSwap(old, old+1) {
			return nil
		}
	}
}

// release drops a reference, returning the block to the pool on the last one
func (s *segment) release() {
	for {
		old := s.refs.Load()
		if old == 0 {
			return
		}
		if s.refs.CompareAndSwap(old, old-1) {
			if old == 1 {
				data := s.data
				s.data = nil
				s.next = nil
				s.pool.put(data)
			}
			return
		}
	}
}

// segmentPool hands out blocks of a single size class
type segmentPool struct {
	size      int
	blocks    sync.Pool
	allocated atomic.Int64
	returned  atomic.Int64
}

var (
	poolsMu sync.Mutex
	pools   = map[int]*segmentPool{}
)

// poolFor returns the shared pool for the given block size
func poolFor(size int) *segmentPool {
	if size < minBlockSize {
		size = minBlockSize
	}

	poolsMu.Lock()
	defer poolsMu.Unlock()

	p, ok := pools[size]
	if !ok {
		p = &segmentPool{size: size}
		p.blocks.New = func() any {
			b := make([]byte, size)
			return &b
		}
		pools[size] = p
	}
	return p
}

func (p *segmentPool) get() []byte {
	p.allocated.Add(1)
	return *(p.blocks.Get().(*[]byte))
}

func (p *segmentPool) put(b []byte) {
	p.returned.Add(1)
	if cap(b) != p.size {
		return // not ours, let GC handle it
	}
	b = b[:p.size]
	p.blocks.Put(&b)
}

// PoolStats aggregates segment allocation statistics across all block sizes
type PoolStats struct {
	Allocated int64
	Released  int64
	InUse     int64
}

// stats returns the allocation counters for this size class
func (p *segmentPool) stats() PoolStats {
	allocated := p.allocated.Load()
	released := p.returned.Load()
	return PoolStats{
		Allocated: allocated,
		Released:  released,
		InUse:     allocated - released,
	}
}

// GetPoolStats returns segment statistics summed over every block size in use
func GetPoolStats() PoolStats {
	poolsMu.Lock()
	defer poolsMu.Unlock()

	var total PoolStats
	for _, p := range pools {
		s := p.stats()
		total.Allocated += s.Allocated
		total.Released += s.Released
		total.InUse += s.InUse
	}
	return total
}
