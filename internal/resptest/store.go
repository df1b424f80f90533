package resptest

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 16

// shard represents a single shard of data with its own lock
type shard struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Store is a sharded in-memory string keyspace
type Store struct {
	shards    []shard
	shardMask uint64
}

// NewStore creates a store with the given number of shards, rounded up to a
// power of two
func NewStore(shards int) *Store {
	n := 1
	for n < shards {
		n <<= 1
	}
	s := &Store{
		shards:    make([]shard, n),
		shardMask: uint64(n - 1),
	}
	for i := range s.shards {
		s.shards[i].data = make(map[string][]byte)
	}
	return s
}

// shardFor returns the shard owning key
func (s *Store) shardFor(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)&s.shardMask]
}

// Get returns a copy of the value stored at key
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	v, ok := sh.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Set stores a copy of value at key
func (s *Store) Set(key string, value []byte) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.data[key] = append([]byte(nil), value...)
	sh.mu.Unlock()
}

// Del removes keys and returns how many existed
func (s *Store) Del(keys ...string) int64 {
	var deleted int64
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.Lock()
		if _, ok := sh.data[key]; ok {
			delete(sh.data, key)
			deleted++
		}
		sh.mu.Unlock()
	}
	return deleted
}

// Exists counts how many of keys exist
func (s *Store) Exists(keys ...string) int64 {
	var count int64
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.RLock()
		if _, ok := sh.data[key]; ok {
			count++
		}
		sh.mu.RUnlock()
	}
	return count
}

// IncrBy adds delta to the integer stored at key
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var n int64
	if v, ok := sh.data[key]; ok {
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n += delta
	sh.data[key] = strconv.AppendInt(nil, n, 10)
	return n, nil
}

// Len returns the number of keys
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.data)
		sh.mu.RUnlock()
	}
	return total
}
