package respwire_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/raniellyferreira/respwire"
	"github.com/raniellyferreira/respwire/internal/resptest"
)

// Both clients talk to the same in-memory server, so the difference is the
// client-side encode and decode path.

func benchServer(b *testing.B) *resptest.Server {
	b.Helper()
	s := resptest.NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { s.Stop() })
	return s
}

var payloadSizes = []int{16, 4 * 1024, 256 * 1024}

func BenchmarkGet_Respwire(b *testing.B) {
	s := benchServer(b)
	ctx := context.Background()

	for _, size := range payloadSizes {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			conn, err := respwire.Dial(ctx, s.Addr(), respwire.WithLogger(respwire.NopLogger()))
			if err != nil {
				b.Fatal(err)
			}
			defer conn.Close()

			key := fmt.Sprintf("bench:%d", size)
			if _, err := conn.Do(ctx, "SET", key, strings.Repeat("x", size)); err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				lease, err := conn.DoLease(ctx, "GET", key)
				if err != nil {
					b.Fatal(err)
				}
				lease.Release()
			}
		})
	}
}

func BenchmarkGet_GoRedis(b *testing.B) {
	s := benchServer(b)
	ctx := context.Background()

	for _, size := range payloadSizes {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			rdb := redis.NewClient(&redis.Options{Addr: s.Addr(), PoolSize: 1})
			defer rdb.Close()

			key := fmt.Sprintf("bench:%d", size)
			if err := rdb.Set(ctx, key, strings.Repeat("x", size), 0).Err(); err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := rdb.Get(ctx, key).Bytes(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkPipeline_Respwire(b *testing.B) {
	s := benchServer(b)
	ctx := context.Background()

	conn, err := respwire.Dial(ctx, s.Addr(), respwire.WithLogger(respwire.NopLogger()))
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()

	cmds := make([][]string, 100)
	for i := range cmds {
		cmds[i] = []string{"INCR", "bench:counter"}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.Pipeline(ctx, cmds); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPipeline_GoRedis(b *testing.B) {
	s := benchServer(b)
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr(), PoolSize: 1})
	defer rdb.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pipe := rdb.Pipeline()
		for j := 0; j < 100; j++ {
			pipe.Incr(ctx, "bench:counter")
		}
		if _, err := pipe.Exec(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
