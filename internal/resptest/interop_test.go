package resptest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raniellyferreira/respwire/internal/resptest"
)

// TestGoRedisInterop drives the server with an independent client
func TestGoRedisInterop(t *testing.T) {
	s := resptest.NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer s.Stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:        s.Addr(),
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("PING failed: %v", err)
	}

	if err := rdb.Set(ctx, "greeting", "hello", 0).Err(); err != nil {
		t.Fatalf("SET failed: %v", err)
	}
	got, err := rdb.Get(ctx, "greeting").Result()
	if err != nil || got != "hello" {
		t.Fatalf("GET: expected hello, got %q (%v)", got, err)
	}

	if _, err := rdb.Get(ctx, "missing").Result(); !errors.Is(err, redis.Nil) {
		t.Errorf("GET missing: expected redis.Nil, got %v", err)
	}

	n, err := rdb.IncrBy(ctx, "counter", 5).Result()
	if err != nil || n != 5 {
		t.Errorf("INCRBY: expected 5, got %d (%v)", n, err)
	}

	pipe := rdb.Pipeline()
	incrs := make([]*redis.IntCmd, 10)
	for i := range incrs {
		incrs[i] = pipe.Incr(ctx, "pipelined")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	for i, cmd := range incrs {
		if cmd.Val() != int64(i+1) {
			t.Errorf("pipelined INCR %d: got %d", i, cmd.Val())
		}
	}

	res, err := rdb.Eval(ctx, "return {KEYS[1], ARGV[1], 7}", []string{"k"}, "v").Result()
	if err != nil {
		t.Fatalf("EVAL failed: %v", err)
	}
	items, ok := res.([]interface{})
	if !ok || len(items) != 3 || items[0] != "k" || items[1] != "v" || items[2] != int64(7) {
		t.Errorf("EVAL: unexpected result %#v", res)
	}

	if err := rdb.Do(ctx, "NOPE").Err(); err == nil || err.Error() != "ERR unknown command 'nope'" {
		t.Errorf("unknown command: got %v", err)
	}

	if s.Stats()["total_commands"] == 0 {
		t.Error("server recorded no commands")
	}
}
