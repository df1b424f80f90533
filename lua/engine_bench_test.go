package lua

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func BenchmarkLuaEngine_SimpleScript(b *testing.B) {
	engine := NewEngine(newMemExecutor())
	ctx := context.Background()
	script := "return 'hello world'"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Eval(ctx, script, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLuaEngine_RedisCommands(b *testing.B) {
	engine := NewEngine(newMemExecutor())
	ctx := context.Background()
	script := "redis.call('SET', KEYS[1], ARGV[1]); return redis.call('GET', KEYS[1])"
	keys := []string{"benchkey"}
	args := []string{"benchvalue"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Eval(ctx, script, keys, args); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLuaEngine_EvalSHA(b *testing.B) {
	engine := NewEngine(newMemExecutor())
	ctx := context.Background()
	sha := engine.LoadScript("return 'cached script'")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.EvalSHA(ctx, sha, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLuaEngine_ArrayResult(b *testing.B) {
	engine := NewEngine(newMemExecutor())
	ctx := context.Background()
	script := `
		local arr = {}
		for i = 1, 10 do
			arr[i] = "item" .. i
		end
		return arr
	`

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Eval(ctx, script, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLuaEngine_KeysCardinality(b *testing.B) {
	script := `
		local result = {}
		for i = 1, #KEYS do
			redis.call('SET', KEYS[i], ARGV[i])
			result[i] = redis.call('GET', KEYS[i])
		end
		return result
	`

	for _, n := range []int{1, 10, 100} {
		keys := make([]string, n)
		args := make([]string, n)
		for i := range keys {
			keys[i] = fmt.Sprintf("key%d", i)
			args[i] = strings.Repeat("v", 16)
		}

		b.Run(fmt.Sprintf("keys_%d", n), func(b *testing.B) {
			engine := NewEngine(newMemExecutor())
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Eval(ctx, script, keys, args); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkLuaEngine_ParallelExecution(b *testing.B) {
	engine := NewEngine(newMemExecutor())
	script := "return redis.call('INCRBY', KEYS[1], 1)"
	keys := []string{"counter"}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := engine.Eval(ctx, script, keys, nil); err != nil {
				b.Fatal(err)
			}
		}
	})
}
