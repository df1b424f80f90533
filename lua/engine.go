package lua

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/respwire/protocol"
)

// ErrNoScript is returned by EvalSHA for an unknown digest
var ErrNoScript = errors.New("NOSCRIPT No matching script. Please use EVAL")

// Executor runs one command and returns its decoded reply. An error reply
// must be reported as a non-nil error; *respwire.Conn satisfies this.
type Executor interface {
	Do(ctx context.Context, name string, args ...string) (protocol.Value, error)
}

// Engine provides Redis-compatible Lua script execution
type Engine struct {
	exec    Executor
	scripts sync.Map // map[string]string - SHA1 -> script content
}

// NewEngine creates a new Lua execution engine whose redis.call and
// redis.pcall are served by exec
func NewEngine(exec Executor) *Engine {
	return &Engine{
		exec: exec,
	}
}

// Eval executes a Lua script with the given keys and arguments
func (e *Engine) Eval(ctx context.Context, script string, keys []string, args []string) (protocol.Value, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	e.setupRedisAPI(L, ctx, keys, args)

	if err := L.DoString(script); err != nil {
		return protocol.Value{}, fmt.Errorf("script execution error: %w", err)
	}

	return toValue(L.Get(-1)), nil
}

// EvalSHA executes a previously loaded script by its SHA1 hash
func (e *Engine) EvalSHA(ctx context.Context, sha1 string, keys []string, args []string) (protocol.Value, error) {
	script, exists := e.scripts.Load(sha1)
	if !exists {
		return protocol.Value{}, ErrNoScript
	}

	return e.Eval(ctx, script.(string), keys, args)
}

// LoadScript loads a script and returns its SHA1 hash
func (e *Engine) LoadScript(script string) string {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))
	e.scripts.Store(hash, script)
	return hash
}

// ScriptExists checks if scripts with given SHA1 hashes exist
func (e *Engine) ScriptExists(hashes []string) []bool {
	results := make([]bool, len(hashes))
	for i, hash := range hashes {
		_, exists := e.scripts.Load(hash)
		results[i] = exists
	}
	return results
}

// ScriptFlush removes all cached scripts
func (e *Engine) ScriptFlush() {
	e.scripts.Clear()
}

// setupRedisAPI installs KEYS, ARGV and the redis table
func (e *Engine) setupRedisAPI(L *lua.LState, ctx context.Context, keys []string, args []string) {
	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key))
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call": func(L *lua.LState) int {
			result, err := e.execute(ctx, L)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(toLua(L, result))
			return 1
		},
		"pcall": func(L *lua.LState) int {
			result, err := e.execute(ctx, L)
			if err != nil {
				L.Push(errorTable(L, err.Error()))
				return 1
			}
			L.Push(toLua(L, result))
			return 1
		},
		"error_reply":  func(L *lua.LState) int { L.Push(errorTable(L, L.CheckString(1))); return 1 },
		"status_reply": func(L *lua.LState) int { L.Push(statusTable(L, L.CheckString(1))); return 1 },
	})
	L.SetGlobal("redis", redisTable)
}

// execute runs the command named by the arguments on the Lua stack
func (e *Engine) execute(ctx context.Context, L *lua.LState) (protocol.Value, error) {
	argc := L.GetTop()
	if argc == 0 {
		return protocol.Value{}, fmt.Errorf("wrong number of arguments for redis command")
	}

	name, ok := L.Get(1).(lua.LString)
	if !ok || name == "" {
		return protocol.Value{}, fmt.Errorf("command name must be a string")
	}

	args := make([]string, argc-1)
	for i := 2; i <= argc; i++ {
		switch v := L.Get(i).(type) {
		case lua.LString:
			args[i-2] = string(v)
		case lua.LNumber:
			args[i-2] = formatNumber(float64(v))
		default:
			return protocol.Value{}, fmt.Errorf("command arguments must be strings or integers")
		}
	}

	return e.exec.Do(ctx, string(name), args...)
}

func errorTable(L *lua.LState, msg string) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("err", lua.LString(msg))
	return t
}

func statusTable(L *lua.LState, msg string) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("ok", lua.LString(msg))
	return t
}

// toLua converts a reply to a Lua value. Nulls become false, status
// replies become {ok=...} tables.
func toLua(L *lua.LState, v protocol.Value) lua.LValue {
	if v.Null || v.Prefix == protocol.PrefixNull {
		return lua.LFalse
	}

	switch v.Prefix {
	case protocol.PrefixSimpleString:
		return statusTable(L, string(v.Data))
	case protocol.PrefixSimpleError, protocol.PrefixBulkError:
		return errorTable(L, string(v.Data))
	case protocol.PrefixInteger:
		return lua.LNumber(float64(v.Int()))
	case protocol.PrefixBoolean:
		return lua.LBool(v.Bool())
	case protocol.PrefixDouble:
		f, err := v.Float()
		if err != nil {
			return lua.LString(v.Data)
		}
		return lua.LNumber(f)
	case protocol.PrefixMap:
		table := L.NewTable()
		for i := 0; i+1 < len(v.Children); i += 2 {
			table.RawSet(toLua(L, v.Children[i]), toLua(L, v.Children[i+1]))
		}
		return table
	case protocol.PrefixArray, protocol.PrefixSet, protocol.PrefixPush:
		table := L.NewTable()
		for i, item := range v.Children {
			table.RawSetInt(i+1, toLua(L, item))
		}
		return table
	default:
		return lua.LString(v.String())
	}
}

// toValue converts a script result to a reply using the Redis rules:
// numbers are truncated to integers, true is 1, false and nil are null, and
// arrays stop at the first nil.
func toValue(lv lua.LValue) protocol.Value {
	switch v := lv.(type) {
	case lua.LBool:
		if v {
			return protocol.Value{Prefix: protocol.PrefixInteger, Data: []byte("1")}
		}
		return protocol.Value{Prefix: protocol.PrefixBulkString, Null: true}
	case lua.LString:
		return protocol.Value{Prefix: protocol.PrefixBulkString, Data: []byte(v)}
	case lua.LNumber:
		return protocol.Value{Prefix: protocol.PrefixInteger, Data: strconv.AppendInt(nil, truncate(float64(v)), 10)}
	case *lua.LTable:
		if msg, ok := v.RawGetString("err").(lua.LString); ok {
			return protocol.Value{Prefix: protocol.PrefixSimpleError, Data: []byte(msg)}
		}
		if msg, ok := v.RawGetString("ok").(lua.LString); ok {
			return protocol.Value{Prefix: protocol.PrefixSimpleString, Data: []byte(msg)}
		}
		children := []protocol.Value{}
		for i := 1; ; i++ {
			item := v.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			children = append(children, toValue(item))
		}
		return protocol.Value{Prefix: protocol.PrefixArray, Children: children}
	default:
		return protocol.Value{Prefix: protocol.PrefixBulkString, Null: true}
	}
}

func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
